package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether the issue is past active handling.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusResolved || s == IssueStatusClosed
}

// IssuePriority enumerates SLA urgency.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "LOW"
	IssuePriorityMedium   IssuePriority = "MEDIUM"
	IssuePriorityHigh     IssuePriority = "HIGH"
	IssuePriorityCritical IssuePriority = "CRITICAL"
)

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// RelatedService identifies the business service an issue is reported against.
type RelatedService string

const (
	ServiceAsset        RelatedService = "ASSET"
	ServiceVendor       RelatedService = "VENDOR"
	ServiceAuth         RelatedService = "AUTH"
	ServiceNotification RelatedService = "NOTIFICATION"
	ServiceHelpdesk     RelatedService = "HELPDESK"
	ServiceCompliance   RelatedService = "COMPLIANCE"
	ServiceOther        RelatedService = "OTHER"
)

// Valid reports whether s is one of the known services.
func (s RelatedService) Valid() bool {
	switch s {
	case ServiceAsset, ServiceVendor, ServiceAuth, ServiceNotification, ServiceHelpdesk, ServiceCompliance, ServiceOther:
		return true
	}
	return false
}

// Issue is the aggregate for reported helpdesk problems.
type Issue struct {
	ID                  string
	Title               string
	Description         string
	Status              IssueStatus
	Priority            IssuePriority
	RelatedService      RelatedService
	ReportedBy          string
	AssignedTo          *string
	CurrentSupportLevel SupportLevel
	InitialSupportLevel SupportLevel
	AssignedAt          *time.Time
	FirstResponseAt     *time.Time
	Resolution          *string
	ResolvedAt          *time.Time
	EscalationCount     int
	LastEscalatedAt     *time.Time
	CreatedBy           string
	UpdatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int64
}

// EscalationAnchor is the instant the auto-escalation timeout is measured from:
// the latest of the last escalation, the first assignment and creation.
func (i *Issue) EscalationAnchor() time.Time {
	anchor := i.CreatedAt
	if i.AssignedAt != nil && i.AssignedAt.After(anchor) {
		anchor = *i.AssignedAt
	}
	if i.LastEscalatedAt != nil && i.LastEscalatedAt.After(anchor) {
		anchor = *i.LastEscalatedAt
	}
	return anchor
}

// WholeMinutesBetween returns the elapsed whole minutes from start to end,
// truncated towards zero. Negative spans yield zero.
func WholeMinutesBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
