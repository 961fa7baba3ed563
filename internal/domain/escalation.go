package domain

import "time"

// SystemActor marks audit fields written by the scheduled sweep.
const SystemActor = "SYSTEM"

// EscalationRule is one row of the escalation matrix, keyed uniquely by
// (RelatedService, Priority, SupportLevel) among active rules.
type EscalationRule struct {
	ID                     string
	RelatedService         RelatedService
	Priority               IssuePriority
	SupportLevel           SupportLevel
	InitialAssignmentLevel SupportLevel
	// EscalateToLevel is nil for a terminal tier.
	EscalateToLevel *SupportLevel
	// EscalationTimeMinutes is nil when the tier never auto-escalates.
	EscalationTimeMinutes *int
	ResponseTimeMinutes   int
	ResolutionTimeMinutes int
	Active                bool
	CreatedBy             string
	UpdatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RuleKey identifies the matrix slot a rule occupies.
type RuleKey struct {
	RelatedService RelatedService
	Priority       IssuePriority
	SupportLevel   SupportLevel
}

// Key returns the matrix slot of the rule.
func (r *EscalationRule) Key() RuleKey {
	return RuleKey{RelatedService: r.RelatedService, Priority: r.Priority, SupportLevel: r.SupportLevel}
}

// AutoEscalates reports whether the rule defines a timed path to a higher tier.
func (r *EscalationRule) AutoEscalates() bool {
	return r.EscalateToLevel != nil && r.EscalationTimeMinutes != nil
}

// IssueEscalation is an append-only audit record of a tier change.
type IssueEscalation struct {
	ID          string
	IssueID     string
	FromLevel   *SupportLevel
	ToLevel     SupportLevel
	EscalatedAt time.Time
	Reason      string
	EscalatedBy string
	Automatic   bool
}
