package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.IssuePriority  `json:"priority"`
	RelatedService domain.RelatedService `json:"related_service"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status          domain.IssueStatus `json:"status"`
	ExpectedVersion *int64             `json:"expected_version"`
}

// AssignIssueRequest payload.
type AssignIssueRequest struct {
	AssignedTo      string `json:"assigned_to"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// ResolveIssueRequest payload.
type ResolveIssueRequest struct {
	Resolution      string `json:"resolution"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// VersionedRequest carries only the optimistic lock token.
type VersionedRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
}

// IssueResponse represents an issue.
type IssueResponse struct {
	ID                  string                `json:"id"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Status              domain.IssueStatus    `json:"status"`
	Priority            domain.IssuePriority  `json:"priority"`
	RelatedService      domain.RelatedService `json:"related_service"`
	ReportedBy          string                `json:"reported_by"`
	AssignedTo          *string               `json:"assigned_to"`
	CurrentSupportLevel domain.SupportLevel   `json:"current_support_level"`
	InitialSupportLevel domain.SupportLevel   `json:"initial_support_level"`
	AssignedAt          *time.Time            `json:"assigned_at"`
	FirstResponseAt     *time.Time            `json:"first_response_at"`
	Resolution          *string               `json:"resolution"`
	ResolvedAt          *time.Time            `json:"resolved_at"`
	EscalationCount     int                   `json:"escalation_count"`
	LastEscalatedAt     *time.Time            `json:"last_escalated_at"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	Version             int64                 `json:"version"`
}

// NewIssueResponse maps a domain issue.
func NewIssueResponse(issue *domain.Issue) IssueResponse {
	return IssueResponse{
		ID:                  issue.ID,
		Title:               issue.Title,
		Description:         issue.Description,
		Status:              issue.Status,
		Priority:            issue.Priority,
		RelatedService:      issue.RelatedService,
		ReportedBy:          issue.ReportedBy,
		AssignedTo:          issue.AssignedTo,
		CurrentSupportLevel: issue.CurrentSupportLevel,
		InitialSupportLevel: issue.InitialSupportLevel,
		AssignedAt:          issue.AssignedAt,
		FirstResponseAt:     issue.FirstResponseAt,
		Resolution:          issue.Resolution,
		ResolvedAt:          issue.ResolvedAt,
		EscalationCount:     issue.EscalationCount,
		LastEscalatedAt:     issue.LastEscalatedAt,
		CreatedAt:           issue.CreatedAt,
		UpdatedAt:           issue.UpdatedAt,
		Version:             issue.Version,
	}
}

// NewIssueList maps a slice of issues.
func NewIssueList(issues []domain.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, NewIssueResponse(&issues[i]))
	}
	return out
}
