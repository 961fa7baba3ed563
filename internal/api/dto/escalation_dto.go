package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EscalateRequest payload.
type EscalateRequest struct {
	TargetLevel     domain.SupportLevel `json:"target_level"`
	Reason          string              `json:"reason"`
	ExpectedVersion *int64              `json:"expected_version"`
}

// EscalationResponse is one history entry.
type EscalationResponse struct {
	ID          string               `json:"id"`
	IssueID     string               `json:"issue_id"`
	FromLevel   *domain.SupportLevel `json:"from_level"`
	ToLevel     domain.SupportLevel  `json:"to_level"`
	EscalatedAt time.Time            `json:"escalated_at"`
	Reason      string               `json:"reason"`
	EscalatedBy string               `json:"escalated_by"`
	Automatic   bool                 `json:"automatic"`
}

// NewEscalationResponse maps a domain record.
func NewEscalationResponse(e *domain.IssueEscalation) EscalationResponse {
	return EscalationResponse{
		ID:          e.ID,
		IssueID:     e.IssueID,
		FromLevel:   e.FromLevel,
		ToLevel:     e.ToLevel,
		EscalatedAt: e.EscalatedAt,
		Reason:      e.Reason,
		EscalatedBy: e.EscalatedBy,
		Automatic:   e.Automatic,
	}
}

// RuleRequest is the body of matrix writes.
type RuleRequest struct {
	RelatedService         domain.RelatedService `json:"related_service"`
	Priority               domain.IssuePriority  `json:"priority"`
	SupportLevel           domain.SupportLevel   `json:"support_level"`
	InitialAssignmentLevel domain.SupportLevel   `json:"initial_assignment_level"`
	EscalateToLevel        *domain.SupportLevel  `json:"escalate_to_level"`
	EscalationTimeMinutes  *int                  `json:"escalation_time_minutes"`
	ResponseTimeMinutes    int                   `json:"response_time_minutes"`
	ResolutionTimeMinutes  int                   `json:"resolution_time_minutes"`
	Active                 *bool                 `json:"active"`
}

// RuleResponse represents one matrix rule.
type RuleResponse struct {
	ID                     string                `json:"id"`
	RelatedService         domain.RelatedService `json:"related_service"`
	Priority               domain.IssuePriority  `json:"priority"`
	SupportLevel           domain.SupportLevel   `json:"support_level"`
	InitialAssignmentLevel domain.SupportLevel   `json:"initial_assignment_level"`
	EscalateToLevel        *domain.SupportLevel  `json:"escalate_to_level"`
	EscalationTimeMinutes  *int                  `json:"escalation_time_minutes"`
	ResponseTimeMinutes    int                   `json:"response_time_minutes"`
	ResolutionTimeMinutes  int                   `json:"resolution_time_minutes"`
	Active                 bool                  `json:"active"`
	CreatedBy              string                `json:"created_by"`
	UpdatedBy              string                `json:"updated_by"`
	CreatedAt              time.Time             `json:"created_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
}

// NewRuleResponse maps a domain rule.
func NewRuleResponse(r *domain.EscalationRule) RuleResponse {
	return RuleResponse{
		ID:                     r.ID,
		RelatedService:         r.RelatedService,
		Priority:               r.Priority,
		SupportLevel:           r.SupportLevel,
		InitialAssignmentLevel: r.InitialAssignmentLevel,
		EscalateToLevel:        r.EscalateToLevel,
		EscalationTimeMinutes:  r.EscalationTimeMinutes,
		ResponseTimeMinutes:    r.ResponseTimeMinutes,
		ResolutionTimeMinutes:  r.ResolutionTimeMinutes,
		Active:                 r.Active,
		CreatedBy:              r.CreatedBy,
		UpdatedBy:              r.UpdatedBy,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

// SLAResponse represents an SLA tracking record.
type SLAResponse struct {
	IssueID                     string     `json:"issue_id"`
	ResponseTimeMinutes         int        `json:"response_time_minutes"`
	ResolutionTimeMinutes       int        `json:"resolution_time_minutes"`
	TargetsAppliedAt            time.Time  `json:"targets_applied_at"`
	FirstResponseAt             *time.Time `json:"first_response_at"`
	ResolvedAt                  *time.Time `json:"resolved_at"`
	ResponseSLAMet              *bool      `json:"response_sla_met"`
	ResolutionSLAMet            *bool      `json:"resolution_sla_met"`
	ResponseSLABreachAt         *time.Time `json:"response_sla_breach_at"`
	ResolutionSLABreachAt       *time.Time `json:"resolution_sla_breach_at"`
	ActualResponseTimeMinutes   *int       `json:"actual_response_time_minutes"`
	ActualResolutionTimeMinutes *int       `json:"actual_resolution_time_minutes"`
}

// NewSLAResponse maps a tracking record.
func NewSLAResponse(t *domain.SLATracking) SLAResponse {
	return SLAResponse{
		IssueID:                     t.IssueID,
		ResponseTimeMinutes:         t.ResponseTimeMinutes,
		ResolutionTimeMinutes:       t.ResolutionTimeMinutes,
		TargetsAppliedAt:            t.TargetsAppliedAt,
		FirstResponseAt:             t.FirstResponseAt,
		ResolvedAt:                  t.ResolvedAt,
		ResponseSLAMet:              t.ResponseSLAMet,
		ResolutionSLAMet:            t.ResolutionSLAMet,
		ResponseSLABreachAt:         t.ResponseSLABreachAt,
		ResolutionSLABreachAt:       t.ResolutionSLABreachAt,
		ActualResponseTimeMinutes:   t.ActualResponseTimeMinutes,
		ActualResolutionTimeMinutes: t.ActualResolutionTimeMinutes,
	}
}
