package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueEscalated     EventType = "issue_escalated"
	EventSLABreached        EventType = "sla_breached"
)

// AllEventTypes lists every type a subscriber may register for.
func AllEventTypes() []EventType {
	return []EventType{
		EventIssueCreated,
		EventIssueStatusChanged,
		EventIssueAssigned,
		EventIssueEscalated,
		EventSLABreached,
	}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Title          string                `json:"title"`
	Priority       domain.IssuePriority  `json:"priority"`
	RelatedService domain.RelatedService `json:"related_service"`
	SupportLevel   domain.SupportLevel   `json:"support_level"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	AssignedTo string `json:"assigned_to"`
}

// IssueEscalatedPayload payload.
type IssueEscalatedPayload struct {
	FromLevel       domain.SupportLevel `json:"from_level"`
	ToLevel         domain.SupportLevel `json:"to_level"`
	Reason          string              `json:"reason"`
	Automatic       bool                `json:"automatic"`
	EscalationCount int                 `json:"escalation_count"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Kind          domain.BreachKind `json:"kind"`
	TargetMinutes int               `json:"target_minutes"`
	BreachedAt    time.Time         `json:"breached_at"`
}
