package domain

import "time"

// SLATracking holds the response and resolution budgets of one issue and
// what happened against them. The *bool met flags are nil until known.
type SLATracking struct {
	ID                          string
	IssueID                     string
	ResponseTimeMinutes         int
	ResolutionTimeMinutes       int
	TargetsAppliedAt            time.Time
	FirstResponseAt             *time.Time
	ResolvedAt                  *time.Time
	ResponseSLAMet              *bool
	ResolutionSLAMet            *bool
	ResponseSLABreachAt         *time.Time
	ResolutionSLABreachAt       *time.Time
	ActualResponseTimeMinutes   *int
	ActualResolutionTimeMinutes *int
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
	Version                     int64
}

// Breached reports whether either budget is known to be missed.
func (t *SLATracking) Breached() bool {
	return (t.ResponseSLAMet != nil && !*t.ResponseSLAMet) ||
		(t.ResolutionSLAMet != nil && !*t.ResolutionSLAMet)
}

// BreachKind distinguishes the two SLA budgets.
type BreachKind string

const (
	BreachKindResponse   BreachKind = "RESPONSE"
	BreachKindResolution BreachKind = "RESOLUTION"
)
