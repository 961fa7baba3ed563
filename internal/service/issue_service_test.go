package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestCreateWithoutRuleUsesDefaults(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceVendor, domain.IssuePriorityMedium)

	assert.Equal(t, domain.IssueStatusOpen, issue.Status)
	assert.Equal(t, domain.SupportLevelL1, issue.CurrentSupportLevel)
	assert.Equal(t, domain.SupportLevelL1, issue.InitialSupportLevel)
	assert.Equal(t, "agent-1", issue.ReportedBy)
	assert.Zero(t, issue.EscalationCount)

	tracking, err := h.sla.Get(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, tracking.ResponseTimeMinutes)
	assert.Equal(t, 480, tracking.ResolutionTimeMinutes)
	assert.Equal(t, issue.CreatedAt, tracking.TargetsAppliedAt)

	created := h.events.ofType(events.EventIssueCreated)
	require.Len(t, created, 1)
	assert.Equal(t, issue.ID, created[0].IssueID)
	assert.NotEmpty(t, created[0].ID)
}

func TestCreateHighPriorityWithoutRuleStartsAtL2(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceCompliance, domain.IssuePriorityCritical)
	assert.Equal(t, domain.SupportLevelL2, issue.CurrentSupportLevel)
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	_, err := h.issues.Create(context.Background(), CreateIssueInput{
		Title:          "  ",
		Priority:       "URGENT",
		RelatedService: "PAYROLL",
	})
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Contains(t, domainErr.Details, "title")
	assert.Contains(t, domainErr.Details, "priority")
	assert.Contains(t, domainErr.Details, "related_service")
}

func TestCreateDefaultsPriorityToMedium(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue, err := h.issues.Create(context.Background(), CreateIssueInput{Title: "VPN flaky", RelatedService: domain.ServiceAuth})
	require.NoError(t, err)
	assert.Equal(t, domain.IssuePriorityMedium, issue.Priority)
}

func TestClosedIssueCannotReopen(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)

	_, err := h.issues.Resolve(context.Background(), issue.ID, "fixed", nil)
	require.NoError(t, err)
	_, err = h.issues.Close(context.Background(), issue.ID, nil)
	require.NoError(t, err)

	_, err = h.issues.Transition(context.Background(), issue.ID, domain.IssueStatusOpen, nil)
	require.True(t, apperrors.IsInvalidTransition(err))
	assert.Equal(t, domain.IssueStatusClosed, apperrors.ToDomainError(err).Details["from"])
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	_, err := h.issues.Transition(context.Background(), issue.ID, "PAUSED", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestOpenIssueCannotCloseDirectly(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	_, err := h.issues.Close(context.Background(), issue.ID, nil)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestAssignStartsWorkAndRecordsResponse(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	assetHighMatrix(t, h)
	issue := h.newIssue(t, domain.ServiceAsset, domain.IssuePriorityHigh)

	h.clock.Advance(10 * time.Minute)
	got, err := h.issues.Assign(context.Background(), issue.ID, "agent-2", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusInProgress, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "agent-2", *got.AssignedTo)
	require.NotNil(t, got.AssignedAt)
	require.NotNil(t, got.FirstResponseAt)

	tracking, err := h.sla.Get(context.Background(), issue.ID)
	require.NoError(t, err)
	require.NotNil(t, tracking.ResponseSLAMet)
	assert.True(t, *tracking.ResponseSLAMet)
	require.NotNil(t, tracking.ActualResponseTimeMinutes)
	assert.Equal(t, 10, *tracking.ActualResponseTimeMinutes)

	assert.Len(t, h.events.ofType(events.EventIssueAssigned), 1)
	assert.Len(t, h.events.ofType(events.EventIssueStatusChanged), 1)
}

func TestAssignResolvedIssueFails(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	_, err := h.issues.Resolve(context.Background(), issue.ID, "done", nil)
	require.NoError(t, err)

	_, err = h.issues.Assign(context.Background(), issue.ID, "agent-2", nil)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestResolveRecordsResolution(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	assetHighMatrix(t, h)
	issue := h.newIssue(t, domain.ServiceAsset, domain.IssuePriorityHigh)

	h.clock.Advance(5 * time.Minute)
	_, err := h.issues.Transition(context.Background(), issue.ID, domain.IssueStatusInProgress, nil)
	require.NoError(t, err)

	h.clock.Advance(250 * time.Minute)
	got, err := h.issues.Resolve(context.Background(), issue.ID, "replaced toner", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusResolved, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "replaced toner", *got.Resolution)

	tracking, err := h.sla.Get(context.Background(), issue.ID)
	require.NoError(t, err)
	require.NotNil(t, tracking.ResolutionSLAMet)
	assert.False(t, *tracking.ResolutionSLAMet)
	require.NotNil(t, tracking.ResolutionSLABreachAt)
	assert.Equal(t, 255, *tracking.ActualResolutionTimeMinutes)
	assert.Len(t, h.events.ofType(events.EventSLABreached), 1)
}

func TestResolveRequiresText(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	_, err := h.issues.Resolve(context.Background(), issue.ID, " ", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestTransitionWithStaleVersionConflicts(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	issue := h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	stale := issue.Version

	_, err := h.issues.Transition(context.Background(), issue.ID, domain.IssueStatusInProgress, &stale)
	require.NoError(t, err)

	_, err = h.issues.Transition(context.Background(), issue.ID, domain.IssueStatusOpen, &stale)
	assert.True(t, apperrors.IsConflict(err))
}

func TestListMineFiltersByReporter(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	h.newIssue(t, domain.ServiceOther, domain.IssuePriorityLow)
	h.newIssue(t, domain.ServiceAsset, domain.IssuePriorityHigh)

	mine, err := h.issues.ListMine(context.Background(), IssueListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assets, err := h.issues.List(context.Background(), IssueListFilter{Services: []domain.RelatedService{domain.ServiceAsset}})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, domain.ServiceAsset, assets[0].RelatedService)
}

func TestActionsRequireIdentity(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	h.issues.identity = staticIdentity{}
	_, err := h.issues.Create(context.Background(), CreateIssueInput{Title: "x", RelatedService: domain.ServiceOther})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}
