package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func newIssue(id string, created time.Time) *domain.Issue {
	return &domain.Issue{
		ID:                  id,
		Title:               "printer on fire",
		Status:              domain.IssueStatusOpen,
		Priority:            domain.IssuePriorityHigh,
		RelatedService:      domain.ServiceAsset,
		ReportedBy:          "u-1",
		CurrentSupportLevel: domain.SupportLevelL1,
		InitialSupportLevel: domain.SupportLevelL1,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

func TestMemoryIssueOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := store.Issues()

	issue := newIssue("i-1", time.Now())
	require.NoError(t, repo.Create(ctx, issue))
	assert.Equal(t, int64(1), issue.Version)

	first, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)

	first.Status = domain.IssueStatusInProgress
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.IssueStatusResolved
	assert.ErrorIs(t, repo.Update(ctx, second), ErrVersionConflict)

	missing := newIssue("nope", time.Now())
	missing.Version = 1
	assert.ErrorIs(t, repo.Update(ctx, missing), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	issue := newIssue("i-1", time.Now())
	require.NoError(t, store.Issues().Create(ctx, issue))

	loaded, err := store.Issues().GetByID(ctx, "i-1")
	require.NoError(t, err)
	loaded.Title = "mutated"

	again, err := store.Issues().GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "printer on fire", again.Title)
}

func TestMemoryListOpenOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Issues().Create(ctx, newIssue("b", base.Add(time.Hour))))
	require.NoError(t, store.Issues().Create(ctx, newIssue("a", base)))
	closed := newIssue("c", base.Add(-time.Hour))
	closed.Status = domain.IssueStatusClosed
	require.NoError(t, store.Issues().Create(ctx, closed))

	open, err := store.Issues().ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)
	assert.Equal(t, "b", open[1].ID)
}

func TestMemoryActiveRuleUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rules := store.Rules()

	rule := &domain.EscalationRule{
		ID:                     "r-1",
		RelatedService:         domain.ServiceAuth,
		Priority:               domain.IssuePriorityLow,
		SupportLevel:           domain.SupportLevelL1,
		InitialAssignmentLevel: domain.SupportLevelL1,
		ResponseTimeMinutes:    30,
		ResolutionTimeMinutes:  120,
		Active:                 true,
	}
	require.NoError(t, rules.Create(ctx, rule))

	dup := *rule
	dup.ID = "r-2"
	assert.ErrorIs(t, rules.Create(ctx, &dup), ErrDuplicate)

	dup.Active = false
	require.NoError(t, rules.Create(ctx, &dup))

	found, err := rules.FindActive(ctx, rule.Key())
	require.NoError(t, err)
	assert.Equal(t, "r-1", found.ID)

	dup.Active = true
	assert.ErrorIs(t, rules.Update(ctx, &dup), ErrDuplicate)
}

func TestMemoryTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, store.Issues().Create(txCtx, newIssue("i-1", time.Now())))
		require.NoError(t, store.Escalations().Create(txCtx, &domain.IssueEscalation{ID: "e-1", IssueID: "i-1", ToLevel: domain.SupportLevelL2}))
		return store.InTx(txCtx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Issues().GetByID(ctx, "i-1")
	assert.ErrorIs(t, err, ErrNotFound)
	count, err := store.Escalations().CountByIssue(ctx, "i-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryEscalationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l1 := domain.SupportLevelL1

	require.NoError(t, store.Escalations().Create(ctx, &domain.IssueEscalation{ID: "e-1", IssueID: "i", FromLevel: &l1, ToLevel: domain.SupportLevelL2, EscalatedAt: base}))
	require.NoError(t, store.Escalations().Create(ctx, &domain.IssueEscalation{ID: "e-2", IssueID: "i", ToLevel: domain.SupportLevelL3, EscalatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.Escalations().Create(ctx, &domain.IssueEscalation{ID: "e-3", IssueID: "other", ToLevel: domain.SupportLevelL2, EscalatedAt: base}))

	list, err := store.Escalations().ListByIssue(ctx, "i")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e-2", list[0].ID)
	assert.Equal(t, "e-1", list[1].ID)
}

func TestMemorySLABreaches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	no := false
	yes := true

	require.NoError(t, store.SLA().Create(ctx, &domain.SLATracking{ID: "s-1", IssueID: "i-1", ResponseSLAMet: &no}))
	require.NoError(t, store.SLA().Create(ctx, &domain.SLATracking{ID: "s-2", IssueID: "i-2", ResponseSLAMet: &yes}))
	require.NoError(t, store.SLA().Create(ctx, &domain.SLATracking{ID: "s-3", IssueID: "i-3"}))

	breaches, err := store.SLA().ListBreaches(ctx)
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, "i-1", breaches[0].IssueID)
}
