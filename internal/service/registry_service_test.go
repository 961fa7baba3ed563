package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func assetHighL1() RuleInput {
	return RuleInput{
		RelatedService:         domain.ServiceAsset,
		Priority:               domain.IssuePriorityHigh,
		SupportLevel:           domain.SupportLevelL1,
		InitialAssignmentLevel: domain.SupportLevelL1,
		EscalateToLevel:        ptr(domain.SupportLevelL2),
		EscalationTimeMinutes:  ptr(30),
		ResponseTimeMinutes:    15,
		ResolutionTimeMinutes:  240,
	}
}

func TestDuplicateActiveRuleConflicts(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	first := h.addRule(t, assetHighL1())

	_, err := h.registry.Create(context.Background(), assetHighL1())
	require.True(t, apperrors.IsConflict(err))
	assert.Equal(t, first.ID, apperrors.ToDomainError(err).Details["existing_rule_id"])

	inactive := assetHighL1()
	inactive.Active = ptr(false)
	_, err = h.registry.Create(context.Background(), inactive)
	assert.NoError(t, err)
}

func TestUpdateIntoOccupiedSlotConflicts(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	h.addRule(t, assetHighL1())
	other := assetHighL1()
	other.Priority = domain.IssuePriorityLow
	rule := h.addRule(t, other)

	_, err := h.registry.Update(context.Background(), rule.ID, assetHighL1())
	assert.True(t, apperrors.IsConflict(err))

	other.ResponseTimeMinutes = 45
	updated, err := h.registry.Update(context.Background(), rule.ID, other)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.ResponseTimeMinutes)
	assert.Equal(t, "agent-1", updated.UpdatedBy)
}

func TestRuleValidation(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	bad := assetHighL1()
	bad.EscalateToLevel = ptr(domain.SupportLevelL1)
	bad.ResponseTimeMinutes = 0
	bad.EscalationTimeMinutes = ptr(-5)

	_, err := h.registry.Create(context.Background(), bad)
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "escalate_to_level")
	assert.Contains(t, details, "response_time_minutes")
	assert.Contains(t, details, "escalation_time_minutes")
}

func TestLookupAndInitialLevel(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	l2 := assetHighL1()
	l2.SupportLevel = domain.SupportLevelL2
	l2.InitialAssignmentLevel = domain.SupportLevelL2
	l2.EscalateToLevel = ptr(domain.SupportLevelL3)
	h.addRule(t, l2)
	h.addRule(t, assetHighL1())

	level, err := h.registry.InitialLevelFor(context.Background(), domain.ServiceAsset, domain.IssuePriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.SupportLevelL1, level)

	rule, err := h.registry.Lookup(context.Background(), domain.ServiceAsset, domain.IssuePriorityHigh, domain.SupportLevelL3)
	require.NoError(t, err)
	assert.Nil(t, rule)

	level, err = h.registry.InitialLevelFor(context.Background(), domain.ServiceVendor, domain.IssuePriorityLow)
	require.NoError(t, err)
	assert.Equal(t, domain.SupportLevelL1, level)
}

func TestDeleteRule(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	rule := h.addRule(t, assetHighL1())

	require.NoError(t, h.registry.Delete(context.Background(), rule.ID))
	_, err := h.registry.Get(context.Background(), rule.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(h.registry.Delete(context.Background(), rule.ID)))
}

func TestListRulesFilters(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	h.addRule(t, assetHighL1())
	vendor := assetHighL1()
	vendor.RelatedService = domain.ServiceVendor
	h.addRule(t, vendor)

	svc := domain.ServiceVendor
	rules, err := h.registry.List(context.Background(), repository.RuleFilter{RelatedService: &svc})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ServiceVendor, rules[0].RelatedService)
}

const seedYAML = `rules:
  - related_service: ASSET
    priority: HIGH
    support_level: L1
    escalate_to_level: L2
    escalation_time_minutes: 30
    response_time_minutes: 15
    resolution_time_minutes: 240
  - related_service: ASSET
    priority: HIGH
    support_level: L2
    initial_assignment_level: L1
    escalate_to_level: L3
    escalation_time_minutes: 60
    response_time_minutes: 30
    resolution_time_minutes: 480
  - related_service: ASSET
    priority: HIGH
    support_level: L3
    initial_assignment_level: L1
    response_time_minutes: 60
    resolution_time_minutes: 960
`

func TestLoadSeedIsRepeatable(t *testing.T) {
	h := newHarness(t, EscalationPolicy{})
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	created, err := h.registry.LoadSeed(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = h.registry.LoadSeed(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, created)

	rule, err := h.registry.Lookup(context.Background(), domain.ServiceAsset, domain.IssuePriorityHigh, domain.SupportLevelL1)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, domain.SupportLevelL1, rule.InitialAssignmentLevel)
	assert.Equal(t, domain.SystemActor, rule.CreatedBy)

	terminal, err := h.registry.Lookup(context.Background(), domain.ServiceAsset, domain.IssuePriorityHigh, domain.SupportLevelL3)
	require.NoError(t, err)
	require.NotNil(t, terminal)
	assert.False(t, terminal.AutoEscalates())
}

func TestParseMatrixSeedRejectsUnknownKeys(t *testing.T) {
	_, err := ParseMatrixSeed([]byte("rules:\n  - related_service: ASSET\n    escalate_after: 5\n"))
	assert.Error(t, err)
}

func TestShippedMatrixSeedParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "escalation-matrix.yaml"))
	require.NoError(t, err)
	seed, err := ParseMatrixSeed(data)
	require.NoError(t, err)
	require.NotEmpty(t, seed.Rules)
	for i, rule := range seed.Rules {
		assert.NoError(t, validateRuleInput(rule.input()), "rule %d", i)
	}
}
