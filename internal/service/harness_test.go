package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type staticIdentity struct {
	user domain.Identity
}

func (s staticIdentity) CurrentUser(context.Context) (domain.Identity, error) {
	return s.user, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	store       *repository.MemoryStore
	clock       *clock.FakeClock
	registry    *RegistryService
	sla         *SLAService
	escalations *EscalationService
	issues      *IssueService
	events      *eventLog
	dispatcher  events.Dispatcher
}

func newHarness(t *testing.T, policy EscalationPolicy) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore()
	fake := clock.Fake(t0)
	identity := staticIdentity{user: domain.Identity{ID: "agent-1", Name: "Agent One", Role: domain.StaffRoleAgent}}
	dispatcher := events.NewInMemoryDispatcher()
	log := &eventLog{}
	events.SubscribeAll(dispatcher, log.record)

	registry := NewRegistryService(RegistryDependencies{
		RuleRepo:   store.Rules(),
		Transactor: store,
		Identity:   identity,
		Clock:      fake,
		Logger:     logger,
	})
	sla := NewSLAService(SLADependencies{
		TrackingRepo: store.SLA(),
		IssueRepo:    store.Issues(),
		Registry:     registry,
		Transactor:   store,
		Dispatcher:   dispatcher,
		Identity:     identity,
		Clock:        fake,
		Logger:       logger,
		Defaults:     config.SLAConfig{DefaultResponseMinutes: 60, DefaultResolutionMinutes: 480},
	})
	escalations := NewEscalationService(EscalationDependencies{
		IssueRepo:      store.Issues(),
		EscalationRepo: store.Escalations(),
		Registry:       registry,
		Tracker:        sla,
		Transactor:     store,
		Dispatcher:     dispatcher,
		Identity:       identity,
		Clock:          fake,
		Logger:         logger,
		Policy:         policy,
	})
	issues := NewIssueService(IssueDependencies{
		IssueRepo:  store.Issues(),
		Registry:   registry,
		Tracker:    sla,
		Transactor: store,
		Dispatcher: dispatcher,
		Identity:   identity,
		Clock:      fake,
		Logger:     logger,
	})
	return &harness{
		store:       store,
		clock:       fake,
		registry:    registry,
		sla:         sla,
		escalations: escalations,
		issues:      issues,
		events:      log,
		dispatcher:  dispatcher,
	}
}

// sweep runs the per-issue sweep steps in the order the worker does.
func (h *harness) sweep(t *testing.T, issueID string) (bool, BreachResult) {
	t.Helper()
	escalated, err := h.escalations.AutoEvaluate(context.Background(), issueID)
	require.NoError(t, err)
	breaches, err := h.sla.CheckBreaches(context.Background(), issueID)
	require.NoError(t, err)
	return escalated, breaches
}

func (h *harness) addRule(t *testing.T, input RuleInput) *domain.EscalationRule {
	t.Helper()
	rule, err := h.registry.Create(context.Background(), input)
	require.NoError(t, err)
	return rule
}

func (h *harness) newIssue(t *testing.T, svc domain.RelatedService, priority domain.IssuePriority) *domain.Issue {
	t.Helper()
	issue, err := h.issues.Create(context.Background(), CreateIssueInput{
		Title:          "Printer on fire",
		Description:    "Third floor",
		Priority:       priority,
		RelatedService: svc,
	})
	require.NoError(t, err)
	return issue
}

func assetHighMatrix(t *testing.T, h *harness) {
	t.Helper()
	h.addRule(t, RuleInput{
		RelatedService:         domain.ServiceAsset,
		Priority:               domain.IssuePriorityHigh,
		SupportLevel:           domain.SupportLevelL1,
		InitialAssignmentLevel: domain.SupportLevelL1,
		EscalateToLevel:        ptr(domain.SupportLevelL2),
		EscalationTimeMinutes:  ptr(30),
		ResponseTimeMinutes:    15,
		ResolutionTimeMinutes:  240,
	})
}
