package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MemoryStore keeps every table in process memory. It backs local runs
// without POSTGRES_DSN and the service tests. Transactions are serialized
// and roll back by restoring a snapshot.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	issues      map[string]domain.Issue
	rules       map[string]domain.EscalationRule
	escalations []domain.IssueEscalation
	trackings   map[string]domain.SLATracking // keyed by issue id
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:    map[string]domain.Issue{},
		rules:     map[string]domain.EscalationRule{},
		trackings: map[string]domain.SLATracking{},
	}
}

type memTxKey struct{}

type memSnapshot struct {
	issues      map[string]domain.Issue
	rules       map[string]domain.EscalationRule
	escalations []domain.IssueEscalation
	trackings   map[string]domain.SLATracking
}

// InTx implements Transactor.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
		if err != nil {
			s.restore(snap)
		}
	}()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		issues:      make(map[string]domain.Issue, len(s.issues)),
		rules:       make(map[string]domain.EscalationRule, len(s.rules)),
		escalations: append([]domain.IssueEscalation(nil), s.escalations...),
		trackings:   make(map[string]domain.SLATracking, len(s.trackings)),
	}
	for k, v := range s.issues {
		snap.issues[k] = v
	}
	for k, v := range s.rules {
		snap.rules[k] = v
	}
	for k, v := range s.trackings {
		snap.trackings[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = snap.issues
	s.rules = snap.rules
	s.escalations = snap.escalations
	s.trackings = snap.trackings
}

// Issues returns the issue repository view.
func (s *MemoryStore) Issues() IssueRepository { return memIssues{s} }

// Rules returns the escalation matrix repository view.
func (s *MemoryStore) Rules() EscalationRuleRepository { return memRules{s} }

// Escalations returns the escalation history repository view.
func (s *MemoryStore) Escalations() IssueEscalationRepository { return memEscalations{s} }

// SLA returns the SLA tracking repository view.
func (s *MemoryStore) SLA() SLATrackingRepository { return memSLA{s} }

type memIssues struct{ s *MemoryStore }

func (m memIssues) Create(_ context.Context, issue *domain.Issue) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.issues[issue.ID]; ok {
		return ErrDuplicate
	}
	if issue.Version == 0 {
		issue.Version = 1
	}
	m.s.issues[issue.ID] = cloneIssue(*issue)
	return nil
}

func (m memIssues) Update(_ context.Context, issue *domain.Issue) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.issues[issue.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != issue.Version {
		return ErrVersionConflict
	}
	issue.Version++
	next := cloneIssue(*issue)
	next.CreatedAt = stored.CreatedAt
	next.CreatedBy = stored.CreatedBy
	next.ReportedBy = stored.ReportedBy
	next.RelatedService = stored.RelatedService
	next.InitialSupportLevel = stored.InitialSupportLevel
	m.s.issues[issue.ID] = next
	return nil
}

func (m memIssues) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	issue, ok := m.s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneIssue(issue)
	return &out, nil
}

func (m memIssues) List(_ context.Context, filter IssueFilter) ([]domain.Issue, error) {
	m.s.mu.RLock()
	var matched []domain.Issue
	for _, issue := range m.s.issues {
		if filter.ReportedBy != nil && issue.ReportedBy != *filter.ReportedBy {
			continue
		}
		if filter.AssignedTo != nil && (issue.AssignedTo == nil || *issue.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, issue.Status) {
			continue
		}
		if len(filter.Services) > 0 && !contains(filter.Services, issue.RelatedService) {
			continue
		}
		if len(filter.Priorities) > 0 && !contains(filter.Priorities, issue.Priority) {
			continue
		}
		matched = append(matched, cloneIssue(issue))
	}
	m.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m memIssues) ListOpen(_ context.Context) ([]domain.Issue, error) {
	m.s.mu.RLock()
	var open []domain.Issue
	for _, issue := range m.s.issues {
		if !issue.Status.Terminal() {
			open = append(open, cloneIssue(issue))
		}
	}
	m.s.mu.RUnlock()
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

type memRules struct{ s *MemoryStore }

// activeTaken mirrors the partial unique index on active matrix slots.
func (m memRules) activeTaken(rule *domain.EscalationRule) bool {
	if !rule.Active {
		return false
	}
	for id, existing := range m.s.rules {
		if id != rule.ID && existing.Active && existing.Key() == rule.Key() {
			return true
		}
	}
	return false
}

func (m memRules) Create(_ context.Context, rule *domain.EscalationRule) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.rules[rule.ID]; ok || m.activeTaken(rule) {
		return ErrDuplicate
	}
	m.s.rules[rule.ID] = cloneRule(*rule)
	return nil
}

func (m memRules) Update(_ context.Context, rule *domain.EscalationRule) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.rules[rule.ID]
	if !ok {
		return ErrNotFound
	}
	if m.activeTaken(rule) {
		return ErrDuplicate
	}
	next := cloneRule(*rule)
	next.CreatedAt = stored.CreatedAt
	next.CreatedBy = stored.CreatedBy
	m.s.rules[rule.ID] = next
	return nil
}

func (m memRules) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.rules, id)
	return nil
}

func (m memRules) GetByID(_ context.Context, id string) (*domain.EscalationRule, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	rule, ok := m.s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRule(rule)
	return &out, nil
}

func (m memRules) List(_ context.Context, filter RuleFilter) ([]domain.EscalationRule, error) {
	m.s.mu.RLock()
	var out []domain.EscalationRule
	for _, rule := range m.s.rules {
		if filter.RelatedService != nil && rule.RelatedService != *filter.RelatedService {
			continue
		}
		if filter.Priority != nil && rule.Priority != *filter.Priority {
			continue
		}
		if filter.SupportLevel != nil && rule.SupportLevel != *filter.SupportLevel {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		out = append(out, cloneRule(rule))
	}
	m.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RelatedService != b.RelatedService {
			return a.RelatedService < b.RelatedService
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.SupportLevel != b.SupportLevel {
			return a.SupportLevel < b.SupportLevel
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (m memRules) FindActive(_ context.Context, key domain.RuleKey) (*domain.EscalationRule, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, rule := range m.s.rules {
		if rule.Active && rule.Key() == key {
			out := cloneRule(rule)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

type memEscalations struct{ s *MemoryStore }

func (m memEscalations) Create(_ context.Context, e *domain.IssueEscalation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.escalations = append(m.s.escalations, cloneEscalation(*e))
	return nil
}

func (m memEscalations) ListByIssue(_ context.Context, issueID string) ([]domain.IssueEscalation, error) {
	m.s.mu.RLock()
	var out []domain.IssueEscalation
	for i := len(m.s.escalations) - 1; i >= 0; i-- {
		if m.s.escalations[i].IssueID == issueID {
			out = append(out, cloneEscalation(m.s.escalations[i]))
		}
	}
	m.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EscalatedAt.After(out[j].EscalatedAt)
	})
	return out, nil
}

func (m memEscalations) CountByIssue(_ context.Context, issueID string) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	count := 0
	for _, e := range m.s.escalations {
		if e.IssueID == issueID {
			count++
		}
	}
	return count, nil
}

type memSLA struct{ s *MemoryStore }

func (m memSLA) Create(_ context.Context, t *domain.SLATracking) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.trackings[t.IssueID]; ok {
		return ErrDuplicate
	}
	if t.Version == 0 {
		t.Version = 1
	}
	m.s.trackings[t.IssueID] = cloneTracking(*t)
	return nil
}

func (m memSLA) Update(_ context.Context, t *domain.SLATracking) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.trackings[t.IssueID]
	if !ok || stored.ID != t.ID {
		return ErrNotFound
	}
	if stored.Version != t.Version {
		return ErrVersionConflict
	}
	t.Version++
	next := cloneTracking(*t)
	next.CreatedAt = stored.CreatedAt
	m.s.trackings[t.IssueID] = next
	return nil
}

func (m memSLA) GetByIssue(_ context.Context, issueID string) (*domain.SLATracking, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	t, ok := m.s.trackings[issueID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTracking(t)
	return &out, nil
}

func (m memSLA) ListBreaches(_ context.Context) ([]domain.SLATracking, error) {
	m.s.mu.RLock()
	var out []domain.SLATracking
	for _, t := range m.s.trackings {
		if t.Breached() {
			out = append(out, cloneTracking(t))
		}
	}
	m.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].IssueID < out[j].IssueID
	})
	return out, nil
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIssue(i domain.Issue) domain.Issue {
	i.AssignedTo = ptrCopy(i.AssignedTo)
	i.AssignedAt = ptrCopy(i.AssignedAt)
	i.FirstResponseAt = ptrCopy(i.FirstResponseAt)
	i.Resolution = ptrCopy(i.Resolution)
	i.ResolvedAt = ptrCopy(i.ResolvedAt)
	i.LastEscalatedAt = ptrCopy(i.LastEscalatedAt)
	return i
}

func cloneRule(r domain.EscalationRule) domain.EscalationRule {
	r.EscalateToLevel = ptrCopy(r.EscalateToLevel)
	r.EscalationTimeMinutes = ptrCopy(r.EscalationTimeMinutes)
	return r
}

func cloneEscalation(e domain.IssueEscalation) domain.IssueEscalation {
	e.FromLevel = ptrCopy(e.FromLevel)
	return e
}

func cloneTracking(t domain.SLATracking) domain.SLATracking {
	t.FirstResponseAt = ptrCopy(t.FirstResponseAt)
	t.ResolvedAt = ptrCopy(t.ResolvedAt)
	t.ResponseSLAMet = ptrCopy(t.ResponseSLAMet)
	t.ResolutionSLAMet = ptrCopy(t.ResolutionSLAMet)
	t.ResponseSLABreachAt = ptrCopy(t.ResponseSLABreachAt)
	t.ResolutionSLABreachAt = ptrCopy(t.ResolutionSLABreachAt)
	t.ActualResponseTimeMinutes = ptrCopy(t.ActualResponseTimeMinutes)
	t.ActualResolutionTimeMinutes = ptrCopy(t.ActualResolutionTimeMinutes)
	return t
}
