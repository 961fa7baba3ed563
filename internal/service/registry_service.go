package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// RegistryService manages the escalation matrix.
type RegistryService struct {
	rules      repository.EscalationRuleRepository
	transactor repository.Transactor
	identity   IdentityProvider
	clock      clock.Clock
	logger     *zap.Logger
}

// RegistryDependencies bundles collaborators for the registry.
type RegistryDependencies struct {
	RuleRepo   repository.EscalationRuleRepository
	Transactor repository.Transactor
	Identity   IdentityProvider
	Clock      clock.Clock
	Logger     *zap.Logger
}

// RuleInput describes a matrix rule write.
type RuleInput struct {
	RelatedService         domain.RelatedService
	Priority               domain.IssuePriority
	SupportLevel           domain.SupportLevel
	InitialAssignmentLevel domain.SupportLevel
	EscalateToLevel        *domain.SupportLevel
	EscalationTimeMinutes  *int
	ResponseTimeMinutes    int
	ResolutionTimeMinutes  int
	// Active defaults to true when nil.
	Active *bool
}

// NewRegistryService constructs the service.
func NewRegistryService(deps RegistryDependencies) *RegistryService {
	return &RegistryService{
		rules:      deps.RuleRepo,
		transactor: deps.Transactor,
		identity:   deps.Identity,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Lookup returns the active rule for the key, or nil when none exists.
func (s *RegistryService) Lookup(ctx context.Context, svc domain.RelatedService, priority domain.IssuePriority, level domain.SupportLevel) (*domain.EscalationRule, error) {
	rule, err := s.rules.FindActive(ctx, domain.RuleKey{RelatedService: svc, Priority: priority, SupportLevel: level})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// InitialLevelFor picks the starting tier for a new issue: the initial
// assignment level of the lowest-tier active rule for (svc, priority), or
// DefaultInitialLevel when the matrix has no entry.
func (s *RegistryService) InitialLevelFor(ctx context.Context, svc domain.RelatedService, priority domain.IssuePriority) (domain.SupportLevel, error) {
	rules, err := s.rules.List(ctx, repository.RuleFilter{RelatedService: &svc, Priority: &priority, ActiveOnly: true})
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		level := DefaultInitialLevel(priority)
		s.logger.Info("escalation matrix gap; using default initial level",
			zap.String("related_service", string(svc)),
			zap.String("priority", string(priority)),
			zap.String("level", string(level)))
		return level, nil
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].SupportLevel.Rank() < rules[j].SupportLevel.Rank()
	})
	return rules[0].InitialAssignmentLevel, nil
}

// DefaultInitialLevel is the tier used when no matrix rule matches.
func DefaultInitialLevel(priority domain.IssuePriority) domain.SupportLevel {
	switch priority {
	case domain.IssuePriorityCritical, domain.IssuePriorityHigh:
		return domain.SupportLevelL2
	default:
		return domain.SupportLevelL1
	}
}

// Create stores a new rule on behalf of the current user.
func (s *RegistryService) Create(ctx context.Context, input RuleInput) (*domain.EscalationRule, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	return s.createAs(ctx, input, actor)
}

func (s *RegistryService) createAs(ctx context.Context, input RuleInput, actor string) (*domain.EscalationRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	rule := &domain.EscalationRule{
		ID:        uuid.NewString(),
		CreatedBy: actor,
		CreatedAt: now,
	}
	applyRuleInput(rule, input, actor, now)

	err := s.transactor.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureSlotFree(ctx, rule); err != nil {
			return err
		}
		return mapRepoError(s.rules.Create(ctx, rule), "escalation rule")
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("escalation rule created",
		zap.String("rule_id", rule.ID),
		zap.String("related_service", string(rule.RelatedService)),
		zap.String("priority", string(rule.Priority)),
		zap.String("level", string(rule.SupportLevel)))
	return rule, nil
}

// Update replaces the rule identified by id.
func (s *RegistryService) Update(ctx context.Context, id string, input RuleInput) (*domain.EscalationRule, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}

	var rule *domain.EscalationRule
	err = s.transactor.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.rules.GetByID(ctx, id)
		if err != nil {
			return mapRepoError(err, "escalation rule")
		}
		applyRuleInput(existing, input, actor, s.clock.Now())
		if err := s.ensureSlotFree(ctx, existing); err != nil {
			return err
		}
		if err := s.rules.Update(ctx, existing); err != nil {
			return mapRepoError(err, "escalation rule")
		}
		rule = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule.
func (s *RegistryService) Delete(ctx context.Context, id string) error {
	if _, err := actorID(ctx, s.identity); err != nil {
		return err
	}
	return mapRepoError(s.rules.Delete(ctx, id), "escalation rule")
}

// Get returns one rule.
func (s *RegistryService) Get(ctx context.Context, id string) (*domain.EscalationRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "escalation rule")
	}
	return rule, nil
}

// List returns rules matching filter.
func (s *RegistryService) List(ctx context.Context, filter repository.RuleFilter) ([]domain.EscalationRule, error) {
	return s.rules.List(ctx, filter)
}

// ensureSlotFree enforces one active rule per matrix key.
func (s *RegistryService) ensureSlotFree(ctx context.Context, rule *domain.EscalationRule) error {
	if !rule.Active {
		return nil
	}
	existing, err := s.rules.FindActive(ctx, rule.Key())
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == rule.ID {
		return nil
	}
	return apperrors.NewConflict("an active escalation rule already exists for this service, priority and level", map[string]any{
		"existing_rule_id": existing.ID,
		"related_service":  rule.RelatedService,
		"priority":         rule.Priority,
		"support_level":    rule.SupportLevel,
	})
}

func applyRuleInput(rule *domain.EscalationRule, input RuleInput, actor string, now time.Time) {
	rule.RelatedService = input.RelatedService
	rule.Priority = input.Priority
	rule.SupportLevel = input.SupportLevel
	rule.InitialAssignmentLevel = input.InitialAssignmentLevel
	rule.EscalateToLevel = input.EscalateToLevel
	rule.EscalationTimeMinutes = input.EscalationTimeMinutes
	rule.ResponseTimeMinutes = input.ResponseTimeMinutes
	rule.ResolutionTimeMinutes = input.ResolutionTimeMinutes
	rule.Active = input.Active == nil || *input.Active
	rule.UpdatedBy = actor
	rule.UpdatedAt = now
}

func validateRuleInput(input RuleInput) error {
	details := map[string]any{}
	if !input.RelatedService.Valid() {
		details["related_service"] = "unknown service"
	}
	if !input.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if !input.SupportLevel.Valid() {
		details["support_level"] = "unknown level"
	}
	if !input.InitialAssignmentLevel.Valid() {
		details["initial_assignment_level"] = "unknown level"
	}
	if input.ResponseTimeMinutes <= 0 {
		details["response_time_minutes"] = "must be positive"
	}
	if input.ResolutionTimeMinutes <= 0 {
		details["resolution_time_minutes"] = "must be positive"
	}
	if input.EscalateToLevel != nil {
		if !input.EscalateToLevel.Valid() {
			details["escalate_to_level"] = "unknown level"
		} else if !input.EscalateToLevel.Above(input.SupportLevel) {
			details["escalate_to_level"] = "must be above support_level"
		}
	}
	if input.EscalationTimeMinutes != nil && *input.EscalationTimeMinutes <= 0 {
		details["escalation_time_minutes"] = "must be positive"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid escalation rule", details)
	}
	return nil
}
