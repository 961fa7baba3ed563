package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AutoEscalationReason is recorded on every escalation made by the sweep.
const AutoEscalationReason = "SLA time exceeded"

const defaultManualReason = "Manual escalation"

// EscalationPolicy holds the tunable rules for manual tier moves.
type EscalationPolicy struct {
	// AllowManualSkipTier permits manual upward moves of more than one tier.
	AllowManualSkipTier bool
}

// EscalationService validates and executes tier changes.
type EscalationService struct {
	issues      repository.IssueRepository
	escalations repository.IssueEscalationRepository
	registry    Registry
	tracker     Tracker
	identity    IdentityProvider
	clock       clock.Clock
	logger      *zap.Logger
	policy      EscalationPolicy
	tx          txRunner
}

// EscalationDependencies bundles collaborators for the engine.
type EscalationDependencies struct {
	IssueRepo      repository.IssueRepository
	EscalationRepo repository.IssueEscalationRepository
	Registry       Registry
	Tracker        Tracker
	Transactor     repository.Transactor
	Dispatcher     events.Dispatcher
	Identity       IdentityProvider
	Clock          clock.Clock
	Logger         *zap.Logger
	Policy         EscalationPolicy
}

// EscalateInput describes a manual escalation request.
type EscalateInput struct {
	IssueID         string
	TargetLevel     domain.SupportLevel
	Reason          string
	ExpectedVersion *int64
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		issues:      deps.IssueRepo,
		escalations: deps.EscalationRepo,
		registry:    deps.Registry,
		tracker:     deps.Tracker,
		identity:    deps.Identity,
		clock:       deps.Clock,
		logger:      deps.Logger,
		policy:      deps.Policy,
		tx: txRunner{
			transactor: deps.Transactor,
			dispatcher: deps.Dispatcher,
			clock:      deps.Clock,
			logger:     deps.Logger,
		},
	}
}

// Escalate moves an issue to input.TargetLevel on behalf of the current user.
func (s *EscalationService) Escalate(ctx context.Context, input EscalateInput) (*domain.IssueEscalation, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	if !input.TargetLevel.Valid() {
		return nil, apperrors.NewValidationError("invalid target level", map[string]any{"target_level": input.TargetLevel})
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultManualReason
	}

	var record *domain.IssueEscalation
	err = s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		issue, err := s.issues.GetByID(ctx, input.IssueID)
		if err != nil {
			return mapRepoError(err, "issue")
		}
		if err := checkExpectedVersion(input.ExpectedVersion, issue.Version, "issue"); err != nil {
			return err
		}
		if issue.Status.Terminal() {
			return apperrors.NewConflict("issue is no longer active", map[string]any{"status": issue.Status})
		}
		if err := s.validateManualMove(issue.CurrentSupportLevel, input.TargetLevel); err != nil {
			return err
		}
		record, err = s.apply(ctx, box, issue, input.TargetLevel, reason, actor, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *EscalationService) validateManualMove(current, target domain.SupportLevel) error {
	details := map[string]any{"from_level": current, "to_level": target}
	switch {
	case target == current:
		return apperrors.NewInvalidTransition("issue is already at the requested level", details)
	case target.Above(current):
		if !s.policy.AllowManualSkipTier && target.Rank()-current.Rank() > 1 {
			return apperrors.NewInvalidTransition("manual escalation may only move up one tier", details)
		}
	default:
		if current.Rank()-target.Rank() != 1 {
			return apperrors.NewInvalidTransition("de-escalation may only move down one tier", details)
		}
	}
	return nil
}

// AutoEvaluate escalates the issue one tier when the matrix rule for its
// current tier says its time is up. It reports whether an escalation
// happened. Resolved or closed issues and tiers without a timed rule are
// left alone.
func (s *EscalationService) AutoEvaluate(ctx context.Context, issueID string) (bool, error) {
	escalated := false
	err := s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		issue, err := s.issues.GetByID(ctx, issueID)
		if err != nil {
			return mapRepoError(err, "issue")
		}
		if issue.Status.Terminal() {
			return nil
		}
		rule, err := s.registry.Lookup(ctx, issue.RelatedService, issue.Priority, issue.CurrentSupportLevel)
		if err != nil {
			return err
		}
		if rule == nil {
			s.logger.Debug("no escalation rule; issue never auto-escalates",
				zap.String("issue_id", issue.ID),
				zap.String("level", string(issue.CurrentSupportLevel)))
			return nil
		}
		if !rule.AutoEscalates() {
			return nil
		}
		target := *rule.EscalateToLevel
		if !target.Above(issue.CurrentSupportLevel) {
			s.logger.Warn("escalation rule does not point upward; skipping",
				zap.String("issue_id", issue.ID),
				zap.String("rule_id", rule.ID),
				zap.String("level", string(issue.CurrentSupportLevel)),
				zap.String("escalate_to", string(target)))
			return nil
		}
		elapsed := domain.WholeMinutesBetween(issue.EscalationAnchor(), s.clock.Now())
		if elapsed < *rule.EscalationTimeMinutes {
			return nil
		}
		if _, err := s.apply(ctx, box, issue, target, AutoEscalationReason, domain.SystemActor, true); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return escalated, nil
}

// apply records the move, updates the issue and retargets its SLA inside
// the caller's transaction.
func (s *EscalationService) apply(ctx context.Context, box *outbox, issue *domain.Issue, target domain.SupportLevel, reason, actor string, automatic bool) (*domain.IssueEscalation, error) {
	now := s.clock.Now()
	from := issue.CurrentSupportLevel
	record := &domain.IssueEscalation{
		ID:          uuid.NewString(),
		IssueID:     issue.ID,
		FromLevel:   &from,
		ToLevel:     target,
		EscalatedAt: now,
		Reason:      reason,
		EscalatedBy: actor,
		Automatic:   automatic,
	}
	if err := s.escalations.Create(ctx, record); err != nil {
		return nil, mapRepoError(err, "issue escalation")
	}

	issue.CurrentSupportLevel = target
	issue.EscalationCount++
	issue.LastEscalatedAt = &now
	issue.UpdatedBy = actor
	issue.UpdatedAt = now
	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, mapRepoError(err, "issue")
	}
	if err := s.tracker.Retarget(ctx, issue, target); err != nil {
		return nil, err
	}

	box.add(events.Event{
		Type:    events.EventIssueEscalated,
		IssueID: issue.ID,
		ActorID: actor,
		Payload: events.IssueEscalatedPayload{
			FromLevel:       from,
			ToLevel:         target,
			Reason:          reason,
			Automatic:       automatic,
			EscalationCount: issue.EscalationCount,
		},
	})
	s.logger.Info("issue escalated",
		zap.String("issue_id", issue.ID),
		zap.String("from_level", string(from)),
		zap.String("to_level", string(target)),
		zap.Bool("automatic", automatic),
		zap.String("escalated_by", actor))
	return record, nil
}

// ListEscalations returns the history of an issue, newest first.
func (s *EscalationService) ListEscalations(ctx context.Context, issueID string) ([]domain.IssueEscalation, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, mapRepoError(err, "issue")
	}
	return s.escalations.ListByIssue(ctx, issueID)
}
