package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// SLAService tracks response and resolution budgets per issue.
type SLAService struct {
	trackings repository.SLATrackingRepository
	issues    repository.IssueRepository
	registry  Registry
	identity  IdentityProvider
	clock     clock.Clock
	logger    *zap.Logger
	defaults  config.SLAConfig
	tx        txRunner
}

// SLADependencies bundles collaborators for the SLA tracker.
type SLADependencies struct {
	TrackingRepo repository.SLATrackingRepository
	IssueRepo    repository.IssueRepository
	Registry     Registry
	Transactor   repository.Transactor
	Dispatcher   events.Dispatcher
	Identity     IdentityProvider
	Clock        clock.Clock
	Logger       *zap.Logger
	Defaults     config.SLAConfig
}

// BreachResult reports what one breach check newly flagged.
type BreachResult struct {
	Response   bool
	Resolution bool
}

// Count returns the number of breaches flagged.
func (r BreachResult) Count() int {
	n := 0
	if r.Response {
		n++
	}
	if r.Resolution {
		n++
	}
	return n
}

// NewSLAService constructs the service. Zero defaults fall back to 60/480.
func NewSLAService(deps SLADependencies) *SLAService {
	defaults := deps.Defaults
	if defaults.DefaultResponseMinutes <= 0 {
		defaults.DefaultResponseMinutes = 60
	}
	if defaults.DefaultResolutionMinutes <= 0 {
		defaults.DefaultResolutionMinutes = 480
	}
	return &SLAService{
		trackings: deps.TrackingRepo,
		issues:    deps.IssueRepo,
		registry:  deps.Registry,
		identity:  deps.Identity,
		clock:     deps.Clock,
		logger:    deps.Logger,
		defaults:  defaults,
		tx: txRunner{
			transactor: deps.Transactor,
			dispatcher: deps.Dispatcher,
			clock:      deps.Clock,
			logger:     deps.Logger,
		},
	}
}

// CreateForIssue seeds tracking from the rule for the issue's initial tier.
// Both budgets are measured from issue creation for the life of the issue.
func (s *SLAService) CreateForIssue(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error) {
	response, resolution := s.defaults.DefaultResponseMinutes, s.defaults.DefaultResolutionMinutes
	rule, err := s.registry.Lookup(ctx, issue.RelatedService, issue.Priority, issue.InitialSupportLevel)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		response, resolution = rule.ResponseTimeMinutes, rule.ResolutionTimeMinutes
	} else {
		s.logger.Info("escalation matrix gap; using default SLA targets",
			zap.String("issue_id", issue.ID),
			zap.String("related_service", string(issue.RelatedService)),
			zap.String("priority", string(issue.Priority)),
			zap.String("level", string(issue.InitialSupportLevel)))
	}

	now := s.clock.Now()
	tracking := &domain.SLATracking{
		ID:                    uuid.NewString(),
		IssueID:               issue.ID,
		ResponseTimeMinutes:   response,
		ResolutionTimeMinutes: resolution,
		TargetsAppliedAt:      issue.CreatedAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.trackings.Create(ctx, tracking); err != nil {
		return nil, mapRepoError(err, "sla tracking")
	}
	return tracking, nil
}

// Retarget applies the targets of the rule for level. Budgets keep counting
// from issue creation, so a target already exceeded stays exceeded. Without
// a rule the current targets stay. Breach stamps and recorded actuals are
// never touched.
func (s *SLAService) Retarget(ctx context.Context, issue *domain.Issue, level domain.SupportLevel) error {
	rule, err := s.registry.Lookup(ctx, issue.RelatedService, issue.Priority, level)
	if err != nil {
		return err
	}
	if rule == nil {
		s.logger.Info("escalation matrix gap; SLA targets unchanged",
			zap.String("issue_id", issue.ID),
			zap.String("level", string(level)))
		return nil
	}

	return s.tx.run(ctx, func(ctx context.Context, _ *outbox) error {
		tracking, err := s.trackings.GetByIssue(ctx, issue.ID)
		if err != nil {
			return mapRepoError(err, "sla tracking")
		}
		now := s.clock.Now()
		tracking.ResponseTimeMinutes = rule.ResponseTimeMinutes
		tracking.ResolutionTimeMinutes = rule.ResolutionTimeMinutes
		tracking.TargetsAppliedAt = now
		tracking.UpdatedAt = now
		return mapRepoError(s.trackings.Update(ctx, tracking), "sla tracking")
	})
}

// RecordFirstResponse evaluates the response budget at issue.FirstResponseAt
// (now when unset). A second call changes nothing.
func (s *SLAService) RecordFirstResponse(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error) {
	var tracking *domain.SLATracking
	err := s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		t, err := s.trackings.GetByIssue(ctx, issue.ID)
		if err != nil {
			return mapRepoError(err, "sla tracking")
		}
		tracking = t
		if t.FirstResponseAt != nil {
			return nil
		}
		at := s.clock.Now()
		if issue.FirstResponseAt != nil {
			at = *issue.FirstResponseAt
		}
		t.FirstResponseAt = &at
		actual := domain.WholeMinutesBetween(issue.CreatedAt, at)
		t.ActualResponseTimeMinutes = &actual
		met := t.ResponseSLABreachAt == nil && actual <= t.ResponseTimeMinutes
		t.ResponseSLAMet = &met
		if !met && t.ResponseSLABreachAt == nil {
			t.ResponseSLABreachAt = &at
			box.add(breachEvent(issue.ID, domain.BreachKindResponse, t.ResponseTimeMinutes, at))
		}
		t.UpdatedAt = s.clock.Now()
		return mapRepoError(s.trackings.Update(ctx, t), "sla tracking")
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

// RecordResolution evaluates the resolution budget at issue.ResolvedAt
// (now when unset). A second call changes nothing.
func (s *SLAService) RecordResolution(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error) {
	var tracking *domain.SLATracking
	err := s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		t, err := s.trackings.GetByIssue(ctx, issue.ID)
		if err != nil {
			return mapRepoError(err, "sla tracking")
		}
		tracking = t
		if t.ResolvedAt != nil {
			return nil
		}
		at := s.clock.Now()
		if issue.ResolvedAt != nil {
			at = *issue.ResolvedAt
		}
		t.ResolvedAt = &at
		actual := domain.WholeMinutesBetween(issue.CreatedAt, at)
		t.ActualResolutionTimeMinutes = &actual
		met := t.ResolutionSLABreachAt == nil && actual <= t.ResolutionTimeMinutes
		t.ResolutionSLAMet = &met
		if !met && t.ResolutionSLABreachAt == nil {
			t.ResolutionSLABreachAt = &at
			box.add(breachEvent(issue.ID, domain.BreachKindResolution, t.ResolutionTimeMinutes, at))
		}
		t.UpdatedAt = s.clock.Now()
		return mapRepoError(s.trackings.Update(ctx, t), "sla tracking")
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

// MarkFirstResponse records a first response on an issue by id on behalf
// of the current user, stamping the issue as well when needed. Resolved and
// closed issues are rejected.
func (s *SLAService) MarkFirstResponse(ctx context.Context, issueID string) (*domain.SLATracking, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	var tracking *domain.SLATracking
	err = s.tx.run(ctx, func(ctx context.Context, _ *outbox) error {
		issue, err := s.issues.GetByID(ctx, issueID)
		if err != nil {
			return mapRepoError(err, "issue")
		}
		if issue.Status.Terminal() {
			return apperrors.NewConflict("issue is no longer active", map[string]any{"status": issue.Status})
		}
		if issue.FirstResponseAt == nil {
			now := s.clock.Now()
			issue.FirstResponseAt = &now
			issue.UpdatedBy = actor
			issue.UpdatedAt = now
			if err := s.issues.Update(ctx, issue); err != nil {
				return mapRepoError(err, "issue")
			}
		}
		tracking, err = s.RecordFirstResponse(ctx, issue)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracking, nil
}

// CheckBreaches flags budgets of one open issue that ran out without a
// recorded response or resolution. It never changes the issue itself.
func (s *SLAService) CheckBreaches(ctx context.Context, issueID string) (BreachResult, error) {
	var result BreachResult
	err := s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		issue, err := s.issues.GetByID(ctx, issueID)
		if err != nil {
			return mapRepoError(err, "issue")
		}
		if issue.Status.Terminal() {
			return nil
		}
		t, err := s.trackings.GetByIssue(ctx, issueID)
		if err != nil {
			return mapRepoError(err, "sla tracking")
		}

		now := s.clock.Now()
		elapsed := domain.WholeMinutesBetween(issue.CreatedAt, now)
		if t.FirstResponseAt == nil && issue.FirstResponseAt == nil &&
			t.ResponseSLABreachAt == nil && elapsed > t.ResponseTimeMinutes {
			t.ResponseSLABreachAt = &now
			t.ResponseSLAMet = ptr(false)
			result.Response = true
			box.add(breachEvent(issueID, domain.BreachKindResponse, t.ResponseTimeMinutes, now))
		}
		if t.ResolvedAt == nil && issue.ResolvedAt == nil &&
			t.ResolutionSLABreachAt == nil && elapsed > t.ResolutionTimeMinutes {
			t.ResolutionSLABreachAt = &now
			t.ResolutionSLAMet = ptr(false)
			result.Resolution = true
			box.add(breachEvent(issueID, domain.BreachKindResolution, t.ResolutionTimeMinutes, now))
		}
		if result.Count() == 0 {
			return nil
		}
		t.UpdatedAt = now
		return mapRepoError(s.trackings.Update(ctx, t), "sla tracking")
	})
	if err != nil {
		return BreachResult{}, err
	}
	return result, nil
}

// Get returns the tracking record of an issue.
func (s *SLAService) Get(ctx context.Context, issueID string) (*domain.SLATracking, error) {
	tracking, err := s.trackings.GetByIssue(ctx, issueID)
	if err != nil {
		return nil, mapRepoError(err, "sla tracking")
	}
	return tracking, nil
}

// ListBreaches returns every record with a missed budget.
func (s *SLAService) ListBreaches(ctx context.Context) ([]domain.SLATracking, error) {
	return s.trackings.ListBreaches(ctx)
}

func breachEvent(issueID string, kind domain.BreachKind, target int, at time.Time) events.Event {
	return events.Event{
		Type:    events.EventSLABreached,
		IssueID: issueID,
		ActorID: domain.SystemActor,
		Payload: events.SLABreachedPayload{Kind: kind, TargetMinutes: target, BreachedAt: at},
	}
}
