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

// IssueService coordinates issue lifecycle workflows.
type IssueService struct {
	issues   repository.IssueRepository
	registry Registry
	tracker  Tracker
	identity IdentityProvider
	clock    clock.Clock
	logger   *zap.Logger
	tx       txRunner
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	Registry   Registry
	Tracker    Tracker
	Transactor repository.Transactor
	Dispatcher events.Dispatcher
	Identity   IdentityProvider
	Clock      clock.Clock
	Logger     *zap.Logger
}

// CreateIssueInput describes issue creation payload.
type CreateIssueInput struct {
	Title          string
	Description    string
	Priority       domain.IssuePriority
	RelatedService domain.RelatedService
}

// IssueListFilter describes listing filters.
type IssueListFilter struct {
	Statuses   []domain.IssueStatus
	Services   []domain.RelatedService
	Priorities []domain.IssuePriority
	ReportedBy *string
	AssignedTo *string
	Limit      int
	Offset     int
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:   deps.IssueRepo,
		registry: deps.Registry,
		tracker:  deps.Tracker,
		identity: deps.Identity,
		clock:    deps.Clock,
		logger:   deps.Logger,
		tx: txRunner{
			transactor: deps.Transactor,
			dispatcher: deps.Dispatcher,
			clock:      deps.Clock,
			logger:     deps.Logger,
		},
	}
}

// Create opens an issue reported by the current user, at the tier the
// matrix assigns, together with its SLA tracking.
func (s *IssueService) Create(ctx context.Context, input CreateIssueInput) (*domain.Issue, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if input.Priority == "" {
		input.Priority = domain.IssuePriorityMedium
	}
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if !input.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if !input.RelatedService.Valid() {
		details["related_service"] = "unknown service"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid issue", details)
	}

	level, err := s.registry.InitialLevelFor(ctx, input.RelatedService, input.Priority)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issue := &domain.Issue{
		ID:                  uuid.NewString(),
		Title:               title,
		Description:         strings.TrimSpace(input.Description),
		Status:              domain.IssueStatusOpen,
		Priority:            input.Priority,
		RelatedService:      input.RelatedService,
		ReportedBy:          actor,
		CurrentSupportLevel: level,
		InitialSupportLevel: level,
		CreatedBy:           actor,
		UpdatedBy:           actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		if err := s.issues.Create(ctx, issue); err != nil {
			return mapRepoError(err, "issue")
		}
		if _, err := s.tracker.CreateForIssue(ctx, issue); err != nil {
			return err
		}
		box.add(events.Event{
			Type:    events.EventIssueCreated,
			IssueID: issue.ID,
			ActorID: actor,
			Payload: events.IssueCreatedPayload{
				Title:          issue.Title,
				Priority:       issue.Priority,
				RelatedService: issue.RelatedService,
				SupportLevel:   issue.CurrentSupportLevel,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("issue created",
		zap.String("issue_id", issue.ID),
		zap.String("related_service", string(issue.RelatedService)),
		zap.String("priority", string(issue.Priority)),
		zap.String("level", string(issue.CurrentSupportLevel)))
	return issue, nil
}

// Transition moves an issue to newStatus if the lifecycle table allows it.
func (s *IssueService) Transition(ctx context.Context, issueID string, newStatus domain.IssueStatus, expectedVersion *int64) (*domain.Issue, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}

	var issue *domain.Issue
	err = s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		loaded, err := s.load(ctx, issueID, expectedVersion)
		if err != nil {
			return err
		}
		issue = loaded
		return s.changeStatus(ctx, box, issue, newStatus, actor)
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Assign hands the issue to assignee and puts it in progress.
func (s *IssueService) Assign(ctx context.Context, issueID, assignee string, expectedVersion *int64) (*domain.Issue, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, apperrors.NewValidationError("assignee is required", map[string]any{"assignee": "required"})
	}

	var issue *domain.Issue
	err = s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		loaded, err := s.load(ctx, issueID, expectedVersion)
		if err != nil {
			return err
		}
		issue = loaded
		if issue.Status.Terminal() {
			return apperrors.NewInvalidTransition("cannot assign an issue that is "+string(issue.Status), map[string]any{"status": issue.Status})
		}
		now := s.clock.Now()
		issue.AssignedTo = &assignee
		if issue.AssignedAt == nil {
			issue.AssignedAt = &now
		}
		box.add(events.Event{
			Type:    events.EventIssueAssigned,
			IssueID: issue.ID,
			ActorID: actor,
			Payload: events.IssueAssignedPayload{AssignedTo: assignee},
		})
		if issue.Status != domain.IssueStatusInProgress {
			return s.changeStatus(ctx, box, issue, domain.IssueStatusInProgress, actor)
		}
		issue.UpdatedBy = actor
		issue.UpdatedAt = now
		if err := s.issues.Update(ctx, issue); err != nil {
			return mapRepoError(err, "issue")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Resolve records the resolution text and moves the issue to RESOLVED.
func (s *IssueService) Resolve(ctx context.Context, issueID, resolution string, expectedVersion *int64) (*domain.Issue, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, apperrors.NewValidationError("resolution is required", map[string]any{"resolution": "required"})
	}

	var issue *domain.Issue
	err = s.tx.run(ctx, func(ctx context.Context, box *outbox) error {
		loaded, err := s.load(ctx, issueID, expectedVersion)
		if err != nil {
			return err
		}
		issue = loaded
		if !domain.CanTransition(issue.Status, domain.IssueStatusResolved) {
			return invalidStatusMove(issue.Status, domain.IssueStatusResolved)
		}
		issue.Resolution = &resolution
		return s.changeStatus(ctx, box, issue, domain.IssueStatusResolved, actor)
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Close moves a resolved issue to CLOSED.
func (s *IssueService) Close(ctx context.Context, issueID string, expectedVersion *int64) (*domain.Issue, error) {
	return s.Transition(ctx, issueID, domain.IssueStatusClosed, expectedVersion)
}

// Get returns one issue.
func (s *IssueService) Get(ctx context.Context, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, mapRepoError(err, "issue")
	}
	return issue, nil
}

// List returns issues matching filter.
func (s *IssueService) List(ctx context.Context, filter IssueListFilter) ([]domain.Issue, error) {
	return s.issues.List(ctx, repository.IssueFilter{
		Statuses:   filter.Statuses,
		Services:   filter.Services,
		Priorities: filter.Priorities,
		ReportedBy: filter.ReportedBy,
		AssignedTo: filter.AssignedTo,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// ListMine returns issues reported by the current user.
func (s *IssueService) ListMine(ctx context.Context, filter IssueListFilter) ([]domain.Issue, error) {
	actor, err := actorID(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	filter.ReportedBy = &actor
	return s.List(ctx, filter)
}

func (s *IssueService) load(ctx context.Context, issueID string, expectedVersion *int64) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, mapRepoError(err, "issue")
	}
	if err := checkExpectedVersion(expectedVersion, issue.Version, "issue"); err != nil {
		return nil, err
	}
	return issue, nil
}

// changeStatus applies a legal status move, persists it and hands the
// first response or resolution to the tracker.
func (s *IssueService) changeStatus(ctx context.Context, box *outbox, issue *domain.Issue, next domain.IssueStatus, actor string) error {
	if !domain.CanTransition(issue.Status, next) {
		return invalidStatusMove(issue.Status, next)
	}
	now := s.clock.Now()
	old := issue.Status
	issue.Status = next
	switch next {
	case domain.IssueStatusInProgress:
		if issue.FirstResponseAt == nil {
			issue.FirstResponseAt = &now
		}
	case domain.IssueStatusResolved:
		if issue.ResolvedAt == nil {
			issue.ResolvedAt = &now
		}
	}
	issue.UpdatedBy = actor
	issue.UpdatedAt = now
	if err := s.issues.Update(ctx, issue); err != nil {
		return mapRepoError(err, "issue")
	}

	switch next {
	case domain.IssueStatusInProgress:
		if _, err := s.tracker.RecordFirstResponse(ctx, issue); err != nil {
			return err
		}
	case domain.IssueStatusResolved:
		if _, err := s.tracker.RecordResolution(ctx, issue); err != nil {
			return err
		}
	}

	box.add(events.Event{
		Type:    events.EventIssueStatusChanged,
		IssueID: issue.ID,
		ActorID: actor,
		Payload: events.IssueStatusChangedPayload{OldStatus: old, NewStatus: next},
	})
	return nil
}

func invalidStatusMove(from, to domain.IssueStatus) error {
	return apperrors.NewInvalidTransition("status transition not allowed", map[string]any{
		"from":    from,
		"to":      to,
		"allowed": domain.AllowedTransitions(from),
	})
}
