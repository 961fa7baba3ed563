package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// IdentityProvider resolves the user acting on the current request.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (domain.Identity, error)
}

// Registry is the read side of the escalation matrix used by the other
// components.
type Registry interface {
	Lookup(ctx context.Context, svc domain.RelatedService, priority domain.IssuePriority, level domain.SupportLevel) (*domain.EscalationRule, error)
	InitialLevelFor(ctx context.Context, svc domain.RelatedService, priority domain.IssuePriority) (domain.SupportLevel, error)
}

// Tracker owns SLATracking records. Callers pass the issue they already
// hold inside their transaction.
type Tracker interface {
	CreateForIssue(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error)
	Retarget(ctx context.Context, issue *domain.Issue, level domain.SupportLevel) error
	RecordFirstResponse(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error)
	RecordResolution(ctx context.Context, issue *domain.Issue) (*domain.SLATracking, error)
}

// Engine executes tier changes.
type Engine interface {
	Escalate(ctx context.Context, input EscalateInput) (*domain.IssueEscalation, error)
	AutoEvaluate(ctx context.Context, issueID string) (bool, error)
}

func actorID(ctx context.Context, identity IdentityProvider) (string, error) {
	if identity == nil {
		return "", apperrors.NewUnauthorized("identity unavailable")
	}
	user, err := identity.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", apperrors.NewUnauthorized("identity unavailable")
	}
	return user.ID, nil
}

// mapRepoError turns repository sentinels into domain errors.
func mapRepoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently; reload and retry", nil)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", nil)
	}
	return err
}

func checkExpectedVersion(expected *int64, actual int64, resource string) error {
	if expected == nil || *expected == actual {
		return nil
	}
	return apperrors.NewConflict(resource+" version mismatch", map[string]any{
		"expected_version": *expected,
		"current_version":  actual,
	})
}

type outboxKey struct{}

// outbox collects events raised inside a transaction. Nested operations
// share the outermost outbox, so nothing is published before the outermost
// commit.
type outbox struct {
	mu      sync.Mutex
	pending []events.Event
}

// openOutbox returns the outbox bound to ctx. owner is true when this call
// created it and is therefore responsible for flushing it.
func openOutbox(ctx context.Context) (context.Context, *outbox, bool) {
	if box, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return ctx, box, false
	}
	box := &outbox{}
	return context.WithValue(ctx, outboxKey{}, box), box, true
}

func (o *outbox) add(event events.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, event)
}

func (o *outbox) drain() []events.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

// txRunner is the transaction plumbing shared by the services.
type txRunner struct {
	transactor repository.Transactor
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// run executes fn in one transaction. Events fn adds to the outbox are
// published once the outermost transaction has committed and dropped if it
// fails.
func (r txRunner) run(ctx context.Context, fn func(ctx context.Context, box *outbox) error) error {
	ctx, box, owner := openOutbox(ctx)
	err := r.transactor.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, box)
	})
	if !owner {
		return err
	}
	pending := box.drain()
	if err != nil {
		return err
	}
	publishAll(ctx, r.dispatcher, r.logger, r.clock.Now(), pending)
	return nil
}

// publishAll dispatches events of a committed transaction and records their
// metrics. Dispatch failures are logged and never surface to the caller.
func publishAll(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, now time.Time, pending []events.Event) {
	for _, event := range pending {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		switch payload := event.Payload.(type) {
		case events.IssueEscalatedPayload:
			trigger := "manual"
			if payload.Automatic {
				trigger = "automatic"
			}
			observability.Escalations.WithLabelValues(trigger).Inc()
		case events.SLABreachedPayload:
			observability.SLABreaches.WithLabelValues(string(payload.Kind)).Inc()
			logger.Info("sla breached",
				zap.String("issue_id", event.IssueID),
				zap.String("kind", string(payload.Kind)),
				zap.Int("target_minutes", payload.TargetMinutes))
		}
		if dispatcher == nil {
			continue
		}
		if err := dispatcher.Publish(ctx, event); err != nil {
			logger.Warn("event dispatch failed",
				zap.String("event_type", string(event.Type)),
				zap.String("issue_id", event.IssueID),
				zap.Error(err))
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
