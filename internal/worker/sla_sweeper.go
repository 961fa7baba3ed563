package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// SweepLockKey is the Redis key guarding a sweep cycle.
const SweepLockKey = "helpdesk:sla-sweep"

// IssueSource lists issues that still need watching.
type IssueSource interface {
	ListOpen(ctx context.Context) ([]domain.Issue, error)
}

// Escalator runs automatic escalation for one issue.
type Escalator interface {
	AutoEvaluate(ctx context.Context, issueID string) (bool, error)
}

// BreachChecker flags SLA breaches for one issue.
type BreachChecker interface {
	CheckBreaches(ctx context.Context, issueID string) (service.BreachResult, error)
}

// Locker guards a cycle against concurrent runs.
type Locker interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (persistence.ReleaseFunc, bool, error)
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	Issues    IssueSource
	Escalator Escalator
	Breaches  BreachChecker
	Lock      Locker
	Clock     clock.Clock
	Logger    *zap.Logger
	Config    config.SweepConfig
}

// CycleResult summarizes one sweep cycle.
type CycleResult struct {
	Processed   int
	Escalations int
	Breaches    int
	Failures    int
	Duration    time.Duration
	Skipped     bool
}

// SLASweeper periodically escalates overdue issues and flags SLA breaches.
type SLASweeper struct {
	issues    IssueSource
	escalator Escalator
	breaches  BreachChecker
	lock      Locker
	clock     clock.Clock
	logger    *zap.Logger
	cfg       config.SweepConfig
}

// NewSLASweeper constructs the sweeper. A nil lock falls back to an
// in-process one.
func NewSLASweeper(deps SweeperDependencies) *SLASweeper {
	cfg := deps.Config
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.IssueTimeout <= 0 {
		cfg.IssueTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	lock := deps.Lock
	if lock == nil {
		lock = &persistence.LocalLock{}
	}
	return &SLASweeper{
		issues:    deps.Issues,
		escalator: deps.Escalator,
		breaches:  deps.Breaches,
		lock:      lock,
		clock:     deps.Clock,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *SLASweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sla sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sla sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sla sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single cycle. Failures of individual issues are counted
// in the result; only failing to list issues or take the lock is an error.
func (s *SLASweeper) RunOnce(ctx context.Context) (CycleResult, error) {
	release, ok, err := s.lock.TryAcquire(ctx, s.cfg.LockTTL)
	if err != nil {
		observability.SweepCycles.WithLabelValues("failed").Inc()
		return CycleResult{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		observability.SweepCycles.WithLabelValues("skipped").Inc()
		s.logger.Debug("sla sweep skipped; lock held elsewhere")
		return CycleResult{Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release sweep lock", zap.Error(err))
		}
	}()

	started := time.Now()
	issues, err := s.issues.ListOpen(ctx)
	if err != nil {
		observability.SweepCycles.WithLabelValues("failed").Inc()
		return CycleResult{}, fmt.Errorf("list open issues: %w", err)
	}

	var (
		mu     sync.Mutex
		result CycleResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range issues {
		issueID := issues[i].ID
		g.Go(func() error {
			outcome, err := s.sweepIssue(gctx, issueID)
			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if err != nil {
				result.Failures++
				observability.SweepIssueFailures.Inc()
				s.logger.Warn("sla sweep step failed",
					zap.String("issue_id", issueID),
					zap.Error(err))
				return nil
			}
			if outcome.escalated {
				result.Escalations++
			}
			result.Breaches += outcome.breaches.Count()
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(started)
	observability.SweepCycles.WithLabelValues("completed").Inc()
	observability.SweepDuration.Observe(result.Duration.Seconds())
	s.logger.Info("sla sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("escalations", result.Escalations),
		zap.Int("breaches", result.Breaches),
		zap.Int("failures", result.Failures),
		zap.Duration("duration", result.Duration))
	return result, nil
}

type issueOutcome struct {
	escalated bool
	breaches  service.BreachResult
}

// sweepIssue runs both steps for one issue under the per-issue timeout. A
// step that ignores cancellation is abandoned once the timeout expires.
func (s *SLASweeper) sweepIssue(ctx context.Context, issueID string) (issueOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IssueTimeout)
	defer cancel()

	type reply struct {
		outcome issueOutcome
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		var r reply
		defer func() {
			if p := recover(); p != nil {
				r = reply{err: fmt.Errorf("panic: %v", p)}
			}
			done <- r
		}()
		escalated, err := s.escalator.AutoEvaluate(ctx, issueID)
		if err != nil {
			r.err = fmt.Errorf("auto escalate: %w", err)
			return
		}
		r.outcome.escalated = escalated
		breaches, err := s.breaches.CheckBreaches(ctx, issueID)
		if err != nil {
			r.err = fmt.Errorf("check breaches: %w", err)
			return
		}
		r.outcome.breaches = breaches
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-ctx.Done():
		return issueOutcome{}, fmt.Errorf("issue timed out after %s: %w", s.cfg.IssueTimeout, ctx.Err())
	}
}
