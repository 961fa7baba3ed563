package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type staticIssues struct {
	issues []domain.Issue
	err    error
}

func (s staticIssues) ListOpen(context.Context) ([]domain.Issue, error) {
	return s.issues, s.err
}

type scriptedEscalator struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, issueID string) (bool, error)
}

func (e *scriptedEscalator) AutoEvaluate(ctx context.Context, issueID string) (bool, error) {
	e.mu.Lock()
	e.calls = append(e.calls, issueID)
	e.mu.Unlock()
	if e.fn == nil {
		return false, nil
	}
	return e.fn(ctx, issueID)
}

type scriptedChecker struct {
	fn func(ctx context.Context, issueID string) (service.BreachResult, error)
}

func (c scriptedChecker) CheckBreaches(ctx context.Context, issueID string) (service.BreachResult, error) {
	if c.fn == nil {
		return service.BreachResult{}, nil
	}
	return c.fn(ctx, issueID)
}

type heldLock struct{}

func (heldLock) TryAcquire(context.Context, time.Duration) (persistence.ReleaseFunc, bool, error) {
	return nil, false, nil
}

func openIssues(ids ...string) staticIssues {
	out := make([]domain.Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Issue{ID: id, Status: domain.IssueStatusOpen})
	}
	return staticIssues{issues: out}
}

func newTestSweeper(t *testing.T, deps SweeperDependencies) *SLASweeper {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = clock.Fake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	}
	deps.Logger = zaptest.NewLogger(t)
	if deps.Config.Concurrency == 0 {
		deps.Config = config.SweepConfig{Interval: time.Minute, IssueTimeout: time.Second, Concurrency: 2}
	}
	return NewSLASweeper(deps)
}

func TestRunOnceCountsEscalationsAndBreaches(t *testing.T) {
	esc := &scriptedEscalator{fn: func(_ context.Context, id string) (bool, error) {
		return id == "a", nil
	}}
	checker := scriptedChecker{fn: func(_ context.Context, id string) (service.BreachResult, error) {
		return service.BreachResult{Response: id == "b", Resolution: id == "b"}, nil
	}}
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    openIssues("a", "b", "c"),
		Escalator: esc,
		Breaches:  checker,
	})

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Escalations)
	assert.Equal(t, 2, result.Breaches)
	assert.Zero(t, result.Failures)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, esc.calls)
}

func TestRunOnceIsolatesFailingAndPanickingIssues(t *testing.T) {
	esc := &scriptedEscalator{fn: func(_ context.Context, id string) (bool, error) {
		switch id {
		case "broken":
			return false, errors.New("db gone")
		case "panics":
			panic("boom")
		}
		return true, nil
	}}
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    openIssues("ok-1", "broken", "panics", "ok-2"),
		Escalator: esc,
		Breaches:  scriptedChecker{},
	})

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 2, result.Failures)
	assert.Equal(t, 2, result.Escalations)
}

func TestRunOnceTimesOutSlowIssue(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	esc := &scriptedEscalator{fn: func(ctx context.Context, id string) (bool, error) {
		if id == "slow" {
			<-release
			return false, nil
		}
		return false, nil
	}}
	checker := scriptedChecker{fn: func(_ context.Context, id string) (service.BreachResult, error) {
		return service.BreachResult{Response: true}, nil
	}}
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    openIssues("slow", "fast"),
		Escalator: esc,
		Breaches:  checker,
		Config:    config.SweepConfig{Interval: time.Minute, IssueTimeout: 50 * time.Millisecond, Concurrency: 2},
	})

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 1, result.Breaches)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	esc := &scriptedEscalator{}
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    openIssues("a"),
		Escalator: esc,
		Breaches:  scriptedChecker{},
		Lock:      heldLock{},
	})

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, esc.calls)
}

func TestRunOnceReportsListFailure(t *testing.T) {
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    staticIssues{err: errors.New("connection refused")},
		Escalator: &scriptedEscalator{},
		Breaches:  scriptedChecker{},
	})

	_, err := sweeper.RunOnce(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunSweepsOnTick(t *testing.T) {
	fake := clock.Fake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	var calls atomic.Int32
	esc := &scriptedEscalator{fn: func(context.Context, string) (bool, error) {
		calls.Add(1)
		return false, nil
	}}
	sweeper := newTestSweeper(t, SweeperDependencies{
		Issues:    openIssues("a"),
		Escalator: esc,
		Breaches:  scriptedChecker{},
		Clock:     fake,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		fake.Advance(time.Minute)
		return calls.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
