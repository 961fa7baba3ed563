package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

const deliveryTimeout = 10 * time.Second

// NotificationChannel delivers one event to an outside system.
type NotificationChannel interface {
	Name() string
	Deliver(ctx context.Context, event events.Event) error
}

// NotificationService fans domain events out to the configured channels.
// Events are queued without blocking the publisher; a full queue drops the
// event.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	channels   []NotificationChannel
	queue      chan events.Event

	mu     sync.RWMutex
	closed bool
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, channels ...NotificationChannel) *NotificationService {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		channels:   channels,
		queue:      make(chan events.Event, size),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.enqueue)
}

func (n *NotificationService) enqueue(_ context.Context, event events.Event) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		observability.NotificationsDropped.Inc()
		return nil
	}
	select {
	case n.queue <- event:
	default:
		observability.NotificationsDropped.Inc()
		n.logger.Warn("notification queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID),
			zap.Int("capacity", cap(n.queue)))
	}
	return nil
}

// Run delivers queued events until ctx is cancelled or Close is called.
func (n *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-n.queue:
			if !ok {
				return
			}
			n.deliver(ctx, event)
		}
	}
}

// Close stops accepting events; Run returns once the queue is drained.
func (n *NotificationService) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.queue)
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event) {
	for _, ch := range n.channels {
		deliverCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := ch.Deliver(deliverCtx, event)
		cancel()
		if err != nil {
			observability.NotificationsFailed.WithLabelValues(ch.Name()).Inc()
			n.logger.Warn("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("issue_id", event.IssueID),
				zap.Error(err))
			continue
		}
		observability.NotificationsDelivered.WithLabelValues(ch.Name()).Inc()
	}
}
