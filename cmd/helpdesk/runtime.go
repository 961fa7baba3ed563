package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

// runtime holds the wired components shared by the commands.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger

	postgres *persistence.Postgres
	redis    *persistence.Redis

	issueRepo  repository.IssueRepository
	dispatcher events.Dispatcher

	registry      *service.RegistryService
	sla           *service.SLAService
	escalations   *service.EscalationService
	issues        *service.IssueService
	notifications *service.NotificationService
	closers       []func()
}

func loadRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rt.closers = append(rt.closers, rt.postgres.Close)
	return rt, nil
}

// migrate applies schema migrations when a database is configured.
func (rt *runtime) migrate(ctx context.Context) error {
	if rt.postgres.InMemory() {
		rt.logger.Info("no database configured; nothing to migrate")
		return nil
	}
	return persistence.RunMigrations(ctx, rt.postgres.Pool, rt.cfg.Postgres.MigrationsDir, rt.logger)
}

// wire builds repositories and services on top of the connections.
func (rt *runtime) wire(ctx context.Context) error {
	cfg, logger := rt.cfg, rt.logger
	realClock := clock.Real()
	identity := auth.ContextIdentity{}

	var (
		transactor repository.Transactor
		ruleRepo   repository.EscalationRuleRepository
		escRepo    repository.IssueEscalationRepository
		slaRepo    repository.SLATrackingRepository
	)
	if !rt.postgres.InMemory() {
		pool := rt.postgres.Pool
		transactor = repository.NewPgTransactor(pool)
		rt.issueRepo = repository.NewIssueRepository(pool)
		ruleRepo = repository.NewEscalationRuleRepository(pool)
		escRepo = repository.NewIssueEscalationRepository(pool)
		slaRepo = repository.NewSLATrackingRepository(pool)
	} else {
		store := repository.NewMemoryStore()
		transactor = store
		rt.issueRepo = store.Issues()
		ruleRepo = store.Rules()
		escRepo = store.Escalations()
		slaRepo = store.SLA()
	}

	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	rt.closers = append(rt.closers, rt.redis.Close)

	rt.dispatcher = events.NewInMemoryDispatcher()
	rt.registry = service.NewRegistryService(service.RegistryDependencies{
		RuleRepo:   ruleRepo,
		Transactor: transactor,
		Identity:   identity,
		Clock:      realClock,
		Logger:     logger.Named("registry"),
	})
	rt.sla = service.NewSLAService(service.SLADependencies{
		TrackingRepo: slaRepo,
		IssueRepo:    rt.issueRepo,
		Registry:     rt.registry,
		Transactor:   transactor,
		Dispatcher:   rt.dispatcher,
		Identity:     identity,
		Clock:        realClock,
		Logger:       logger.Named("sla"),
		Defaults:     cfg.SLA,
	})
	rt.escalations = service.NewEscalationService(service.EscalationDependencies{
		IssueRepo:      rt.issueRepo,
		EscalationRepo: escRepo,
		Registry:       rt.registry,
		Tracker:        rt.sla,
		Transactor:     transactor,
		Dispatcher:     rt.dispatcher,
		Identity:       identity,
		Clock:          realClock,
		Logger:         logger.Named("escalation"),
		Policy:         service.EscalationPolicy{AllowManualSkipTier: cfg.Escalation.AllowManualSkipTier},
	})
	rt.issues = service.NewIssueService(service.IssueDependencies{
		IssueRepo:  rt.issueRepo,
		Registry:   rt.registry,
		Tracker:    rt.sla,
		Transactor: transactor,
		Dispatcher: rt.dispatcher,
		Identity:   identity,
		Clock:      realClock,
		Logger:     logger.Named("issues"),
	})

	channels, err := rt.notificationChannels()
	if err != nil {
		return err
	}
	rt.notifications = service.NewNotificationService(rt.dispatcher, logger.Named("notify"), cfg.Notification, channels...)
	rt.closers = append(rt.closers, rt.notifications.Close)

	if cfg.Matrix.SeedFile != "" {
		if _, err := rt.registry.LoadSeed(ctx, cfg.Matrix.SeedFile); err != nil {
			return fmt.Errorf("seed escalation matrix: %w", err)
		}
	}
	return nil
}

func (rt *runtime) notificationChannels() ([]service.NotificationChannel, error) {
	cfg := rt.cfg.Notification
	var channels []service.NotificationChannel
	if cfg.SMTPHost != "" && len(cfg.EmailTo) > 0 {
		channels = append(channels, notify.NewMailChannel(cfg, rt.logger))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := notify.NewKafkaChannel(cfg.KafkaBrokers, cfg.KafkaTopic, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka channel: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			if err := kafka.Close(); err != nil {
				rt.logger.Warn("close kafka writer", zap.Error(err))
			}
		})
		channels = append(channels, kafka)
	}
	if len(channels) == 0 {
		rt.logger.Info("no notification channels configured; events are only logged")
	}
	return channels, nil
}

// sweeper builds the SLA sweeper, locked through Redis when available.
func (rt *runtime) sweeper() *worker.SLASweeper {
	var lock worker.Locker
	if rt.redis != nil {
		lock = rt.redis.Lock(worker.SweepLockKey)
	}
	return worker.NewSLASweeper(worker.SweeperDependencies{
		Issues:    rt.issueRepo,
		Escalator: rt.escalations,
		Breaches:  rt.sla,
		Lock:      lock,
		Clock:     clock.Real(),
		Logger:    rt.logger.Named("sweeper"),
		Config:    rt.cfg.Sweep,
	})
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}
