package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the SLA sweeper and notification delivery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	if rt.cfg.Postgres.RunMigrations {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
	}
	if err := rt.wire(ctx); err != nil {
		return err
	}

	worker.StartNotificationWorker(ctx, rt.notifications)
	if rt.cfg.Sweep.Enabled {
		go rt.sweeper().Run(ctx)
	}

	deps := map[string]handlers.Pinger{"postgres": rt.postgres, "redis": nil}
	if rt.redis != nil {
		deps["redis"] = rt.redis
	}

	app := fiber.New(fiber.Config{AppName: rt.cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), rt.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, deps),
		Issues:         handlers.NewIssuesHandler(rt.issues),
		Escalations:    handlers.NewEscalationsHandler(rt.escalations, rt.issues),
		SLA:            handlers.NewSLAHandler(rt.sla),
		Matrix:         handlers.NewMatrixHandler(rt.registry),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.AccessTokenTTLMinutes)),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(rt.cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
			return err
		}
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}
