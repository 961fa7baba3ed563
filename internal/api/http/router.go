package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Issues         *handlers.IssuesHandler
	Escalations    *handlers.EscalationsHandler
	SLA            *handlers.SLAHandler
	Matrix         *handlers.MatrixHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(observability.Handler()))

	api := app.Group("/api/helpdesk", cfg.AuthMiddleware.Handle)

	issues := api.Group("/issues")
	issues.Post("/", cfg.Issues.Create)
	issues.Get("/", cfg.Issues.List)
	issues.Get("/mine", cfg.Issues.ListMine)
	issues.Get("/:id", cfg.Issues.Get)
	issues.Patch("/:id/status", cfg.Issues.UpdateStatus)
	issues.Patch("/:id/assign", cfg.Issues.Assign)
	issues.Post("/:id/resolve", cfg.Issues.Resolve)
	issues.Patch("/:id/close", cfg.Issues.Close)

	escalations := api.Group("/escalations")
	escalations.Post("/issue/:id", cfg.Escalations.Escalate)
	escalations.Post("/issue/:id/auto-escalate", cfg.Escalations.AutoEscalate)
	escalations.Get("/issue/:id", cfg.Escalations.History)

	sla := api.Group("/sla")
	sla.Get("/breaches", cfg.SLA.Breaches)
	sla.Get("/issue/:id", cfg.SLA.Get)
	sla.Post("/issue/:id/first-response", cfg.SLA.FirstResponse)

	matrix := api.Group("/escalation-matrix")
	admin := auth.RequireRole(domain.StaffRoleAdmin)
	matrix.Get("/", cfg.Matrix.List)
	matrix.Post("/", admin, cfg.Matrix.Create)
	matrix.Get("/service/:service", cfg.Matrix.ListByService)
	matrix.Get("/service/:service/priority/:priority/level/:level", cfg.Matrix.Lookup)
	matrix.Get("/:id", cfg.Matrix.Get)
	matrix.Put("/:id", admin, cfg.Matrix.Update)
	matrix.Delete("/:id", admin, cfg.Matrix.Delete)
}
