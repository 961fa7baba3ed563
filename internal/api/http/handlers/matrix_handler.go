package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// MatrixHandler manages the escalation matrix.
type MatrixHandler struct {
	service *service.RegistryService
}

// NewMatrixHandler constructs handler.
func NewMatrixHandler(registry *service.RegistryService) *MatrixHandler {
	return &MatrixHandler{service: registry}
}

// Create POST /escalation-matrix.
func (h *MatrixHandler) Create(c *fiber.Ctx) error {
	input, err := parseRuleRequest(c)
	if err != nil {
		return err
	}
	rule, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// List GET /escalation-matrix. ?active=true limits to active rules.
func (h *MatrixHandler) List(c *fiber.Ctx) error {
	return h.list(c, repository.RuleFilter{ActiveOnly: c.QueryBool("active", false)})
}

// ListByService GET /escalation-matrix/service/:service.
func (h *MatrixHandler) ListByService(c *fiber.Ctx) error {
	svc := domain.RelatedService(strings.ToUpper(c.Params("service")))
	if !svc.Valid() {
		return apperrors.NewValidationError("unknown service", map[string]any{"service": c.Params("service")})
	}
	return h.list(c, repository.RuleFilter{RelatedService: &svc, ActiveOnly: c.QueryBool("active", false)})
}

// Lookup GET /escalation-matrix/service/:service/priority/:priority/level/:level.
func (h *MatrixHandler) Lookup(c *fiber.Ctx) error {
	svc := domain.RelatedService(strings.ToUpper(c.Params("service")))
	priority := domain.IssuePriority(strings.ToUpper(c.Params("priority")))
	level := domain.SupportLevel(strings.ToUpper(c.Params("level")))
	if !svc.Valid() || !priority.Valid() || !level.Valid() {
		return apperrors.NewValidationError("invalid matrix key", map[string]any{
			"service":  c.Params("service"),
			"priority": c.Params("priority"),
			"level":    c.Params("level"),
		})
	}
	rule, err := h.service.Lookup(c.UserContext(), svc, priority, level)
	if err != nil {
		return err
	}
	if rule == nil {
		return apperrors.NewNotFound("escalation rule", map[string]any{
			"service":  svc,
			"priority": priority,
			"level":    level,
		})
	}
	return c.JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// Get GET /escalation-matrix/:id.
func (h *MatrixHandler) Get(c *fiber.Ctx) error {
	rule, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// Update PUT /escalation-matrix/:id.
func (h *MatrixHandler) Update(c *fiber.Ctx) error {
	input, err := parseRuleRequest(c)
	if err != nil {
		return err
	}
	rule, err := h.service.Update(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRuleResponse(rule)})
}

// Delete DELETE /escalation-matrix/:id.
func (h *MatrixHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MatrixHandler) list(c *fiber.Ctx, filter repository.RuleFilter) error {
	rules, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, dto.NewRuleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseRuleRequest(c *fiber.Ctx) (service.RuleInput, error) {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return service.RuleInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	if req.InitialAssignmentLevel == "" {
		req.InitialAssignmentLevel = req.SupportLevel
	}
	return service.RuleInput{
		RelatedService:         req.RelatedService,
		Priority:               req.Priority,
		SupportLevel:           req.SupportLevel,
		InitialAssignmentLevel: req.InitialAssignmentLevel,
		EscalateToLevel:        req.EscalateToLevel,
		EscalationTimeMinutes:  req.EscalationTimeMinutes,
		ResponseTimeMinutes:    req.ResponseTimeMinutes,
		ResolutionTimeMinutes:  req.ResolutionTimeMinutes,
		Active:                 req.Active,
	}, nil
}
