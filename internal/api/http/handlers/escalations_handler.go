package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// EscalationsHandler exposes manual and on-demand escalation.
type EscalationsHandler struct {
	service *service.EscalationService
	issues  *service.IssueService
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalationService *service.EscalationService, issueService *service.IssueService) *EscalationsHandler {
	return &EscalationsHandler{service: escalationService, issues: issueService}
}

// Escalate POST /escalations/issue/:id.
func (h *EscalationsHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	record, err := h.service.Escalate(c.UserContext(), service.EscalateInput{
		IssueID:         c.Params("id"),
		TargetLevel:     req.TargetLevel,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewEscalationResponse(record)})
}

// AutoEscalate POST /escalations/issue/:id/auto-escalate runs the automatic
// check for one issue right away.
func (h *EscalationsHandler) AutoEscalate(c *fiber.Ctx) error {
	escalated, err := h.service.AutoEvaluate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	issue, err := h.issues.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"escalated": escalated,
		"issue":     dto.NewIssueResponse(issue),
	}})
}

// History GET /escalations/issue/:id.
func (h *EscalationsHandler) History(c *fiber.Ctx) error {
	records, err := h.service.ListEscalations(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.EscalationResponse, 0, len(records))
	for i := range records {
		items = append(items, dto.NewEscalationResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
