package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// SLAHandler exposes SLA tracking endpoints.
type SLAHandler struct {
	service *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{service: slaService}
}

// Get GET /sla/issue/:id.
func (h *SLAHandler) Get(c *fiber.Ctx) error {
	tracking, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAResponse(tracking)})
}

// Breaches GET /sla/breaches.
func (h *SLAHandler) Breaches(c *fiber.Ctx) error {
	trackings, err := h.service.ListBreaches(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.SLAResponse, 0, len(trackings))
	for i := range trackings {
		items = append(items, dto.NewSLAResponse(&trackings[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// FirstResponse POST /sla/issue/:id/first-response.
func (h *SLAHandler) FirstResponse(c *fiber.Ctx) error {
	tracking, err := h.service.MarkFirstResponse(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAResponse(tracking)})
}
