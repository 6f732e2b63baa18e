package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/devdesk/ticket-lifecycle/internal/api/dto"
	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// AssignmentsHandler manages assignee endpoints.
type AssignmentsHandler struct {
	service *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignmentService *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: assignmentService}
}

// AssignDeveloper POST /tickets/:id/assignees/developer.
func (h *AssignmentsHandler) AssignDeveloper(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	var req dto.AssignDeveloperRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DeveloperID == "" {
		return apperrors.NewValidationError("developer_id is required", nil)
	}

	ticket, err := h.service.AssignDeveloper(c.UserContext(), actor, c.Params("id"), req.DeveloperID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AssignQA POST /tickets/:id/assignees/qa.
func (h *AssignmentsHandler) AssignQA(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	var req dto.AssignQARequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.QaID == "" {
		return apperrors.NewValidationError("qa_id is required", nil)
	}

	ticket, err := h.service.AssignQA(c.UserContext(), actor, c.Params("id"), req.QaID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}
