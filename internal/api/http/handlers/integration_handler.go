package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/devdesk/ticket-lifecycle/internal/api/dto"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	"github.com/devdesk/ticket-lifecycle/internal/workflow"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// secretHeader carries the pre-shared credential for the SAP bridge.
const secretHeader = "X-Integration-Secret"

// integrationSchemaJSON pins the accepted payload shape. Unknown extra
// fields are tolerated; the bridge sends more than we consume.
const integrationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "category"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "category": {
      "type": "string",
      "enum": ["BUG", "FEATURE_REQUEST", "ENHANCEMENT", "SUPPORT", "TASK", "OTHER"]
    },
    "priority": {
      "type": "string",
      "enum": ["LOW", "MEDIUM", "HIGH", "URGENT"]
    }
  }
}`

var integrationSchema = mustCompileSchema(integrationSchemaJSON)

func mustCompileSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return schema
}

type integrationPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// IntegrationHandler accepts tickets pushed by the upstream bridge.
type IntegrationHandler struct {
	service *service.IntegrationService
}

// NewIntegrationHandler constructs handler.
func NewIntegrationHandler(integrationService *service.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: integrationService}
}

// CreateTicket POST /integration/tickets.
func (h *IntegrationHandler) CreateTicket(c *fiber.Ctx) error {
	if !h.service.VerifySecret(c.Get(secretHeader)) {
		return apperrors.NewUnauthenticated("invalid integration secret")
	}

	body := c.Body()
	result, err := integrationSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewValidationError("payload is not valid JSON", nil)
	}
	if !result.Valid() {
		details := map[string]any{}
		for _, issue := range result.Errors() {
			details[issue.Field()] = issue.Description()
		}
		return apperrors.NewValidationError("payload failed schema validation", details)
	}

	var payload integrationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.NewValidationError("payload is not valid JSON", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), workflow.CreateTicketInput{
		Category:    domain.TicketCategory(payload.Category),
		Priority:    domain.TicketPriority(payload.Priority),
		Title:       payload.Title,
		Description: payload.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.IntegrationTicketResponse{
		Success:      true,
		TicketNumber: ticket.TicketNumber,
		TicketID:     ticket.ID,
	})
}
