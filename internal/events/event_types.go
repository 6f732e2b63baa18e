package events

import (
	"time"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketTransitioned EventType = "ticket_transitioned"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketCommentAdded EventType = "ticket_comment_added"
)

// Event represents a domain event emitted by the workflow engine and services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber  string                `json:"ticket_number"`
	Category      domain.TicketCategory `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	Title         string                `json:"title"`
	InitialStatus domain.TicketStatus   `json:"initial_status"`
	Integration   bool                  `json:"integration"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	FromStatus domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus `json:"to_status"`
	Reason     string              `json:"reason"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedDeveloperID *string `json:"assigned_developer_id,omitempty"`
	AssignedQaID        *string `json:"assigned_qa_id,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	Internal    bool   `json:"internal"`
	BodyPreview string `json:"body_preview"`
}
