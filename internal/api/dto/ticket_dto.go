package dto

import (
	"time"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
}

// TicketCreatedResponse is the creation acknowledgement. The field names
// are part of the published contract and stay camelCase.
type TicketCreatedResponse struct {
	ID           string `json:"id"`
	TicketNumber string `json:"ticketNumber"`
}

// TransitionRequest payload for status moves.
type TransitionRequest struct {
	ToStatus domain.TicketStatus `json:"to_status"`
	Reason   string              `json:"reason"`
}

// CancelRequest payload.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// AssignDeveloperRequest payload.
type AssignDeveloperRequest struct {
	DeveloperID string `json:"developer_id"`
}

// AssignQARequest payload.
type AssignQARequest struct {
	QaID string `json:"qa_id"`
}

// TicketResponse is the full ticket projection.
type TicketResponse struct {
	ID                  string                `json:"id"`
	TicketNumber        string                `json:"ticket_number"`
	Category            domain.TicketCategory `json:"category"`
	Priority            domain.TicketPriority `json:"priority"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Status              domain.TicketStatus   `json:"status"`
	SubmitterID         string                `json:"submitter_id"`
	ProcessOwnerID      *string               `json:"process_owner_id"`
	AssignedDeveloperID *string               `json:"assigned_developer_id"`
	AssignedQaID        *string               `json:"assigned_qa_id"`
	CancelledByID       *string               `json:"cancelled_by_id"`
	CancellationReason  *string               `json:"cancellation_reason"`
	Version             int64                 `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	SubmittedAt         *time.Time            `json:"submitted_at"`
	CancelledAt         *time.Time            `json:"cancelled_at"`
	DeployedAt          *time.Time            `json:"deployed_at"`
}

// StatusHistoryResponse is one audit entry.
type StatusHistoryResponse struct {
	ID         string               `json:"id"`
	FromStatus *domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus  `json:"to_status"`
	ActorID    *string              `json:"actor_id"`
	Reason     string               `json:"reason"`
	CreatedAt  time.Time            `json:"created_at"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body        string              `json:"body"`
	Internal    bool                `json:"internal"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest describes attachment input.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// CommentResponse represents a ticket comment.
type CommentResponse struct {
	ID          string               `json:"id"`
	TicketID    string               `json:"ticket_id"`
	AuthorID    string               `json:"author_id"`
	Body        string               `json:"body"`
	Internal    bool                 `json:"internal"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// IntegrationTicketResponse acknowledges an integration-created ticket.
// Key casing follows the upstream bridge contract.
type IntegrationTicketResponse struct {
	Success      bool   `json:"success"`
	TicketNumber string `json:"ticketNumber"`
	TicketID     string `json:"ticketId"`
}
