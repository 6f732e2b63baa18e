package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/observability"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

const (
	// creationReason is recorded for self-service creations.
	creationReason = "Ticket created"

	// integrationReason is recorded for tickets arriving through the
	// integration bypass.
	integrationReason = "Auto-created by SAP integration"
)

// EngineDependencies bundles the engine's collaborators.
type EngineDependencies struct {
	Tickets    repository.TicketRepository
	Policy     *policy.Policy
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Engine is the single choke point for ticket state changes. Every
// creation and transition passes through it; nothing else mutates status.
type Engine struct {
	tickets    repository.TicketRepository
	policy     *policy.Policy
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(deps EngineDependencies) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tickets:    deps.Tickets,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// CreateTicketInput carries caller-supplied fields for a new ticket.
type CreateTicketInput struct {
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
	Title       string
	Description string
}

// CreateTicket opens a ticket in FOR_PD_APPROVAL on behalf of an
// allow-listed creator.
func (e *Engine) CreateTicket(ctx context.Context, actor *domain.UserAccount, input CreateTicketInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, errorutil.NewUnauthenticated("authentication required")
	}
	if !e.policy.CanCreate(actor) {
		return nil, errorutil.NewForbidden("ticket creation is restricted to allow-listed requesters")
	}
	return e.create(ctx, actor, input, domain.StatusForPDApproval, creationReason, false)
}

// CreateIntegrationTicket opens a ticket directly in SUBMITTED on behalf
// of the fixed integration identity, skipping the approval gate entirely.
// Credential checks happen upstream; the submitter passed here must
// already be resolved and active.
func (e *Engine) CreateIntegrationTicket(ctx context.Context, submitter *domain.UserAccount, input CreateTicketInput) (*domain.Ticket, error) {
	if submitter == nil {
		return nil, errorutil.NewNotFound("integration submitter account", nil)
	}
	return e.create(ctx, submitter, input, domain.StatusSubmitted, integrationReason, true)
}

func (e *Engine) create(ctx context.Context, actor *domain.UserAccount, input CreateTicketInput, initial domain.TicketStatus, reason string, integration bool) (*domain.Ticket, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	ticket := &domain.Ticket{
		Category:    input.Category,
		Priority:    input.Priority,
		Title:       input.Title,
		Description: input.Description,
		Status:      initial,
		SubmitterID: actor.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if initial == domain.StatusSubmitted {
		ticket.SubmittedAt = &now
	}

	entry := &domain.StatusHistoryEntry{
		ToStatus:  initial,
		ActorID:   &actor.ID,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := e.tickets.CreateWithHistory(ctx, ticket, entry); err != nil {
		return nil, err
	}

	channel := "self_service"
	if integration {
		channel = "integration"
	}
	e.metrics.RecordTicketCreated(channel)
	e.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("status", string(ticket.Status)),
		zap.String("submitter_id", ticket.SubmitterID),
		zap.Bool("integration", integration),
	)
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Payload: events.TicketCreatedPayload{
			TicketNumber:  ticket.TicketNumber,
			Category:      ticket.Category,
			Priority:      ticket.Priority,
			Title:         ticket.Title,
			InitialStatus: ticket.Status,
			Integration:   integration,
		},
	})
	return ticket, nil
}

// RequestTransition validates and applies one status change.
//
// The checks run in a fixed order: input validation, ticket load, table
// lookup, authorization, preconditions. An illegal (from, to) pair is
// InvalidTransition even when the caller also lacks the role, so probing
// never reveals who may perform a move that nobody may perform. The
// mutation and its audit entry commit atomically; a lost version race
// surfaces as Conflict with nothing applied.
func (e *Engine) RequestTransition(ctx context.Context, actor *domain.UserAccount, ticketID string, toStatus domain.TicketStatus, reason string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, errorutil.NewUnauthenticated("authentication required")
	}
	if !domain.IsKnownStatus(toStatus) {
		return nil, errorutil.NewValidationError("unknown target status", map[string]any{
			"to_status": string(toStatus),
		})
	}

	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	fromStatus := ticket.Status
	rule, ok := Lookup(fromStatus, toStatus)
	if !ok {
		e.metrics.RecordTransition(string(fromStatus), string(toStatus), "invalid")
		return nil, errorutil.NewInvalidTransition(
			fmt.Sprintf("cannot move ticket from %s to %s", fromStatus, toStatus),
			map[string]any{"from_status": string(fromStatus), "to_status": string(toStatus)},
		)
	}
	if !rule.Authorize(e.policy, actor, ticket) {
		e.metrics.RecordTransition(string(fromStatus), string(toStatus), "forbidden")
		return nil, errorutil.NewForbidden(
			fmt.Sprintf("moving a ticket from %s to %s requires %s", fromStatus, toStatus, rule.RequiredRole),
		)
	}
	if rule.Precondition != nil {
		if msg := rule.Precondition(ticket, actor, reason); msg != "" {
			e.metrics.RecordTransition(string(fromStatus), string(toStatus), "precondition_failed")
			return nil, errorutil.NewPreconditionFailed(msg, nil)
		}
	}

	resolved := strings.TrimSpace(reason)
	if resolved == "" {
		resolved = rule.DefaultReason
	}
	now := e.now().UTC()
	expectedVersion := ticket.Version

	ticket.Status = toStatus
	if rule.Apply != nil {
		rule.Apply(ticket, actor, resolved, now)
	}
	ticket.Version++
	ticket.UpdatedAt = now

	entry := &domain.StatusHistoryEntry{
		TicketID:   ticket.ID,
		FromStatus: &fromStatus,
		ToStatus:   toStatus,
		ActorID:    &actor.ID,
		Reason:     resolved,
		CreatedAt:  now,
	}
	if err := e.tickets.ApplyTransition(ctx, ticket, expectedVersion, entry); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			e.metrics.RecordTransition(string(fromStatus), string(toStatus), "conflict")
			return nil, errorutil.NewConflict("ticket was modified concurrently, reload and retry", map[string]any{
				"ticket_id": ticket.ID,
			})
		}
		return nil, err
	}

	e.metrics.RecordTransition(string(fromStatus), string(toStatus), "applied")
	e.logger.Info("ticket transitioned",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("from_status", string(fromStatus)),
		zap.String("to_status", string(toStatus)),
		zap.String("actor_id", actor.ID),
		zap.String("reason", resolved),
	)
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketTransitioned,
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Payload: events.TicketTransitionedPayload{
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			Reason:     resolved,
		},
	})
	return ticket, nil
}

// CancelTicket is sugar over RequestTransition into CANCELLED. The table
// keeps it legal only from FOR_PD_APPROVAL, so cancelling mid-pipeline
// fails as InvalidTransition regardless of who asks.
func (e *Engine) CancelTicket(ctx context.Context, actor *domain.UserAccount, ticketID, reason string) (*domain.Ticket, error) {
	return e.RequestTransition(ctx, actor, ticketID, domain.StatusCancelled, reason)
}

func (e *Engine) publishEvent(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	_ = e.dispatcher.Publish(ctx, event)
}

func validateCreateInput(input *CreateTicketInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)

	details := map[string]any{}
	if input.Title == "" {
		details["title"] = "title is required"
	}
	switch {
	case input.Category == "":
		details["category"] = "category is required"
	case !domain.IsKnownCategory(input.Category):
		details["category"] = fmt.Sprintf("unknown category %q", string(input.Category))
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityMedium
	} else if !domain.IsKnownPriority(input.Priority) {
		details["priority"] = fmt.Sprintf("unknown priority %q", string(input.Priority))
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("invalid ticket fields", details)
	}
	return nil
}
