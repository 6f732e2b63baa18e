package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/cache"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/identity"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// AssignmentService manages the developer and QA assignee slots.
//
// Assignment is a side mutation, not a status transition: it writes no
// history entry and runs under the same version guard as transitions, so
// a concurrent status change loses or wins cleanly rather than silently
// interleaving.
type AssignmentService struct {
	tickets     repository.TicketRepository
	resolver    *identity.Resolver
	pol         *policy.Policy
	ticketCache *cache.TicketCache
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	Resolver   *identity.Resolver
	Policy     *policy.Policy
	Cache      *cache.TicketCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets:     deps.TicketRepo,
		resolver:    deps.Resolver,
		pol:         deps.Policy,
		ticketCache: deps.Cache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         now,
	}
}

// AssignDeveloper sets the developer slot. Manager only.
func (s *AssignmentService) AssignDeveloper(ctx context.Context, actor *domain.UserAccount, ticketID, developerID string) (*domain.Ticket, error) {
	return s.assign(ctx, actor, ticketID, developerID, domain.RoleDeveloper)
}

// AssignQA sets the QA slot. Manager only.
func (s *AssignmentService) AssignQA(ctx context.Context, actor *domain.UserAccount, ticketID, qaID string) (*domain.Ticket, error) {
	return s.assign(ctx, actor, ticketID, qaID, domain.RoleQA)
}

func (s *AssignmentService) assign(ctx context.Context, actor *domain.UserAccount, ticketID, assigneeID string, requiredRole domain.TicketRole) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	if !s.pol.CanAssign(actor) {
		return nil, apperrors.NewForbidden("assignment requires the manager role")
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	if !ticket.Status.IsAssignable() {
		return nil, apperrors.NewPreconditionFailed(
			fmt.Sprintf("assignment is only allowed while the ticket is in %s; current status is %s",
				assignableStatusList(), ticket.Status),
			map[string]any{"status": string(ticket.Status)},
		)
	}

	assignee, err := s.resolver.ByID(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if assignee.Role != requiredRole {
		return nil, apperrors.NewPreconditionFailed(
			fmt.Sprintf("assignee must hold the %s role", requiredRole),
			map[string]any{"assignee_id": assigneeID, "role": string(assignee.Role)},
		)
	}

	expectedVersion := ticket.Version
	switch requiredRole {
	case domain.RoleDeveloper:
		ticket.AssignedDeveloperID = &assignee.ID
	case domain.RoleQA:
		ticket.AssignedQaID = &assignee.ID
	}
	ticket.Version++
	ticket.UpdatedAt = s.now().UTC()

	if err := s.tickets.UpdateAssignments(ctx, ticket, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.ticketCache.Invalidate(ctx, ticket.ID)
			return nil, apperrors.NewConflict("ticket was modified concurrently, reload and retry", map[string]any{
				"ticket_id": ticket.ID,
			})
		}
		return nil, err
	}

	s.ticketCache.Put(ctx, ticket)
	s.logger.Info("ticket assignee updated",
		zap.String("ticket_id", ticket.ID),
		zap.String("slot", strings.ToLower(string(requiredRole))),
		zap.String("assignee_id", assignee.ID),
		zap.String("actor_id", actor.ID),
	)
	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Payload: events.TicketAssignedPayload{
			AssignedDeveloperID: ticket.AssignedDeveloperID,
			AssignedQaID:        ticket.AssignedQaID,
		},
	})
	return ticket, nil
}

func assignableStatusList() string {
	names := make([]string, 0, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		if status.IsAssignable() {
			names = append(names, string(status))
		}
	}
	return strings.Join(names, ", ")
}
