package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/cache"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/internal/workflow"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// TicketService fronts the ticket workflows: reads, listing, comments,
// and the history view. Lifecycle changes delegate to the workflow
// engine; this service never mutates status itself.
type TicketService struct {
	engine      *workflow.Engine
	tickets     repository.TicketRepository
	history     repository.StatusHistoryRepository
	comments    repository.CommentRepository
	pol         *policy.Policy
	ticketCache *cache.TicketCache
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Engine      *workflow.Engine
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.StatusHistoryRepository
	CommentRepo repository.CommentRepository
	Policy      *policy.Policy
	Cache       *cache.TicketCache
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// TicketListFilter describes listing filters offered by the API.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Categories  []domain.TicketCategory
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// CommentAttachmentInput defines attachment metadata accompanying a comment.
type CommentAttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		engine:      deps.Engine,
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		comments:    deps.CommentRepo,
		pol:         deps.Policy,
		ticketCache: deps.Cache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         now,
	}
}

// CreateTicket opens a ticket through the engine and primes the cache.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.UserAccount, input workflow.CreateTicketInput) (*domain.Ticket, error) {
	ticket, err := s.engine.CreateTicket(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	s.ticketCache.Put(ctx, ticket)
	return ticket, nil
}

// RequestTransition applies one status change through the engine and
// refreshes the cache with the winning state.
func (s *TicketService) RequestTransition(ctx context.Context, actor *domain.UserAccount, ticketID string, toStatus domain.TicketStatus, reason string) (*domain.Ticket, error) {
	ticket, err := s.engine.RequestTransition(ctx, actor, ticketID, toStatus, reason)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			// The loser of a race holds a stale snapshot; drop it so the
			// retry reads the winner's state.
			s.ticketCache.Invalidate(ctx, ticketID)
		}
		return nil, err
	}
	s.ticketCache.Put(ctx, ticket)
	return ticket, nil
}

// CancelTicket is the submitter-facing sugar for a CANCELLED transition.
func (s *TicketService) CancelTicket(ctx context.Context, actor *domain.UserAccount, ticketID, reason string) (*domain.Ticket, error) {
	return s.RequestTransition(ctx, actor, ticketID, domain.StatusCancelled, reason)
}

// GetTicket returns one ticket for a caller allowed to view it. The ref
// accepts either the opaque id or the human-readable TKT number.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.UserAccount, ref string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	ticket, err := s.resolveTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !s.pol.CanView(actor, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	return ticket, nil
}

// ListTickets returns tickets visible to the caller. Managers and holders
// of an elevated organizational flag see everything; everyone else sees
// only tickets they are involved in.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.UserAccount, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	repoFilter := repository.TicketFilter{
		Statuses:    filter.Statuses,
		Categories:  filter.Categories,
		Priorities:  filter.Priorities,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if actor.Role != domain.RoleManager && !actor.ElevatedFlag() {
		involved := actor.ID
		repoFilter.InvolvedUserID = &involved
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// ListHistory returns the audit trail newest-first. History is a view,
// never an authority: an absent ticket yields an empty slice, and no
// view policy applies beyond authentication.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.UserAccount, ref string) ([]domain.StatusHistoryEntry, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	ticket, err := s.resolveTicket(ctx, ref)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return []domain.StatusHistoryEntry{}, nil
		}
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	// Stored in append order; displayed newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if entries == nil {
		entries = []domain.StatusHistoryEntry{}
	}
	return entries, nil
}

// AddComment appends a comment, optionally with attachment references.
// Internal notes are restricted to staff roles and organizational heads.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.UserAccount, ref, body string, internal bool, attachments []CommentAttachmentInput) (*domain.Comment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.resolveTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !s.pol.CanComment(actor, ticket) {
		return nil, apperrors.NewForbidden("not allowed to comment on this ticket")
	}
	if internal && !s.pol.CanCommentInternal(actor) {
		return nil, apperrors.NewForbidden("internal notes are restricted to staff")
	}

	comment := &domain.Comment{
		TicketID:  ticket.ID,
		AuthorID:  actor.ID,
		Body:      body,
		Internal:  internal,
		CreatedAt: s.now().UTC(),
	}
	for _, att := range attachments {
		comment.Attachments = append(comment.Attachments, domain.CommentAttachment{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}

	publishEvent(ctx, s.dispatcher, s.now, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			Internal:    comment.Internal,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// ListComments returns the comments the caller may see. Internal notes
// are filtered out for non-staff callers.
func (s *TicketService) ListComments(ctx context.Context, actor *domain.UserAccount, ref string) ([]domain.Comment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	ticket, err := s.resolveTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !s.pol.CanView(actor, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID, s.pol.CanCommentInternal(actor))
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

// resolveTicket loads by TKT number or id. Number lookups bypass the
// cache; id lookups read through it.
func (s *TicketService) resolveTicket(ctx context.Context, ref string) (*domain.Ticket, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToUpper(ref), "TKT-") {
		ticket, err := s.tickets.GetByNumber(ctx, strings.ToUpper(ref))
		if err != nil {
			return nil, mapTicketLookupError(err, ref)
		}
		return ticket, nil
	}
	if cached := s.ticketCache.Get(ctx, ref); cached != nil {
		return cached, nil
	}
	ticket, err := s.tickets.GetByID(ctx, ref)
	if err != nil {
		return nil, mapTicketLookupError(err, ref)
	}
	s.ticketCache.Put(ctx, ticket)
	return ticket, nil
}

func mapTicketLookupError(err error, ref string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket": ref})
	}
	return err
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
