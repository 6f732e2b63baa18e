package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	"github.com/devdesk/ticket-lifecycle/internal/workflow"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

var fixedClock = time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)

func clockNow() time.Time { return fixedClock }

func svcPolicy() *policy.Policy {
	return policy.New(policy.Config{
		ApproverUsernames: []string{"petra.approver"},
		CreatorUsernames:  []string{"carl.creator", "sam.submitter"},
	})
}

func svcAccount(id, username string, role domain.TicketRole) *domain.UserAccount {
	return &domain.UserAccount{ID: id, Username: username, Role: role, Active: true}
}

// fakeTicketStore is an in-memory TicketRepository with the version-guard
// semantics of the postgres implementation.
type fakeTicketStore struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	history   map[string][]domain.StatusHistoryEntry
	sequences map[string]int64
	nextID    int

	// failNextUpdate, when set, fails the next assignment write once.
	failNextUpdate error
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{
		tickets:   map[string]*domain.Ticket{},
		history:   map[string][]domain.StatusHistoryEntry{},
		sequences: map[string]int64{},
	}
}

func (f *fakeTicketStore) CreateWithHistory(_ context.Context, ticket *domain.Ticket, entry *domain.StatusHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.YearMonthKey(ticket.CreatedAt)
	f.sequences[key]++
	ticket.TicketNumber = domain.FormatTicketNumber(ticket.CreatedAt, f.sequences[key])
	f.nextID++
	ticket.ID = fmt.Sprintf("ticket-%04d", f.nextID)
	stored := *ticket
	f.tickets[ticket.ID] = &stored

	entry.TicketID = ticket.ID
	entry.ID = fmt.Sprintf("hist-%s-%d", ticket.ID, len(f.history[ticket.ID])+1)
	f.history[ticket.ID] = append(f.history[ticket.ID], *entry)
	return nil
}

func (f *fakeTicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (f *fakeTicketStore) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.tickets {
		if stored.TicketNumber == number {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketStore) ApplyTransition(_ context.Context, ticket *domain.Ticket, expectedVersion int64, entry *domain.StatusHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticket.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	clone := *ticket
	f.tickets[ticket.ID] = &clone

	entry.ID = fmt.Sprintf("hist-%s-%d", ticket.ID, len(f.history[ticket.ID])+1)
	f.history[ticket.ID] = append(f.history[ticket.ID], *entry)
	return nil
}

func (f *fakeTicketStore) UpdateAssignments(_ context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextUpdate != nil {
		err := f.failNextUpdate
		f.failNextUpdate = nil
		return err
	}
	stored, ok := f.tickets[ticket.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	clone := *ticket
	f.tickets[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketStore) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, stored := range f.tickets {
		if filter.InvolvedUserID != nil && !ticketInvolves(stored, *filter.InvolvedUserID) {
			continue
		}
		result = append(result, *stored)
	}
	return result, nil
}

func ticketInvolves(ticket *domain.Ticket, userID string) bool {
	if ticket.SubmitterID == userID {
		return true
	}
	for _, ptr := range []*string{ticket.ProcessOwnerID, ticket.AssignedDeveloperID, ticket.AssignedQaID} {
		if ptr != nil && *ptr == userID {
			return true
		}
	}
	return false
}

func (f *fakeTicketStore) patch(id string, fn func(*domain.Ticket)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.tickets[id])
}

// fakeHistoryStore serves the audit trail straight out of the ticket
// store, in append order like the postgres query does.
type fakeHistoryStore struct {
	tickets *fakeTicketStore
}

func (f *fakeHistoryStore) ListByTicket(_ context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	f.tickets.mu.Lock()
	defer f.tickets.mu.Unlock()
	return append([]domain.StatusHistoryEntry{}, f.tickets.history[ticketID]...), nil
}

type fakeCommentStore struct {
	mu       sync.Mutex
	comments map[string][]domain.Comment
	nextID   int
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{comments: map[string][]domain.Comment{}}
}

func (f *fakeCommentStore) Create(_ context.Context, comment *domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	comment.ID = fmt.Sprintf("comment-%04d", f.nextID)
	for i := range comment.Attachments {
		att := &comment.Attachments[i]
		att.ID = fmt.Sprintf("%s-att-%d", comment.ID, i+1)
		att.CommentID = comment.ID
		att.CreatedAt = comment.CreatedAt
	}
	stored := *comment
	stored.Attachments = append([]domain.CommentAttachment{}, comment.Attachments...)
	f.comments[comment.TicketID] = append(f.comments[comment.TicketID], stored)
	return nil
}

func (f *fakeCommentStore) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Comment
	for _, comment := range f.comments[ticketID] {
		if comment.Internal && !includeInternal {
			continue
		}
		result = append(result, comment)
	}
	return result, nil
}

// fakeUserStore is an in-memory UserRepository, lowercasing usernames on
// write and lookup like the postgres implementation.
type fakeUserStore struct {
	mu     sync.Mutex
	users  map[string]*domain.UserAccount
	nextID int

	// failNextCreate, when set, fails the next Create once.
	failNextCreate error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*domain.UserAccount{}}
}

func (f *fakeUserStore) Create(_ context.Context, user *domain.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextCreate != nil {
		err := f.failNextCreate
		f.failNextCreate = nil
		return err
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%04d", f.nextID)
	user.Username = strings.ToLower(user.Username)
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserStore) Update(_ context.Context, user *domain.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*domain.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	username = strings.ToLower(username)
	for _, stored := range f.users {
		if stored.Username == username {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) add(user *domain.UserAccount) *domain.UserAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Username = strings.ToLower(user.Username)
	stored := *user
	f.users[user.ID] = &stored
	return user
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *captureBus) Subscribe(events.EventType, events.EventHandler) {}

func (b *captureBus) captured() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event{}, b.events...)
}

type ticketHarness struct {
	store    *fakeTicketStore
	comments *fakeCommentStore
	bus      *captureBus
	svc      *service.TicketService
}

func newTicketHarness() *ticketHarness {
	store := newFakeTicketStore()
	comments := newFakeCommentStore()
	bus := &captureBus{}
	pol := svcPolicy()
	engine := workflow.NewEngine(workflow.EngineDependencies{
		Tickets:    store,
		Policy:     pol,
		Dispatcher: bus,
		Now:        clockNow,
	})
	svc := service.NewTicketService(service.TicketDependencies{
		Engine:      engine,
		TicketRepo:  store,
		HistoryRepo: &fakeHistoryStore{tickets: store},
		CommentRepo: comments,
		Policy:      pol,
		Dispatcher:  bus,
		Now:         clockNow,
	})
	return &ticketHarness{store: store, comments: comments, bus: bus, svc: svc}
}

func (h *ticketHarness) createTicket(t *testing.T, submitter *domain.UserAccount) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.CreateTicket(context.Background(), submitter, workflow.CreateTicketInput{
		Category:    domain.CategoryBug,
		Priority:    domain.PriorityHigh,
		Title:       "Login page times out",
		Description: "Session endpoint hangs for 30s before failing.",
	})
	require.NoError(t, err)
	return ticket
}

func TestGetTicketEnforcesViewPolicy(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	outsider := svcAccount("u-olga", "olga.outsider", domain.RoleUser)
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)

	ticket := h.createTicket(t, submitter)

	got, err := h.svc.GetTicket(ctx, submitter, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.ID, got.ID)

	_, err = h.svc.GetTicket(ctx, outsider, ticket.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	require.Contains(t, err.Error(), "not allowed to view")

	_, err = h.svc.GetTicket(ctx, manager, ticket.ID)
	require.NoError(t, err)
}

func TestGetTicketAcceptsNumberReference(t *testing.T) {
	h := newTicketHarness()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	ticket := h.createTicket(t, submitter)

	got, err := h.svc.GetTicket(context.Background(), submitter, strings.ToLower(ticket.TicketNumber))
	require.NoError(t, err)
	require.Equal(t, ticket.ID, got.ID)
}

func TestGetTicketUnknownRefIsNotFound(t *testing.T) {
	h := newTicketHarness()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)

	_, err := h.svc.GetTicket(context.Background(), submitter, "ticket-9999")
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = h.svc.GetTicket(context.Background(), submitter, "TKT-2608-9999")
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestGetTicketRequiresActor(t *testing.T) {
	h := newTicketHarness()

	_, err := h.svc.GetTicket(context.Background(), nil, "ticket-0001")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))
}

func TestListHistoryReturnsNewestFirst(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	approver := svcAccount("u-petra", "petra.approver", domain.RoleUser)

	ticket := h.createTicket(t, submitter)
	_, err := h.svc.RequestTransition(ctx, approver, ticket.ID, domain.StatusSubmitted, "")
	require.NoError(t, err)

	entries, err := h.svc.ListHistory(ctx, submitter, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.StatusSubmitted, entries[0].ToStatus)
	require.Equal(t, domain.StatusForPDApproval, entries[1].ToStatus)
}

func TestListHistoryMissingTicketYieldsEmptySlice(t *testing.T) {
	h := newTicketHarness()
	caller := svcAccount("u-any", "any.user", domain.RoleUser)

	entries, err := h.svc.ListHistory(context.Background(), caller, "ticket-9999")
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestAddCommentRequiresBody(t *testing.T) {
	h := newTicketHarness()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	ticket := h.createTicket(t, submitter)

	_, err := h.svc.AddComment(context.Background(), submitter, ticket.ID, "   ", false, nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestAddCommentInternalRestrictedToStaff(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	ticket := h.createTicket(t, submitter)

	_, err := h.svc.AddComment(ctx, submitter, ticket.ID, "please hide this", true, nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	require.Contains(t, err.Error(), "internal notes are restricted")

	comment, err := h.svc.AddComment(ctx, manager, ticket.ID, "triage note", true, nil)
	require.NoError(t, err)
	require.True(t, comment.Internal)
}

func TestAddCommentOutsiderForbidden(t *testing.T) {
	h := newTicketHarness()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	outsider := svcAccount("u-olga", "olga.outsider", domain.RoleUser)
	ticket := h.createTicket(t, submitter)

	_, err := h.svc.AddComment(context.Background(), outsider, ticket.ID, "drive-by remark", false, nil)
	require.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestAddCommentCarriesAttachments(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	ticket := h.createTicket(t, submitter)

	comment, err := h.svc.AddComment(ctx, submitter, ticket.ID, "screenshot attached", false, []service.CommentAttachmentInput{
		{StorageKey: "uploads/2026/08/shot.png", FileName: "shot.png", MimeType: "image/png", SizeBytes: 48213},
	})
	require.NoError(t, err)
	require.NotEmpty(t, comment.ID)
	require.Len(t, comment.Attachments, 1)
	require.Equal(t, comment.ID, comment.Attachments[0].CommentID)
	require.Equal(t, "shot.png", comment.Attachments[0].FileName)

	captured := h.bus.captured()
	last := captured[len(captured)-1]
	require.Equal(t, events.EventTicketCommentAdded, last.Type)
	payload, ok := last.Payload.(events.TicketCommentAddedPayload)
	require.True(t, ok)
	require.Equal(t, comment.ID, payload.CommentID)
}

func TestListCommentsHidesInternalFromPlainUsers(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	submitter := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	ticket := h.createTicket(t, submitter)

	_, err := h.svc.AddComment(ctx, submitter, ticket.ID, "public update", false, nil)
	require.NoError(t, err)
	_, err = h.svc.AddComment(ctx, manager, ticket.ID, "internal triage", true, nil)
	require.NoError(t, err)

	visible, err := h.svc.ListComments(ctx, submitter, ticket.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "public update", visible[0].Body)

	all, err := h.svc.ListComments(ctx, manager, ticket.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCancelTicketMovesToCancelled(t *testing.T) {
	h := newTicketHarness()
	submitter := svcAccount("u-sam", "sam.submitter", domain.RoleUser)
	ticket := h.createTicket(t, submitter)

	cancelled, err := h.svc.CancelTicket(context.Background(), submitter, ticket.ID, "no longer needed")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	require.Equal(t, "no longer needed", *cancelled.CancellationReason)
}

func TestListTicketsScopesByInvolvement(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	carl := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	sam := svcAccount("u-sam", "sam.submitter", domain.RoleUser)
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	outsider := svcAccount("u-olga", "olga.outsider", domain.RoleUser)
	head := svcAccount("u-hans", "hans.head", domain.RoleUser)
	head.GroupDirector = true

	h.createTicket(t, carl)
	h.createTicket(t, sam)

	mine, err := h.svc.ListTickets(ctx, carl, service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, carl.ID, mine[0].SubmitterID)

	everything, err := h.svc.ListTickets(ctx, manager, service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, everything, 2)

	elevated, err := h.svc.ListTickets(ctx, head, service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, elevated, 2)

	none, err := h.svc.ListTickets(ctx, outsider, service.TicketListFilter{})
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestAssignedDeveloperSeesTicketInListing(t *testing.T) {
	h := newTicketHarness()
	ctx := context.Background()
	carl := svcAccount("u-carl", "carl.creator", domain.RoleUser)
	dev := svcAccount("u-dana", "dana.dev", domain.RoleDeveloper)

	ticket := h.createTicket(t, carl)
	h.store.patch(ticket.ID, func(stored *domain.Ticket) { stored.AssignedDeveloperID = &dev.ID })

	visible, err := h.svc.ListTickets(ctx, dev, service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, ticket.ID, visible[0].ID)
}
