package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/identity"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// seed places a ticket directly into the store, bypassing the engine, so
// assignment tests can stage arbitrary statuses and versions.
func (f *fakeTicketStore) seed(ticket domain.Ticket) *domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket.ID == "" {
		f.nextID++
		ticket.ID = fmt.Sprintf("ticket-%04d", f.nextID)
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	stored := ticket
	f.tickets[ticket.ID] = &stored
	return &stored
}

type assignmentHarness struct {
	store *fakeTicketStore
	users *fakeUserStore
	bus   *captureBus
	svc   *service.AssignmentService
}

func newAssignmentHarness() *assignmentHarness {
	store := newFakeTicketStore()
	users := newFakeUserStore()
	bus := &captureBus{}
	svc := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: store,
		Resolver:   identity.NewResolver(users),
		Policy:     svcPolicy(),
		Dispatcher: bus,
		Now:        clockNow,
	})
	return &assignmentHarness{store: store, users: users, bus: bus, svc: svc}
}

func (h *assignmentHarness) seedSubmittedTicket() *domain.Ticket {
	return h.store.seed(domain.Ticket{
		TicketNumber: "TKT-2608-0001",
		Category:     domain.CategoryBug,
		Priority:     domain.PriorityHigh,
		Title:        "Search index drifts out of date",
		Status:       domain.StatusSubmitted,
		SubmitterID:  "u-carl",
		CreatedAt:    fixedClock,
		UpdatedAt:    fixedClock,
	})
}

func TestAssignDeveloperSetsSlot(t *testing.T) {
	h := newAssignmentHarness()
	ctx := context.Background()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	dev := h.users.add(svcAccount("u-dana", "dana.dev", domain.RoleDeveloper))
	ticket := h.seedSubmittedTicket()

	updated, err := h.svc.AssignDeveloper(ctx, manager, ticket.ID, dev.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedDeveloperID)
	require.Equal(t, dev.ID, *updated.AssignedDeveloperID)
	require.Nil(t, updated.AssignedQaID)
	require.Equal(t, int64(2), updated.Version)

	captured := h.bus.captured()
	require.Len(t, captured, 1)
	require.Equal(t, events.EventTicketAssigned, captured[0].Type)
	payload, ok := captured[0].Payload.(events.TicketAssignedPayload)
	require.True(t, ok)
	require.NotNil(t, payload.AssignedDeveloperID)
	require.Equal(t, dev.ID, *payload.AssignedDeveloperID)
}

func TestAssignQASetsSlot(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	qa := h.users.add(svcAccount("u-quinn", "quinn.qa", domain.RoleQA))
	ticket := h.seedSubmittedTicket()

	updated, err := h.svc.AssignQA(context.Background(), manager, ticket.ID, qa.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedQaID)
	require.Equal(t, qa.ID, *updated.AssignedQaID)
	require.Nil(t, updated.AssignedDeveloperID)
}

func TestAssignRequiresManager(t *testing.T) {
	h := newAssignmentHarness()
	ticket := h.seedSubmittedTicket()

	for _, actor := range []*domain.UserAccount{
		svcAccount("u-dana", "dana.dev", domain.RoleDeveloper),
		svcAccount("u-quinn", "quinn.qa", domain.RoleQA),
		svcAccount("u-carl", "carl.creator", domain.RoleUser),
	} {
		_, err := h.svc.AssignDeveloper(context.Background(), actor, ticket.ID, "u-dana")
		require.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "role %s passed the manager gate", actor.Role)
		require.Contains(t, err.Error(), "manager role")
	}
}

func TestAssignRequiresActor(t *testing.T) {
	h := newAssignmentHarness()
	ticket := h.seedSubmittedTicket()

	_, err := h.svc.AssignDeveloper(context.Background(), nil, ticket.ID, "u-dana")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))
}

func TestAssignOutsideAssignableStatusesFails(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	h.users.add(svcAccount("u-dana", "dana.dev", domain.RoleDeveloper))

	for _, status := range []domain.TicketStatus{
		domain.StatusForPDApproval,
		domain.StatusForDeployment,
		domain.StatusDeployed,
		domain.StatusCancelled,
	} {
		ticket := h.store.seed(domain.Ticket{
			Title:       "stuck ticket",
			Category:    domain.CategoryTask,
			Priority:    domain.PriorityLow,
			Status:      status,
			SubmitterID: "u-carl",
			CreatedAt:   fixedClock,
			UpdatedAt:   fixedClock,
		})
		_, err := h.svc.AssignDeveloper(context.Background(), manager, ticket.ID, "u-dana")
		require.True(t, apperrors.HasCode(err, apperrors.CodePreconditionFailed), "status %s accepted assignment", status)
		require.Contains(t, err.Error(), "assignment is only allowed")
	}
}

func TestAssignMissingTicketIsNotFound(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)

	_, err := h.svc.AssignDeveloper(context.Background(), manager, "ticket-9999", "u-dana")
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAssignUnknownAssigneeIsNotFound(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	ticket := h.seedSubmittedTicket()

	_, err := h.svc.AssignDeveloper(context.Background(), manager, ticket.ID, "u-ghost")
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAssignDeactivatedAssigneeIsNotFound(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	gone := svcAccount("u-gone", "gone.dev", domain.RoleDeveloper)
	gone.Active = false
	h.users.add(gone)
	ticket := h.seedSubmittedTicket()

	_, err := h.svc.AssignDeveloper(context.Background(), manager, ticket.ID, gone.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAssignRejectsRoleMismatch(t *testing.T) {
	h := newAssignmentHarness()
	ctx := context.Background()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	qa := h.users.add(svcAccount("u-quinn", "quinn.qa", domain.RoleQA))
	dev := h.users.add(svcAccount("u-dana", "dana.dev", domain.RoleDeveloper))
	ticket := h.seedSubmittedTicket()

	_, err := h.svc.AssignDeveloper(ctx, manager, ticket.ID, qa.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodePreconditionFailed))
	require.Contains(t, err.Error(), "must hold the DEVELOPER role")

	_, err = h.svc.AssignQA(ctx, manager, ticket.ID, dev.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodePreconditionFailed))
	require.Contains(t, err.Error(), "must hold the QA role")
}

func TestAssignVersionRaceSurfacesAsConflict(t *testing.T) {
	h := newAssignmentHarness()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	dev := h.users.add(svcAccount("u-dana", "dana.dev", domain.RoleDeveloper))
	ticket := h.seedSubmittedTicket()

	h.store.failNextUpdate = repository.ErrVersionConflict
	_, err := h.svc.AssignDeveloper(context.Background(), manager, ticket.ID, dev.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	stored, err := h.store.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Nil(t, stored.AssignedDeveloperID)
	require.Equal(t, int64(1), stored.Version)
}

func TestReassignReplacesExistingSlot(t *testing.T) {
	h := newAssignmentHarness()
	ctx := context.Background()
	manager := svcAccount("u-mona", "mona.manager", domain.RoleManager)
	first := h.users.add(svcAccount("u-dana", "dana.dev", domain.RoleDeveloper))
	second := h.users.add(svcAccount("u-dario", "dario.dev", domain.RoleDeveloper))
	ticket := h.seedSubmittedTicket()

	_, err := h.svc.AssignDeveloper(ctx, manager, ticket.ID, first.ID)
	require.NoError(t, err)

	updated, err := h.svc.AssignDeveloper(ctx, manager, ticket.ID, second.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, *updated.AssignedDeveloperID)
	require.Equal(t, int64(3), updated.Version)
}
