// Package workflow implements the ticket state machine: the transition
// table declaring every legal status change and the engine that applies
// one change atomically together with its audit entry.
package workflow

import (
	"strings"
	"time"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/policy"
)

// Rule governs a single legal (from, to) status move.
//
// Authorize and Precondition are pure checks: they answer no by returning
// false or a message, never an error. The engine translates refusals into
// the error taxonomy. Apply mutates ticket fields beyond Status; reason is
// the resolved audit reason, already defaulted when the caller gave none.
type Rule struct {
	// RequiredRole names who may perform the move, quoted in refusals.
	RequiredRole string

	// DefaultReason is recorded in the audit trail when the caller
	// supplies no reason of their own.
	DefaultReason string

	Authorize    func(pol *policy.Policy, actor *domain.UserAccount, ticket *domain.Ticket) bool
	Precondition func(ticket *domain.Ticket, actor *domain.UserAccount, reason string) string
	Apply        func(ticket *domain.Ticket, actor *domain.UserAccount, reason string, now time.Time)
}

type move struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

// Lookup returns the rule governing from→to. A missing entry means the
// move is illegal no matter who asks, terminal states included.
func Lookup(from, to domain.TicketStatus) (Rule, bool) {
	rule, ok := table[move{from: from, to: to}]
	return rule, ok
}

// AllowedTargets lists the statuses reachable from the given one.
func AllowedTargets(from domain.TicketStatus) []domain.TicketStatus {
	var targets []domain.TicketStatus
	for _, status := range domain.AllStatuses {
		if _, ok := table[move{from: from, to: status}]; ok {
			targets = append(targets, status)
		}
	}
	return targets
}

var table = map[move]Rule{
	{from: domain.StatusForPDApproval, to: domain.StatusSubmitted}: {
		RequiredRole:  "an approver",
		DefaultReason: "Approved for development",
		Authorize: func(pol *policy.Policy, actor *domain.UserAccount, _ *domain.Ticket) bool {
			return pol.CanApprove(actor)
		},
		Apply: func(ticket *domain.Ticket, actor *domain.UserAccount, _ string, now time.Time) {
			ticket.ProcessOwnerID = &actor.ID
			ticket.SubmittedAt = &now
		},
	},
	{from: domain.StatusForPDApproval, to: domain.StatusCancelled}: {
		RequiredRole:  "the submitter or an approver",
		DefaultReason: "Cancelled by submitter",
		Authorize: func(pol *policy.Policy, actor *domain.UserAccount, ticket *domain.Ticket) bool {
			return pol.CanApprove(actor) || pol.CanCancel(actor, ticket)
		},
		Precondition: func(ticket *domain.Ticket, actor *domain.UserAccount, reason string) string {
			// Approvers rejecting someone else's request must say why;
			// submitters withdrawing their own may stay silent.
			if actor.ID != ticket.SubmitterID && strings.TrimSpace(reason) == "" {
				return "a rejection reason is required when an approver rejects a ticket"
			}
			return ""
		},
		Apply: func(ticket *domain.Ticket, actor *domain.UserAccount, reason string, now time.Time) {
			ticket.CancelledByID = &actor.ID
			ticket.CancelledAt = &now
			ticket.CancellationReason = &reason
		},
	},
	{from: domain.StatusSubmitted, to: domain.StatusDevInProgress}: {
		RequiredRole:  "a manager or the assigned developer",
		DefaultReason: "Development started",
		Authorize: func(_ *policy.Policy, actor *domain.UserAccount, ticket *domain.Ticket) bool {
			return isManager(actor) || isAssignedDeveloper(actor, ticket)
		},
		Precondition: func(ticket *domain.Ticket, _ *domain.UserAccount, _ string) string {
			if ticket.AssignedDeveloperID == nil {
				return "a developer must be assigned before development can start"
			}
			return ""
		},
	},
	{from: domain.StatusDevInProgress, to: domain.StatusQATesting}: {
		RequiredRole:  "a manager or the assigned developer",
		DefaultReason: "Ready for QA testing",
		Authorize: func(_ *policy.Policy, actor *domain.UserAccount, ticket *domain.Ticket) bool {
			return isManager(actor) || isAssignedDeveloper(actor, ticket)
		},
		Precondition: func(ticket *domain.Ticket, _ *domain.UserAccount, _ string) string {
			if ticket.AssignedQaID == nil {
				return "a QA tester must be assigned before QA testing can start"
			}
			return ""
		},
	},
	{from: domain.StatusQATesting, to: domain.StatusPDTesting}: {
		RequiredRole:  "a manager or the assigned QA tester",
		DefaultReason: "QA testing passed",
		Authorize: func(_ *policy.Policy, actor *domain.UserAccount, ticket *domain.Ticket) bool {
			return isManager(actor) || isAssignedQA(actor, ticket)
		},
	},
	{from: domain.StatusPDTesting, to: domain.StatusForDeployment}: {
		RequiredRole:  "a manager, an approver, or an organizational head",
		DefaultReason: "Accepted for deployment",
		Authorize: func(pol *policy.Policy, actor *domain.UserAccount, _ *domain.Ticket) bool {
			return isManager(actor) || pol.CanApprove(actor) || actor.ElevatedFlag()
		},
	},
	{from: domain.StatusForDeployment, to: domain.StatusDeployed}: {
		RequiredRole:  "a manager",
		DefaultReason: "Deployed to production",
		Authorize: func(_ *policy.Policy, actor *domain.UserAccount, _ *domain.Ticket) bool {
			return isManager(actor)
		},
		Apply: func(ticket *domain.Ticket, _ *domain.UserAccount, _ string, now time.Time) {
			ticket.DeployedAt = &now
		},
	},
}

func isManager(actor *domain.UserAccount) bool {
	return actor != nil && actor.Role == domain.RoleManager
}

func isAssignedDeveloper(actor *domain.UserAccount, ticket *domain.Ticket) bool {
	return actor != nil && ticket.AssignedDeveloperID != nil && *ticket.AssignedDeveloperID == actor.ID
}

func isAssignedQA(actor *domain.UserAccount, ticket *domain.Ticket) bool {
	return actor != nil && ticket.AssignedQaID != nil && *ticket.AssignedQaID == actor.ID
}
