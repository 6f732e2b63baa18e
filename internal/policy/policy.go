package policy

import (
	"strings"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// Config carries the permission allow-lists injected at construction.
// They are deliberately configuration, not code: both lists evolve
// per environment and the approver list is distinct from the
// hierarchy-derived organizational flags.
type Config struct {
	ApproverUsernames []string
	CreatorUsernames  []string
}

// Policy answers "may this identity perform this action on this ticket"
// as pure predicates. It never mutates state and never returns errors;
// callers translate a "no" into the taxonomy error they owe their caller.
type Policy struct {
	approvers map[string]struct{}
	creators  map[string]struct{}
}

// New builds a Policy from the injected allow-lists. Usernames are
// matched case-insensitively.
func New(cfg Config) *Policy {
	return &Policy{
		approvers: usernameSet(cfg.ApproverUsernames),
		creators:  usernameSet(cfg.CreatorUsernames),
	}
}

func usernameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// CanCreate reports whether the actor may open tickets. Creation is not
// self-service: only identities on the creator allow-list qualify.
func (p *Policy) CanCreate(actor *domain.UserAccount) bool {
	if actor == nil {
		return false
	}
	_, ok := p.creators[strings.ToLower(actor.Username)]
	return ok
}

// CanApprove reports whether the actor sits on the approver allow-list.
func (p *Policy) CanApprove(actor *domain.UserAccount) bool {
	if actor == nil {
		return false
	}
	_, ok := p.approvers[strings.ToLower(actor.Username)]
	return ok
}

// CanView reports whether the actor may read the ticket: the submitter,
// the process owner, either assignee, any manager, or a holder of an
// elevated organizational flag.
func (p *Policy) CanView(actor *domain.UserAccount, ticket *domain.Ticket) bool {
	if actor == nil || ticket == nil {
		return false
	}
	if actor.Role == domain.RoleManager || actor.ElevatedFlag() {
		return true
	}
	if ticket.SubmitterID == actor.ID {
		return true
	}
	if ticket.ProcessOwnerID != nil && *ticket.ProcessOwnerID == actor.ID {
		return true
	}
	if ticket.AssignedDeveloperID != nil && *ticket.AssignedDeveloperID == actor.ID {
		return true
	}
	if ticket.AssignedQaID != nil && *ticket.AssignedQaID == actor.ID {
		return true
	}
	return false
}

// CanComment mirrors CanView; commenting is never narrower than reading.
func (p *Policy) CanComment(actor *domain.UserAccount, ticket *domain.Ticket) bool {
	return p.CanView(actor, ticket)
}

// CanCommentInternal reports whether the actor may write staff-only
// comments.
func (p *Policy) CanCommentInternal(actor *domain.UserAccount) bool {
	if actor == nil {
		return false
	}
	return actor.Role.IsStaff() || actor.ElevatedFlag()
}

// CanCancel reports whether the actor may withdraw the ticket: only the
// submitter, and only while the ticket still awaits approval.
func (p *Policy) CanCancel(actor *domain.UserAccount, ticket *domain.Ticket) bool {
	if actor == nil || ticket == nil {
		return false
	}
	return ticket.SubmitterID == actor.ID && ticket.Status == domain.StatusForPDApproval
}

// CanAssign reports whether the actor may set the developer/QA
// assignments.
func (p *Policy) CanAssign(actor *domain.UserAccount) bool {
	if actor == nil {
		return false
	}
	return actor.Role == domain.RoleManager
}
