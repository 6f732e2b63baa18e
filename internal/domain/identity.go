package domain

import "time"

// TicketRole is the pipeline role an account plays.
type TicketRole string

const (
	RoleUser      TicketRole = "USER"
	RoleDeveloper TicketRole = "DEVELOPER"
	RoleQA        TicketRole = "QA"
	RoleManager   TicketRole = "MANAGER"
)

// IsKnownRole reports whether the value is a recognized role.
func IsKnownRole(role TicketRole) bool {
	switch role {
	case RoleUser, RoleDeveloper, RoleQA, RoleManager:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to the delivery organization
// rather than a plain requester.
func (r TicketRole) IsStaff() bool {
	switch r {
	case RoleDeveloper, RoleQA, RoleManager:
		return true
	}
	return false
}

// UserAccount is the identity-store record for a caller.
//
// The organizational flags come from the directory hierarchy and gate the
// acceptance step independently of the approver allow-list; the approver
// flag itself is not stored here but resolved against injected policy
// configuration.
type UserAccount struct {
	ID             string
	Username       string
	Email          string
	DisplayName    string
	PasswordHash   string
	Role           TicketRole
	DepartmentHead bool
	OfficeHead     bool
	GroupDirector  bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ElevatedFlag reports whether the account holds any hierarchy-derived
// permission (department head, office head or group director).
func (u *UserAccount) ElevatedFlag() bool {
	if u == nil {
		return false
	}
	return u.DepartmentHead || u.OfficeHead || u.GroupDirector
}
