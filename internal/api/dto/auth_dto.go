package dto

import (
	"time"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the signed token and the account it belongs to.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the public account projection. The password hash never
// leaves the identity store.
type UserResponse struct {
	ID             string            `json:"id"`
	Username       string            `json:"username"`
	Email          string            `json:"email"`
	DisplayName    string            `json:"display_name"`
	Role           domain.TicketRole `json:"role"`
	DepartmentHead bool              `json:"department_head"`
	OfficeHead     bool              `json:"office_head"`
	GroupDirector  bool              `json:"group_director"`
}
