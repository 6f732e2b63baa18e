package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// RequireAuthenticated ensures a caller account was resolved.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}

// RequireRole ensures the caller holds one of the allowed roles. An empty
// allow-list admits any authenticated caller.
func RequireRole(allowed ...domain.TicketRole) fiber.Handler {
	allowedSet := make(map[domain.TicketRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[actor.Role]; !exists {
			return apperrors.NewForbidden("insufficient role for this operation")
		}
		return c.Next()
	}
}
