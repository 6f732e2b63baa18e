package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/identity"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and resolves the caller account.
type AuthMiddleware struct {
	tokens   *TokenManager
	resolver *identity.Resolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, resolver *identity.Resolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, resolver: resolver}
}

// Handle enforces authentication for protected routes. The account is
// re-resolved on every request, so deactivated accounts lose access the
// moment the flag flips, token expiry notwithstanding.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthenticated("invalid token")
	}

	user, err := m.resolver.ByID(c.UserContext(), claims.Subject)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return apperrors.NewUnauthenticated("account no longer valid")
		}
		return err
	}

	c.Locals(principalKey, user)
	return c.Next()
}

// ActorFromContext retrieves the authenticated account.
func ActorFromContext(c *fiber.Ctx) (*domain.UserAccount, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*domain.UserAccount)
	return user, ok
}
