package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// AuthService verifies credentials and issues access tokens.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewAuthService creates the service.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// LoginResult carries a signed token and the authenticated account.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.UserAccount
}

// Login checks the username/password pair and returns a fresh token.
// Unknown accounts, deactivated accounts, and wrong passwords all map to
// the same unauthenticated error so the response does not leak which
// usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewValidationError("username and password are required", nil)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
