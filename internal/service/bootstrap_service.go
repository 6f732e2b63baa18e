package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/config"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
)

const uniqueViolationCode = "23505"

// BootstrapService seeds the accounts the service cannot run without:
// the initial manager and the machine account the SAP bridge submits
// under. There is no self-registration, so these must exist before the
// first request.
type BootstrapService struct {
	users  repository.UserRepository
	logger *zap.Logger
	boot   config.BootstrapConfig
	integ  config.IntegrationConfig
	auth   config.AuthConfig
}

// NewBootstrapService creates the service.
func NewBootstrapService(users repository.UserRepository, logger *zap.Logger, boot config.BootstrapConfig, integ config.IntegrationConfig, authCfg config.AuthConfig) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapService{users: users, logger: logger, boot: boot, integ: integ, auth: authCfg}
}

// EnsureSeedAccounts creates any missing seed accounts. Existing accounts
// are left untouched, so repeated boots and rolling restarts are safe.
func (s *BootstrapService) EnsureSeedAccounts(ctx context.Context) error {
	if s.boot.AdminUsername != "" && s.boot.AdminPassword != "" {
		admin := &domain.UserAccount{
			Username:    s.boot.AdminUsername,
			Email:       s.boot.AdminEmail,
			DisplayName: "Administrator",
			Role:        domain.RoleManager,
			Active:      true,
		}
		if err := s.ensureAccount(ctx, admin, s.boot.AdminPassword); err != nil {
			return err
		}
	} else {
		s.logger.Warn("bootstrap admin not configured, skipping seed")
	}

	if s.integ.SubmitterUsername != "" {
		// The machine account never logs in interactively; give it a
		// throwaway random password so the hash is still valid bcrypt.
		submitter := &domain.UserAccount{
			Username:    s.integ.SubmitterUsername,
			Email:       s.integ.SubmitterEmail,
			DisplayName: "SAP Integration",
			Role:        domain.RoleUser,
			Active:      true,
		}
		if err := s.ensureAccount(ctx, submitter, uuid.NewString()); err != nil {
			return err
		}
	}
	return nil
}

func (s *BootstrapService) ensureAccount(ctx context.Context, account *domain.UserAccount, password string) error {
	_, err := s.users.GetByUsername(ctx, account.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password, s.auth.BcryptCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	account.PasswordHash = hash
	account.CreatedAt = now
	account.UpdatedAt = now

	if err := s.users.Create(ctx, account); err != nil {
		// Another replica may have won the race between lookup and insert.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			s.logger.Debug("seed account already created elsewhere",
				zap.String("username", account.Username),
			)
			return nil
		}
		return err
	}
	s.logger.Info("seed account created",
		zap.String("username", account.Username),
		zap.String("role", string(account.Role)),
	)
	return nil
}
