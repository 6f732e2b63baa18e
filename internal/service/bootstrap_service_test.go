package service_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/devdesk/ticket-lifecycle/internal/auth"
	"github.com/devdesk/ticket-lifecycle/internal/config"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/service"
)

func newBootstrapHarness(users *fakeUserStore, boot config.BootstrapConfig, integ config.IntegrationConfig) *service.BootstrapService {
	return service.NewBootstrapService(users, nil, boot, integ, config.AuthConfig{BcryptCost: bcrypt.MinCost})
}

func TestBootstrapSeedsAdminAndSubmitter(t *testing.T) {
	users := newFakeUserStore()
	svc := newBootstrapHarness(users,
		config.BootstrapConfig{AdminUsername: "Admin.User", AdminPassword: "change-me", AdminEmail: "admin@devdesk.local"},
		config.IntegrationConfig{SubmitterUsername: "sap.integration", SubmitterEmail: "sap@devdesk.local"},
	)

	require.NoError(t, svc.EnsureSeedAccounts(context.Background()))

	admin, err := users.GetByUsername(context.Background(), "admin.user")
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, admin.Role)
	require.True(t, admin.Active)
	require.NoError(t, auth.ComparePassword(admin.PasswordHash, "change-me"))

	submitter, err := users.GetByUsername(context.Background(), "sap.integration")
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, submitter.Role)
	require.Equal(t, "SAP Integration", submitter.DisplayName)
	require.True(t, submitter.Active)
	require.NotEmpty(t, submitter.PasswordHash)
}

func TestBootstrapLeavesExistingAccountsAlone(t *testing.T) {
	users := newFakeUserStore()
	existing := svcAccount("u-admin", "admin.user", domain.RoleManager)
	existing.PasswordHash = "$2a$04$existinghash"
	users.add(existing)

	svc := newBootstrapHarness(users,
		config.BootstrapConfig{AdminUsername: "admin.user", AdminPassword: "new-password"},
		config.IntegrationConfig{},
	)
	require.NoError(t, svc.EnsureSeedAccounts(context.Background()))

	kept, err := users.GetByUsername(context.Background(), "admin.user")
	require.NoError(t, err)
	require.Equal(t, "$2a$04$existinghash", kept.PasswordHash)
}

func TestBootstrapSkipsUnconfiguredAdmin(t *testing.T) {
	users := newFakeUserStore()
	svc := newBootstrapHarness(users,
		config.BootstrapConfig{},
		config.IntegrationConfig{SubmitterUsername: "sap.integration"},
	)

	require.NoError(t, svc.EnsureSeedAccounts(context.Background()))

	_, err := users.GetByUsername(context.Background(), "admin.user")
	require.Error(t, err)
	_, err = users.GetByUsername(context.Background(), "sap.integration")
	require.NoError(t, err)
}

func TestBootstrapTreatsUniqueRaceAsBenign(t *testing.T) {
	users := newFakeUserStore()
	users.failNextCreate = &pgconn.PgError{Code: "23505"}

	svc := newBootstrapHarness(users,
		config.BootstrapConfig{AdminUsername: "admin.user", AdminPassword: "change-me"},
		config.IntegrationConfig{},
	)
	require.NoError(t, svc.EnsureSeedAccounts(context.Background()))
}

func TestBootstrapPropagatesRealCreateFailure(t *testing.T) {
	users := newFakeUserStore()
	users.failNextCreate = &pgconn.PgError{Code: "53300", Message: "too many connections"}

	svc := newBootstrapHarness(users,
		config.BootstrapConfig{AdminUsername: "admin.user", AdminPassword: "change-me"},
		config.IntegrationConfig{},
	)
	require.Error(t, svc.EnsureSeedAccounts(context.Background()))
}
