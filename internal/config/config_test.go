package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devdesk/ticket-lifecycle/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_NAME", "APP_PORT", "HTTP_REQUEST_TIMEOUT_SECONDS",
		"POSTGRES_MAX_CONNS", "REDIS_ADDR", "REDIS_DB",
		"AUTH_ACCESS_TOKEN_TTL_MINUTES", "AUTH_BCRYPT_COST",
		"POLICY_APPROVER_USERNAMES", "NOTIFY_QUEUE_SIZE", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "ticket-lifecycle-service", cfg.App.Name)
	require.Equal(t, "8080", cfg.App.Port)
	require.Equal(t, 30, cfg.App.RequestTimeoutSeconds)
	require.Equal(t, int32(10), cfg.Postgres.MaxConns)
	require.True(t, cfg.Postgres.RunMigrations)
	require.Empty(t, cfg.Redis.Addr)
	require.Equal(t, 60, cfg.Auth.AccessTokenTTLMinutes)
	require.Equal(t, 12, cfg.Auth.BcryptCost)
	require.Nil(t, cfg.Policy.ApproverUsernames)
	require.Equal(t, "sap.integration", cfg.Integration.SubmitterUsername)
	require.Equal(t, 256, cfg.Notification.QueueSize)
	require.Equal(t, 2, cfg.Notification.Workers)
	require.Equal(t, ":9100", cfg.Observability.MetricsAddr)
	require.Empty(t, cfg.Bootstrap.AdminUsername)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("POSTGRES_DSN", "postgres://app:secret@db:5432/tickets")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("INTEGRATION_SHARED_SECRET", "bridge-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.App.Port)
	require.Equal(t, "postgres://app:secret@db:5432/tickets", cfg.Postgres.DSN)
	require.False(t, cfg.Postgres.RunMigrations)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 3, cfg.Redis.DB)
	require.Equal(t, "bridge-secret", cfg.Integration.SharedSecret)
}

func TestLoadRejectsUnparsableRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := config.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "REDIS_DB")
}

func TestPolicyListsSplitAndTrim(t *testing.T) {
	t.Setenv("POLICY_APPROVER_USERNAMES", "Petra.Approver , second.approver,,  ")
	t.Setenv("POLICY_CREATOR_USERNAMES", "carl.creator")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, []string{"Petra.Approver", "second.approver"}, cfg.Policy.ApproverUsernames)
	require.Equal(t, []string{"carl.creator"}, cfg.Policy.CreatorUsernames)
}

func TestInvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("NOTIFY_QUEUE_SIZE", "lots")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 256, cfg.Notification.QueueSize)
}

func TestDerivedValueHelpers(t *testing.T) {
	app := config.AppConfig{Host: "0.0.0.0", Port: "8080", RequestTimeoutSeconds: 15}
	require.Equal(t, "0.0.0.0:8080", app.Addr())
	require.Equal(t, 15*time.Second, app.RequestTimeout())

	app.RequestTimeoutSeconds = 0
	require.Equal(t, time.Duration(0), app.RequestTimeout())

	cache := config.CacheConfig{TicketTTLSeconds: 120}
	require.Equal(t, 2*time.Minute, cache.TicketTTL())
	cache.TicketTTLSeconds = -1
	require.Equal(t, time.Duration(0), cache.TicketTTL())
}
