package service

import (
	"context"
	"crypto/subtle"
	"time"

	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/cache"
	"github.com/devdesk/ticket-lifecycle/internal/config"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/identity"
	"github.com/devdesk/ticket-lifecycle/internal/workflow"
)

// IntegrationService accepts tickets pushed by the upstream SAP bridge.
// These bypass the approval stage and land directly in SUBMITTED under a
// dedicated machine account.
type IntegrationService struct {
	engine      *workflow.Engine
	resolver    *identity.Resolver
	ticketCache *cache.TicketCache
	logger      *zap.Logger
	cfg         config.IntegrationConfig
}

// NewIntegrationService creates the service.
func NewIntegrationService(engine *workflow.Engine, resolver *identity.Resolver, ticketCache *cache.TicketCache, logger *zap.Logger, cfg config.IntegrationConfig) *IntegrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationService{
		engine:      engine,
		resolver:    resolver,
		ticketCache: ticketCache,
		logger:      logger,
		cfg:         cfg,
	}
}

// VerifySecret checks the shared secret presented by the caller. An empty
// configured secret disables the integration channel entirely.
func (s *IntegrationService) VerifySecret(secret string) bool {
	if s.cfg.SharedSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.SharedSecret)) == 1
}

// CreateTicket opens a ticket on behalf of the integration submitter
// account. The account must be seeded; a missing account surfaces as not
// found rather than being created on the fly.
func (s *IntegrationService) CreateTicket(ctx context.Context, input workflow.CreateTicketInput) (*domain.Ticket, error) {
	submitter, err := s.resolver.ByUsername(ctx, s.cfg.SubmitterUsername)
	if err != nil {
		return nil, err
	}

	ticket, err := s.engine.CreateIntegrationTicket(ctx, submitter, input)
	if err != nil {
		return nil, err
	}
	s.ticketCache.Put(ctx, ticket)
	s.logger.Info("integration ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.Time("received_at", time.Now().UTC()),
	)
	return ticket, nil
}
