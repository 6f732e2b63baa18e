package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/config"
	"github.com/devdesk/ticket-lifecycle/internal/events"
	"github.com/devdesk/ticket-lifecycle/internal/worker"
)

// NotificationService fans ticket events out to the notification worker.
// Handlers run on the publishing goroutine, so they only serialize and
// enqueue; delivery happens in the worker pool.
type NotificationService struct {
	dispatcher events.Dispatcher
	queue      *worker.NotificationWorker
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, queue *worker.NotificationWorker, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes the forwarder to every ticket event type.
func (s *NotificationService) RegisterHandlers() {
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketTransitioned,
		events.EventTicketAssigned,
		events.EventTicketCommentAdded,
	} {
		s.dispatcher.Subscribe(eventType, s.forward)
	}
}

func (s *NotificationService) forward(_ context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if s.cfg.EmailFrom != "" {
		// Email dispatch is not wired to a provider; surface the intent
		// in the log so operators can see what would have been sent.
		s.logger.Info("notification email queued",
			zap.String("from", s.cfg.EmailFrom),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
		)
	}
	s.queue.Enqueue(worker.Notification{
		EventID:   event.ID,
		EventType: string(event.Type),
		TicketID:  event.TicketID,
		Body:      body,
	})
	return nil
}
