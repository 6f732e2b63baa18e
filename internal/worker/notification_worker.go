// Package worker delivers notifications off the request path. Deliveries
// ride a bounded queue drained by a small pool of goroutines; a full
// queue drops rather than blocks.
package worker

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const deliverTimeout = 10 * time.Second

// Notification is one outbound delivery, already serialized.
type Notification struct {
	EventID   string
	EventType string
	TicketID  string
	Body      []byte
}

// NotificationWorker posts notifications to a webhook endpoint.
type NotificationWorker struct {
	webhookURL string
	queue      chan Notification
	workers    int
	client     *http.Client
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewNotificationWorker builds a worker. An empty webhook URL keeps the
// queue running but turns deliveries into debug-level no-ops, so event
// flow stays observable in environments without an endpoint.
func NewNotificationWorker(webhookURL string, queueSize, workers int, logger *zap.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		webhookURL: webhookURL,
		queue:      make(chan Notification, queueSize),
		workers:    workers,
		client:     &http.Client{Timeout: deliverTimeout},
		logger:     logger,
	}
}

// Start launches the delivery goroutines. The context bounds individual
// deliveries; cancelling it lets in-flight requests abort promptly.
func (w *NotificationWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for n := range w.queue {
				w.deliver(ctx, n)
			}
		}()
	}
	w.logger.Info("notification worker started",
		zap.Int("workers", w.workers),
		zap.Int("queue_size", cap(w.queue)),
	)
}

// Enqueue offers a notification without blocking. Returns false when the
// queue is full or the worker has been stopped.
func (w *NotificationWorker) Enqueue(n Notification) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case w.queue <- n:
		return true
	default:
		w.logger.Warn("notification queue full, dropping",
			zap.String("event_id", n.EventID),
			zap.String("event_type", n.EventType),
		)
		return false
	}
}

// Stop closes the queue and waits for in-flight deliveries to finish.
func (w *NotificationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
}

func (w *NotificationWorker) deliver(ctx context.Context, n Notification) {
	if w.webhookURL == "" {
		w.logger.Debug("notification delivery skipped, no webhook configured",
			zap.String("event_id", n.EventID),
			zap.String("event_type", n.EventType),
		)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.webhookURL, bytes.NewReader(n.Body))
	if err != nil {
		w.logger.Warn("notification request build failed",
			zap.String("event_id", n.EventID),
			zap.Error(err),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("event_id", n.EventID),
			zap.String("event_type", n.EventType),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("notification rejected by webhook",
			zap.String("event_id", n.EventID),
			zap.Int("status", resp.StatusCode),
		)
		return
	}
	w.logger.Debug("notification delivered",
		zap.String("event_id", n.EventID),
		zap.String("event_type", n.EventType),
	)
}
