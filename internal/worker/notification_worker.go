// Package worker delivers notifications off the request path.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

const defaultQueueSize = 64

// Deliverer sends one event to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, event events.Event) error
}

// WebhookDeliverer POSTs events as JSON to a fixed URL.
type WebhookDeliverer struct {
	URL     string
	Timeout time.Duration
}

func (d WebhookDeliverer) Deliver(_ context.Context, event events.Event) error {
	agent := fiber.Post(d.URL).JSON(event)
	if d.Timeout > 0 {
		agent = agent.Timeout(d.Timeout)
	}
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post webhook: %w", errs[0])
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("post webhook: unexpected status %d", status)
	}
	return nil
}

// NotificationWorker drains a bounded queue of events through a Deliverer.
type NotificationWorker struct {
	queue   chan events.Event
	deliver Deliverer
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewNotificationWorker creates a worker with the given queue capacity.
func NewNotificationWorker(deliverer Deliverer, size int, logger *zap.Logger) *NotificationWorker {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:   make(chan events.Event, size),
		deliver: deliverer,
		logger:  logger,
	}
}

// Enqueue never blocks; it reports false when the queue is full or stopped.
func (w *NotificationWorker) Enqueue(event events.Event) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Start runs the delivery loop until ctx is cancelled or Stop is called.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.queue:
				if !ok {
					return
				}
				if err := w.deliver.Deliver(ctx, event); err != nil {
					w.logger.Warn("notification delivery failed",
						zap.String("ticket_id", event.TicketID),
						zap.String("event_type", string(event.Type)),
						zap.Error(err))
				}
			}
		}
	}()
}

// Stop closes the queue and waits for queued events to be delivered.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// StartNotificationWorker registers notification handlers and starts the
// delivery loop when a worker is supplied.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, w *NotificationWorker) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if w != nil {
		w.Start(ctx)
	}
}
