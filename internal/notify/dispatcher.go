// Package notify delivers reminder intents off the request path through a
// bounded worker pool.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Shivanand-hulikatti/orgevents/internal/metrics"
	"github.com/Shivanand-hulikatti/orgevents/internal/model"
)

// ErrQueueFull is returned by Enqueue when the delivery queue has no room.
var ErrQueueFull = errors.New("notify: delivery queue full")

// ErrClosed is returned by Enqueue after Drain.
var ErrClosed = errors.New("notify: dispatcher closed")

// Sender performs the actual delivery (email, SMS, webhook).
type Sender interface {
	Send(ctx context.Context, intent model.ReminderIntent) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, intent model.ReminderIntent) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, intent model.ReminderIntent) error {
	return f(ctx, intent)
}

// LogSender writes each intent to the logger. It stands in for a real
// delivery channel.
func LogSender(logger *slog.Logger) Sender {
	return SenderFunc(func(ctx context.Context, intent model.ReminderIntent) error {
		logger.InfoContext(ctx, "reminder delivered",
			"tenant_id", intent.TenantID,
			"event_id", intent.EventID,
			"event_title", intent.EventTitle,
			"member_id", intent.MemberID,
			"member_email", intent.MemberEmail,
			"start_date", intent.StartDate,
		)
		return nil
	})
}

// Dispatcher is a fixed-size goroutine pool with a bounded input queue.
// Deliveries are attempted once; failures are logged and counted.
type Dispatcher struct {
	queue  chan model.ReminderIntent
	sender Sender
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates and starts a pool with n workers and queue capacity depth.
func NewDispatcher(ctx context.Context, n, depth int, sender Sender, logger *slog.Logger) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		queue:  make(chan model.ReminderIntent, depth),
		sender: sender,
		logger: logger,
	}
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx)
		}()
	}
	return d
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case intent, ok := <-d.queue:
			if !ok {
				return
			}
			d.updateUtilization()
			d.deliver(ctx, intent)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, intent model.ReminderIntent) {
	if err := d.sender.Send(ctx, intent); err != nil {
		metrics.NotificationsDelivered.WithLabelValues("failed").Inc()
		d.logger.WarnContext(ctx, "reminder delivery failed",
			"tenant_id", intent.TenantID, "event_id", intent.EventID, "member_id", intent.MemberID, "error", err)
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("delivered").Inc()
}

// Enqueue hands an intent to the pool without blocking.
func (d *Dispatcher) Enqueue(_ context.Context, intent model.ReminderIntent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- intent:
		d.updateUtilization()
		return nil
	default:
		metrics.NotificationsDelivered.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Drain closes the queue and waits for queued deliveries to finish.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// QueueLen returns how many intents are currently queued.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

func (d *Dispatcher) updateUtilization() {
	if c := cap(d.queue); c > 0 {
		metrics.NotifyQueueUtilization.Set(float64(len(d.queue)) / float64(c))
	}
}
