// Package notify delivers reward notifications to the external notification
// collaborator without ever blocking or failing the core flow.
//
// The coordinator enqueues payloads on a buffered channel; a single worker
// goroutine hands them to the configured Notifier. A full queue drops the
// payload with a warning, and delivery errors are logged and swallowed — the
// roster and ledger effects they describe have already committed.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Payload is one notification to deliver.
type Payload struct {
	UserID  string         `json:"user_id"`
	Kind    string         `json:"kind"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notification kinds emitted by the coordinator.
const (
	KindUnlock   = "unlock"
	KindPromoted = "waitlist_promoted"
)

// Notifier is the external delivery collaborator.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// LogNotifier is the default Notifier: it writes the payload to the
// structured log. Real deployments swap in a push/email implementation.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify logs the payload.
func (n *LogNotifier) Notify(_ context.Context, p Payload) error {
	n.Log.Info("notification",
		slog.String("user_id", p.UserID),
		slog.String("kind", p.Kind),
		slog.String("title", p.Title),
		slog.String("message", p.Message),
	)
	return nil
}

// Dispatcher is the async fan-out between the coordinator and the Notifier.
type Dispatcher struct {
	notifier Notifier
	log      *slog.Logger
	queue    chan Payload
	done     chan struct{}
	stop     sync.Once
}

// deliverTimeout bounds one delivery attempt so a hung collaborator cannot
// stall the queue forever.
const deliverTimeout = 10 * time.Second

// NewDispatcher starts the worker goroutine. buffer is the queue depth;
// payloads beyond it are dropped, not queued unboundedly.
func NewDispatcher(n Notifier, buffer int, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		notifier: n,
		log:      log,
		queue:    make(chan Payload, buffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue hands a payload to the worker. It never blocks: when the queue is
// full the payload is dropped with a warning.
func (d *Dispatcher) Enqueue(p Payload) {
	select {
	case d.queue <- p:
	default:
		d.log.Warn("notification queue full, dropping payload",
			slog.String("user_id", p.UserID),
			slog.String("kind", p.Kind))
	}
}

// Close stops accepting payloads and waits for the worker to drain the
// queue, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stop.Do(func() { close(d.queue) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for p := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := d.notifier.Notify(ctx, p); err != nil {
			d.log.Warn("notification delivery failed",
				slog.String("user_id", p.UserID),
				slog.String("kind", p.Kind),
				slog.Any("error", err))
		}
		cancel()
	}
}
