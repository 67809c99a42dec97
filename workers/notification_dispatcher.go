package workers

import (
	"context"
	"sync"
	"time"

	"book-club-system/metrics"
	"book-club-system/models"

	"github.com/rs/zerolog"
)

// Sink delivers a single notification.
type Sink interface {
	Notify(ctx context.Context, n *models.Notification) error
}

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds each delivery.
	Timeout time.Duration
}

// NotificationDispatcher delivers notifications on a pool of background
// goroutines. Dispatch never blocks: when the queue is full the notification
// is dropped and counted. Delivery failures are logged and never reach the
// code that dispatched them.
type NotificationDispatcher struct {
	sink    Sink
	cfg     DispatcherConfig
	log     zerolog.Logger
	queue   chan models.Notification
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewNotificationDispatcher(sink Sink, cfg DispatcherConfig, log zerolog.Logger) *NotificationDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &NotificationDispatcher{
		sink:  sink,
		cfg:   cfg,
		log:   log,
		queue: make(chan models.Notification, cfg.QueueSize),
	}
}

// Start launches the workers. Deliveries run under contexts derived from ctx.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.log.Info().Int("workers", d.cfg.Workers).Int("queue_size", d.cfg.QueueSize).Msg("starting notification dispatcher")
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Dispatch enqueues n for delivery.
func (d *NotificationDispatcher) Dispatch(n models.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.RecordNotification(metrics.NotificationDropped)
		d.log.Warn().Str("user_id", n.UserID).Str("type", string(n.Type)).Msg("dispatcher closed, notification dropped")
		return
	}

	select {
	case d.queue <- n:
	default:
		metrics.RecordNotification(metrics.NotificationDropped)
		d.log.Warn().Str("user_id", n.UserID).Str("type", string(n.Type)).Msg("notification queue full, notification dropped")
	}
}

// Close stops accepting notifications and waits for the queued ones to be
// delivered.
func (d *NotificationDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	d.wg.Wait()
	d.log.Info().Msg("notification dispatcher stopped")
}

func (d *NotificationDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordNotification(metrics.NotificationFailed)
			d.log.Error().Interface("panic", r).Str("user_id", n.UserID).Msg("notification delivery panicked")
		}
	}()

	// Queued work still drains after ctx is cancelled.
	deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
	defer cancel()

	if err := d.sink.Notify(deliveryCtx, &n); err != nil {
		metrics.RecordNotification(metrics.NotificationFailed)
		d.log.Error().Err(err).
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("notification delivery failed")
		return
	}
	metrics.RecordNotification(metrics.NotificationSent)
}
