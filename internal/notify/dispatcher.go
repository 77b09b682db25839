package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/metrics"
)

// Dispatcher runs lighting notifications on background workers. Dispatch
// never blocks the webhook path; requests beyond the queue capacity are dropped.
type Dispatcher struct {
	flasher Flasher
	metrics *metrics.Metrics
	logger  *zap.Logger
	queue   chan string
	timeout time.Duration
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewDispatcher creates a dispatcher with the given worker count and queue size
func NewDispatcher(flasher Flasher, workers, queueSize int, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		flasher: flasher,
		metrics: m,
		logger:  logger.Named("notify"),
		queue:   make(chan string, queueSize),
		timeout: 30 * time.Second,
		workers: workers,
	}
}

// Start launches the workers
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Dispatch queues a notification and reports whether it was accepted
func (d *Dispatcher) Dispatch(reason string) bool {
	select {
	case d.queue <- reason:
		return true
	default:
		d.logger.Warn("notification queue full, dropping", zap.String("reason", reason))
		d.metrics.Notifications.WithLabelValues("dropped").Inc()
		return false
	}
}

// Stop cancels in-flight notifications and waits for the workers to exit
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-d.queue:
			d.flash(ctx, reason)
		}
	}
}

func (d *Dispatcher) flash(ctx context.Context, reason string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.flasher.Flash(ctx); err != nil {
		d.logger.Warn("lighting notification failed", zap.String("reason", reason), zap.Error(err))
		d.metrics.Notifications.WithLabelValues("error").Inc()
		return
	}
	d.logger.Debug("lighting notification done", zap.String("reason", reason))
	d.metrics.Notifications.WithLabelValues("ok").Inc()
}
