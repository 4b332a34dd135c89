package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/metrics"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/okieraised/thermostat-alerts/internal/utilities"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoEmail = errors.New("user has no email address")

// LogLoader reloads an alert log with its subscription and device.
type LogLoader interface {
	GetByID(ctx context.Context, id uint) (*models.AlertLog, error)
}

// Dispatcher queues alert emails and delivers them from a worker pool.
type Dispatcher struct {
	queue     Queue
	sender    Sender
	renderer  *Renderer
	logs      LogLoader
	publisher Publisher
	metrics   *metrics.Metrics
	log       *log.Logger

	workers        int
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	popTimeout     time.Duration
	recoverEvery   time.Duration
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithRetry(maxAttempts int, initial, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if initial > 0 {
			d.backoffInitial = initial
		}
		if maxBackoff > 0 {
			d.backoffMax = maxBackoff
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithPopTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.popTimeout = timeout
		}
	}
}

// WithRecoverInterval sets how often Run takes back jobs claimed by consumers
// that are gone. Zero recovers only at start.
func WithRecoverInterval(every time.Duration) Option {
	return func(d *Dispatcher) { d.recoverEvery = every }
}

func NewDispatcher(queue Queue, sender Sender, renderer *Renderer, logs LogLoader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          queue,
		sender:         sender,
		renderer:       renderer,
		logs:           logs,
		log:            log.Default().Named("notification"),
		workers:        constants.DefaultMailWorkers,
		maxAttempts:    constants.DefaultMailMaxAttempts,
		backoffInitial: constants.DefaultMailBackoffInitial,
		backoffMax:     constants.DefaultMailBackoffMax,
		popTimeout:     constants.DefaultRedisPopTimeout,
	}
	for _, fn := range opts {
		fn(d)
	}
	return d
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.Notifications.WithLabelValues(result).Inc()
	}
}

// Enqueue queues an email for entry and returns without waiting for
// delivery. The MQTT fan-out, when configured, is best effort.
func (d *Dispatcher) Enqueue(ctx context.Context, user models.User, entry *models.AlertLog) error {
	if !user.HasEmail() {
		d.count("refused")
		return ErrNoEmail
	}

	job := &Job{
		ID:         uuid.NewString(),
		AlertLogID: entry.ID,
		Recipient:  user.Email,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := d.queue.Push(ctx, job); err != nil {
		d.count("refused")
		return errors.Wrap(err, "failed to queue notification")
	}
	d.count("queued")
	d.log.Debug("Queued alert notification",
		zap.String(constants.LogFieldJobID, job.ID),
		zap.Uint(constants.LogFieldAlertLogID, entry.ID),
	)

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, entry); err != nil {
			d.log.Warn("Failed to publish alert event",
				zap.Uint(constants.LogFieldAlertLogID, entry.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// SendNow renders and delivers synchronously. entry.Subscription must be
// loaded.
func (d *Dispatcher) SendNow(ctx context.Context, user models.User, entry *models.AlertLog) error {
	if !user.HasEmail() {
		d.count("refused")
		return ErrNoEmail
	}
	msg, err := d.renderer.Render(user.Email, entry)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.count("failed")
		return err
	}
	d.count("sent")
	return nil
}

// Run requeues jobs left claimed by consumers that are gone and then delivers
// until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.recover(ctx)

	d.log.Info("Notification workers started", zap.Int("workers", d.workers))
	g, gctx := errgroup.WithContext(ctx)
	if d.recoverEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(d.recoverEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					d.recover(gctx)
				}
			}
		})
	}
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	err := g.Wait()
	d.log.Info("Notification workers stopped")
	return err
}

func (d *Dispatcher) recover(ctx context.Context) {
	n, err := d.queue.Recover(ctx)
	if err != nil {
		d.log.Warn("Failed to recover claimed notifications", zap.Error(err))
	} else if n > 0 {
		d.log.Info("Recovered claimed notifications", zap.Int("count", n))
	}
}

// drainPollTimeout is how long Drain waits on an empty queue before a worker
// stops.
const drainPollTimeout = 100 * time.Millisecond

// Drain delivers queued jobs, with the usual retries, until the queue is
// empty. One-shot sweeps call it before exiting so that mail queued in
// process is not lost.
func (d *Dispatcher) Drain(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				job, err := d.queue.Pop(gctx, drainPollTimeout)
				if err != nil {
					return err
				}
				if job == nil {
					return nil
				}
				d.process(gctx, job)
			}
		})
	}
	return errors.Wrap(g.Wait(), "failed to drain notification queue")
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		job, err := d.queue.Pop(ctx, d.popTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			d.log.Warn("Failed to pop notification job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.popTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}
		d.process(ctx, job)
	}
}

func (d *Dispatcher) process(ctx context.Context, job *Job) {
	ctx, span := tracer_client.Tracer("notification").Start(ctx, "Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int64("alert_log.id", int64(job.AlertLogID)),
	)

	logger := d.log.WithSpan(ctx).With(
		zap.String(constants.LogFieldJobID, job.ID),
		zap.Uint(constants.LogFieldAlertLogID, job.AlertLogID),
	)

	entry, err := d.logs.GetByID(ctx, job.AlertLogID)
	if errors.Is(err, repository.ErrNotFound) {
		// the subscription was deleted along with its logs
		logger.Info("Dropping notification for deleted alert log")
		d.ack(ctx, job, logger)
		return
	}
	if err != nil {
		d.fail(ctx, job, err, logger)
		return
	}

	msg, err := d.renderer.Render(job.Recipient, entry)
	if err != nil {
		d.fail(ctx, job, err, logger)
		return
	}

	err = utilities.RetryWithBackoff(ctx, func(attempt int) error {
		if attempt > 0 {
			d.count("retried")
		}
		job.Attempts++
		sErr := d.sender.Send(ctx, msg)
		if sErr != nil {
			logger.Warn("Notification delivery attempt failed",
				zap.Int("attempt", job.Attempts),
				zap.Error(sErr),
			)
		}
		return sErr
	}, d.maxAttempts, d.backoffInitial, d.backoffMax)

	if ctx.Err() != nil {
		// left claimed; recovered on restart or once the lease lapses
		return
	}
	if err != nil {
		d.fail(ctx, job, err, logger)
		return
	}
	d.count("sent")
	logger.Info("Alert notification sent", zap.String("recipient", job.Recipient))
	d.ack(ctx, job, logger)
}

func (d *Dispatcher) ack(ctx context.Context, job *Job, logger *log.Logger) {
	if err := d.queue.Ack(ctx, job); err != nil {
		logger.Warn("Failed to ack notification job", zap.Error(err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, job *Job, cause error, logger *log.Logger) {
	job.LastError = cause.Error()
	d.count("dead_letter")
	logger.Error("Notification moved to dead letter list",
		zap.Int("attempts", job.Attempts),
		zap.Error(cause),
	)
	if err := d.queue.DeadLetter(ctx, job); err != nil {
		logger.Error("Failed to dead-letter notification job", zap.Error(err))
	}
}
