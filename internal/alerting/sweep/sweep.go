package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/alerting/gate"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/metrics"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that tracks sweep health.
const HealthService = "thermostat.alerts.Sweep"

var ErrSweepInProgress = errors.New("sweep already in progress")

type Subscriptions interface {
	ListEnabled(ctx context.Context) ([]models.AlertSubscription, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, sub *models.AlertSubscription, now time.Time) (*evaluator.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, sub *models.AlertSubscription, res *evaluator.Result, now time.Time) (gate.Outcome, error)
}

// HealthReporter is satisfied by *health.Server.
type HealthReporter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type Stats struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Resolved  int `json:"resolved"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Status describes the most recent sweep.
type Status struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Stats      Stats         `json:"stats"`
	Error      string        `json:"error,omitempty"`
}

func (s Status) OK() bool { return s.Error == "" && !s.FinishedAt.IsZero() }

// Sweeper runs one pass over every enabled subscription.
type Sweeper struct {
	subs    Subscriptions
	eval    Evaluator
	gate    Reconciler
	clock   func() time.Time
	metrics *metrics.Metrics
	health  HealthReporter
	log     *log.Logger

	running sync.Mutex

	statusMu sync.RWMutex
	last     *Status
}

type Option func(*Sweeper)

func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) { s.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithHealth(h HealthReporter) Option {
	return func(s *Sweeper) { s.health = h }
}

func New(subs Subscriptions, eval Evaluator, g Reconciler, opts ...Option) *Sweeper {
	s := &Sweeper{
		subs:  subs,
		eval:  eval,
		gate:  g,
		clock: time.Now,
		log:   log.Default().Named("sweep"),
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// LastStatus returns the most recent sweep, or false before the first one.
func (s *Sweeper) LastStatus() (Status, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if s.last == nil {
		return Status{}, false
	}
	return *s.last, true
}

// RunSweep evaluates every enabled subscription once. Per-subscription
// failures are counted in Stats.Failed; an error is returned only when the
// sweep could not run or ctx ended it early. Checked counts every visited
// subscription, including the skipped ones. Callers that need the sweep to
// finish regardless of their own lifetime pass context.WithoutCancel.
func (s *Sweeper) RunSweep(ctx context.Context) (Stats, error) {
	if !s.running.TryLock() {
		s.count("skipped")
		s.log.Warn("Sweep already in progress, skipping")
		return Stats{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	ctx, span := tracer_client.Tracer("sweep").Start(ctx, "RunSweep")
	defer span.End()

	now := s.clock().UTC()
	status := Status{StartedAt: now}
	started := time.Now()

	stats, err := s.sweep(ctx, now)

	status.Duration = time.Since(started)
	status.FinishedAt = status.StartedAt.Add(status.Duration)
	status.Stats = stats
	span.SetAttributes(
		attribute.Int("sweep.checked", stats.Checked),
		attribute.Int("sweep.triggered", stats.Triggered),
		attribute.Int("sweep.failed", stats.Failed),
	)

	switch {
	case err != nil && ctx.Err() != nil:
		// Stopped by the caller; says nothing about the sweep's health.
		status.Error = err.Error()
		s.count("cancelled")
		s.log.Warn("Sweep cancelled",
			zap.Int("checked", stats.Checked),
			zap.Error(err),
		)
	case err != nil:
		status.Error = err.Error()
		span.RecordError(err)
		s.count("failed")
		s.setHealth(healthpb.HealthCheckResponse_NOT_SERVING)
		s.log.Error("Sweep failed", zap.Error(err))
	default:
		s.count("completed")
		s.setHealth(healthpb.HealthCheckResponse_SERVING)
		if s.metrics != nil {
			s.metrics.SweepDuration.Observe(status.Duration.Seconds())
			s.metrics.LastSweep.WithLabelValues("checked").Set(float64(stats.Checked))
			s.metrics.LastSweep.WithLabelValues("triggered").Set(float64(stats.Triggered))
			s.metrics.LastSweep.WithLabelValues("resolved").Set(float64(stats.Resolved))
			s.metrics.LastSweep.WithLabelValues("skipped").Set(float64(stats.Skipped))
			s.metrics.LastSweep.WithLabelValues("failed").Set(float64(stats.Failed))
		}
		s.log.Info("Sweep completed",
			zap.Int("checked", stats.Checked),
			zap.Int("triggered", stats.Triggered),
			zap.Int("resolved", stats.Resolved),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
			zap.Duration("duration", status.Duration),
		)
	}

	s.statusMu.Lock()
	s.last = &status
	s.statusMu.Unlock()

	return stats, err
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	subs, err := s.subs.ListEnabled(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to load subscriptions")
	}

	for i := range subs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++
		sub := &subs[i]
		logger := s.log.With(
			zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
			zap.String(constants.LogFieldAlertKind, string(sub.AlertKind)),
			zap.Uint(constants.LogFieldUserID, sub.UserID),
		)

		if !sub.User.HasEmail() {
			stats.Skipped++
			logger.Warn("Skipping subscription of user without email")
			continue
		}

		res, err := s.eval.Evaluate(ctx, sub, now)
		if err != nil {
			s.failed(&stats)
			logger.Error("Failed to evaluate subscription", zap.Error(err))
			continue
		}

		out, err := s.gate.Reconcile(ctx, sub, res, now)
		if err != nil {
			s.failed(&stats)
			logger.Error("Failed to reconcile subscription", zap.Error(err))
			continue
		}
		switch out.Action {
		case gate.Created:
			stats.Triggered++
		case gate.Resolved:
			stats.Resolved += int(out.Resolved)
		}
	}
	return stats, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	s.log.Info("Sweep scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunSweep(ctx); err != nil && ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			s.log.Info("Sweep scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
	s.log.Info("Sweep scheduler stopped")
	return nil
}

func (s *Sweeper) failed(stats *Stats) {
	stats.Failed++
	if s.metrics != nil {
		s.metrics.SubscriptionErrors.Inc()
	}
}

func (s *Sweeper) count(result string) {
	if s.metrics != nil {
		s.metrics.Sweeps.WithLabelValues(result).Inc()
	}
}

func (s *Sweeper) setHealth(status healthpb.HealthCheckResponse_ServingStatus) {
	if s.health != nil {
		s.health.SetServingStatus(HealthService, status)
	}
}
