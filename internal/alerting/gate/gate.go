package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/metrics"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Action int

const (
	NoOp Action = iota
	Created
	Suppressed
	Resolved
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Suppressed:
		return "suppressed"
	case Resolved:
		return "resolved"
	default:
		return "noop"
	}
}

// Outcome is what Reconcile did with one evaluation result.
type Outcome struct {
	Action Action
	// Log is the created episode when Action is Created.
	Log *models.AlertLog
	// Resolved counts the episodes closed when Action is Resolved.
	Resolved int64
	// NotifyErr is set when the episode was created but could not be handed
	// to the notifier.
	NotifyErr error
}

// Notifier accepts freshly created episodes for delivery.
type Notifier interface {
	Enqueue(ctx context.Context, user models.User, entry *models.AlertLog) error
}

// Decorator may enrich a result right before its episode is stored.
type Decorator interface {
	Decorate(ctx context.Context, sub *models.AlertSubscription, res *evaluator.Result) error
}

// Gate owns every write to the alert log.
type Gate struct {
	logs      repository.AlertLogRepo
	notifier  Notifier
	decorator Decorator
	metrics   *metrics.Metrics
	log       *log.Logger
}

type Option func(*Gate)

func WithDecorator(d Decorator) Option {
	return func(g *Gate) { g.decorator = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func New(logs repository.AlertLogRepo, notifier Notifier, opts ...Option) *Gate {
	g := &Gate{
		logs:     logs,
		notifier: notifier,
		log:      log.Default().Named("gate"),
	}
	for _, fn := range opts {
		fn(g)
	}
	return g
}

// Cooldown is the suppression window for kind.
func Cooldown(kind models.AlertKind) time.Duration {
	return time.Duration(kind.CooldownMinutes()) * time.Minute
}

// DedupKey names the cooldown bucket now falls into for the pair. Two
// concurrent creations for the same pair and bucket collide on it.
func DedupKey(subscriptionID, deviceID uint, now time.Time, cooldown time.Duration) string {
	bucket := now.Unix() / int64(cooldown/time.Second)
	return fmt.Sprintf("%d:%d:%d", subscriptionID, deviceID, bucket)
}

// Reconcile applies one evaluation result. A nil result resolves every open
// episode of the subscription.
func (g *Gate) Reconcile(ctx context.Context, sub *models.AlertSubscription, res *evaluator.Result, now time.Time) (Outcome, error) {
	ctx, span := tracer_client.Tracer("gate").Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(attribute.Int64("subscription.id", int64(sub.ID)))

	if res == nil {
		return g.resolve(ctx, sub, now)
	}
	return g.trigger(ctx, sub, res, now)
}

func (g *Gate) resolve(ctx context.Context, sub *models.AlertSubscription, now time.Time) (Outcome, error) {
	n, err := g.logs.ResolveOpen(ctx, sub.ID, now)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "failed to resolve open alerts")
	}
	if n == 0 {
		return Outcome{Action: NoOp}, nil
	}
	if g.metrics != nil {
		g.metrics.AlertsResolved.WithLabelValues(string(sub.AlertKind)).Add(float64(n))
	}
	g.log.Info("Resolved alert episodes",
		zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
		zap.String(constants.LogFieldAlertKind, string(sub.AlertKind)),
		zap.Int64("count", n),
	)
	return Outcome{Action: Resolved, Resolved: n}, nil
}

func (g *Gate) trigger(ctx context.Context, sub *models.AlertSubscription, res *evaluator.Result, now time.Time) (Outcome, error) {
	cooldown := Cooldown(sub.AlertKind)
	deviceID := res.DeviceID

	open, err := g.logs.FindOpenSince(ctx, sub.ID, &deviceID, now.Add(-cooldown))
	if err != nil {
		return Outcome{}, errors.Wrap(err, "failed to look up open alerts")
	}
	if open != nil {
		g.suppressed(sub)
		return Outcome{Action: Suppressed, Log: open}, nil
	}

	if g.decorator != nil {
		if dErr := g.decorator.Decorate(ctx, sub, res); dErr != nil {
			g.log.Warn("Failed to decorate alert",
				zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
				zap.Error(dErr),
			)
		}
	}

	key := DedupKey(sub.ID, deviceID, now, cooldown)
	entry := &models.AlertLog{
		AlertSubscriptionID: sub.ID,
		DeviceID:            &deviceID,
		TriggeredAt:         now.UTC(),
		Message:             res.Message,
		Data:                datatypes.JSONMap(res.Metadata),
		DedupKey:            &key,
	}
	if err := g.logs.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			g.suppressed(sub)
			return Outcome{Action: Suppressed}, nil
		}
		return Outcome{}, errors.Wrap(err, "failed to create alert log")
	}
	entry.Subscription = *sub
	if sub.Device != nil && sub.Device.ID == deviceID {
		entry.Device = sub.Device
	}

	if g.metrics != nil {
		g.metrics.AlertsTriggered.WithLabelValues(string(sub.AlertKind)).Inc()
	}
	g.log.Info("Alert triggered",
		zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
		zap.String(constants.LogFieldAlertKind, string(sub.AlertKind)),
		zap.Uint(constants.LogFieldDeviceID, deviceID),
		zap.Uint(constants.LogFieldAlertLogID, entry.ID),
		zap.String("message", entry.Message),
	)

	out := Outcome{Action: Created, Log: entry}
	if g.notifier != nil {
		if nErr := g.notifier.Enqueue(ctx, sub.User, entry); nErr != nil {
			out.NotifyErr = nErr
			g.log.Error("Failed to enqueue alert notification",
				zap.Uint(constants.LogFieldAlertLogID, entry.ID),
				zap.Error(nErr),
			)
		}
	}
	return out, nil
}

func (g *Gate) suppressed(sub *models.AlertSubscription) {
	if g.metrics != nil {
		g.metrics.AlertsSuppressed.WithLabelValues(string(sub.AlertKind)).Inc()
	}
}

// RecordTest stores a manual test episode. Test episodes bypass cooldown and
// dedup and are flagged with test=true in their data.
func (g *Gate) RecordTest(ctx context.Context, sub *models.AlertSubscription, deviceID *uint, message string, data map[string]interface{}, now time.Time) (*models.AlertLog, error) {
	payload := datatypes.JSONMap{}
	for k, v := range data {
		payload[k] = v
	}
	payload["test"] = true

	entry := &models.AlertLog{
		AlertSubscriptionID: sub.ID,
		DeviceID:            deviceID,
		TriggeredAt:         now.UTC(),
		Message:             message,
		Data:                payload,
	}
	if err := g.logs.Create(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "failed to create test alert log")
	}
	entry.Subscription = *sub
	g.log.Info("Test alert recorded",
		zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
		zap.Uint(constants.LogFieldAlertLogID, entry.ID),
	)
	return entry, nil
}
