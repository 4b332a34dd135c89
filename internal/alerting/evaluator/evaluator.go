package evaluator

import (
	"context"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrUnknownKind = errors.New("no evaluator registered for alert kind")

// Telemetry is the read side of the telemetry store used by the rules.
type Telemetry interface {
	Devices(ctx context.Context, deviceID *uint) ([]models.Device, error)
	LatestReading(ctx context.Context, deviceID uint, sensorID string) (*models.TemperatureReading, error)
	ReadingsSince(ctx context.Context, deviceID uint, since time.Time) ([]models.TemperatureReading, error)
	ReadingsBetween(ctx context.Context, deviceID uint, from, to time.Time) ([]models.TemperatureReading, error)
	HasReadingsBetween(ctx context.Context, deviceID uint, from, to time.Time) (bool, error)
	Relays(ctx context.Context, deviceID uint) ([]models.Relay, error)
	RelayCurrentState(ctx context.Context, relayID uint) (*models.RelayState, error)
	LatestRelayStateSince(ctx context.Context, relayID uint, since time.Time) (*models.RelayState, error)
	LatestRelayStateOtherThan(ctx context.Context, relayID uint, state bool) (*models.RelayState, error)
	CountRelayStatesSince(ctx context.Context, relayID uint, since time.Time) (int64, error)
	CountRelayStatesBetween(ctx context.Context, relayID uint, from, to time.Time, state bool) (int64, error)
}

// Period is the half-open reporting window [From, To) of a summary.
type Period struct {
	From time.Time
	To   time.Time
}

// Result describes a triggered condition on one device.
type Result struct {
	DeviceID   uint
	DeviceName string
	Message    string
	Metadata   map[string]interface{}
	Period     *Period
}

// rule checks one device and returns nil when the condition does not hold.
type rule func(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error)

type Evaluator struct {
	telemetry Telemetry
	loc       *time.Location
	log       *log.Logger
	rules     map[models.AlertKind]rule
}

type Option func(*Evaluator)

// WithLocation sets the zone used for schedules, report periods and the
// timestamps rendered into messages. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func New(telemetry Telemetry, opts ...Option) *Evaluator {
	e := &Evaluator{
		telemetry: telemetry,
		loc:       time.UTC,
		log:       log.Default().Named("evaluator"),
	}
	for _, fn := range opts {
		fn(e)
	}
	e.rules = map[models.AlertKind]rule{
		models.KindTempHigh:           e.tempHigh,
		models.KindTempLow:            e.tempLow,
		models.KindTempRapidChange:    e.tempRapidChange,
		models.KindTempSensorOffline:  e.tempSensorOffline,
		models.KindDeviceOffline:      e.deviceOffline,
		models.KindDeviceOnline:       e.deviceOnline,
		models.KindDeviceNotReporting: e.deviceNotReporting,
		models.KindRelayStateChanged:  e.relayStateChanged,
		models.KindRelayModeChanged:   e.relayModeChanged,
		models.KindRelayStuck:         e.relayStuck,
		models.KindRelayCycling:       e.relayCycling,
		models.KindDailySummary:       e.dailySummary,
		models.KindWeeklySummary:      e.weeklySummary,
	}
	return e
}

func (e *Evaluator) Location() *time.Location { return e.loc }

// Evaluate checks sub against the devices it covers and returns the first
// device, in id order, for which the condition holds. A nil result means not
// triggered. Evaluate never writes.
func (e *Evaluator) Evaluate(ctx context.Context, sub *models.AlertSubscription, now time.Time) (*Result, error) {
	ctx, span := tracer_client.Tracer("evaluator").Start(ctx, "Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("subscription.id", int64(sub.ID)),
		attribute.String("alert.kind", string(sub.AlertKind)),
	)

	check, ok := e.rules[sub.AlertKind]
	if !ok {
		err := errors.Wrapf(ErrUnknownKind, "kind %q", sub.AlertKind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if sub.AlertKind.IsSummary() {
		if _, due := e.scheduleAnchor(sub, now); !due {
			return nil, nil
		}
	}

	devices, err := e.telemetry.Devices(ctx, sub.DeviceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "failed to resolve devices")
	}

	for _, dev := range devices {
		res, err := check(ctx, sub, dev, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, errors.Wrapf(err, "device %d", dev.ID)
		}
		if res != nil {
			res.DeviceID = dev.ID
			res.DeviceName = dev.Name
			span.SetAttributes(attribute.Int64("device.id", int64(dev.ID)))
			return res, nil
		}
	}
	return nil, nil
}
