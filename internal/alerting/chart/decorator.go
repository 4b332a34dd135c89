package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MetadataKey is where the chart URL is stored on the alert data.
const MetadataKey = "temperature_chart"

type Readings interface {
	ReadingsBetween(ctx context.Context, deviceID uint, from, to time.Time) ([]models.TemperatureReading, error)
}

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Decorator attaches a temperature chart to summary results.
type Decorator struct {
	readings Readings
	uploader Uploader
	prefix   string
	loc      *time.Location
	width    int
	height   int
	log      *log.Logger
}

type Option func(*Decorator)

func WithPrefix(prefix string) Option {
	return func(d *Decorator) { d.prefix = prefix }
}

func WithLocation(loc *time.Location) Option {
	return func(d *Decorator) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func WithSize(width, height int) Option {
	return func(d *Decorator) {
		if width > 0 && height > 0 {
			d.width, d.height = width, height
		}
	}
}

func NewDecorator(readings Readings, uploader Uploader, opts ...Option) *Decorator {
	d := &Decorator{
		readings: readings,
		uploader: uploader,
		prefix:   constants.S3DefaultChartPrefix,
		loc:      time.UTC,
		width:    DefaultWidth,
		height:   DefaultHeight,
		log:      log.Default().Named("chart"),
	}
	for _, fn := range opts {
		fn(d)
	}
	return d
}

// Key is the object key of a chart: {prefix}/{kind}/{subscription}/{device}/{period start}.png
func (d *Decorator) Key(sub *models.AlertSubscription, res *evaluator.Result) string {
	return fmt.Sprintf("%s/%s/%d/%d/%s.png",
		d.prefix, sub.AlertKind, sub.ID, res.DeviceID, res.Period.From.In(d.loc).Format("20060102"))
}

// Decorate leaves non-summary results alone.
func (d *Decorator) Decorate(ctx context.Context, sub *models.AlertSubscription, res *evaluator.Result) error {
	if !sub.AlertKind.IsSummary() || res.Period == nil {
		return nil
	}

	readings, err := d.readings.ReadingsBetween(ctx, res.DeviceID, res.Period.From, res.Period.To)
	if err != nil {
		return errors.Wrap(err, "failed to load chart readings")
	}
	if len(readings) == 0 {
		return nil
	}

	title := fmt.Sprintf("%s: %s", res.DeviceName, sub.AlertKind.Label())
	png, err := RenderPNG(title, readings, res.Period.From, res.Period.To, d.loc, d.width, d.height)
	if err != nil {
		return err
	}

	key := d.Key(sub, res)
	u, err := d.uploader.Upload(ctx, key, constants.ContentTypePNG, png)
	if err != nil {
		return err
	}
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	res.Metadata[MetadataKey] = u

	d.log.Debug("Attached summary chart",
		zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
		zap.Uint(constants.LogFieldDeviceID, res.DeviceID),
		zap.String("key", key),
	)
	return nil
}
