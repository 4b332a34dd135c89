package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/local_cache"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"gorm.io/gorm"
)

// TelemetryRepo reads device telemetry. It never writes; rows are owned by
// the ingestion side.
type TelemetryRepo struct {
	db       *gorm.DB
	log      *log.Logger
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

type TelemetryOption func(*TelemetryRepo)

// WithRelayCache caches each device's relay list for ttl.
func WithRelayCache(c *ristretto.Cache, ttl time.Duration) TelemetryOption {
	return func(r *TelemetryRepo) {
		r.cache, r.cacheTTL = c, ttl
	}
}

func NewTelemetryRepo(db *gorm.DB, opts ...TelemetryOption) *TelemetryRepo {
	r := &TelemetryRepo{
		db:  db,
		log: log.Default().Named("telemetry_repo"),
	}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// Devices returns the bound device, or every device in id order when
// deviceID is nil.
func (r *TelemetryRepo) Devices(ctx context.Context, deviceID *uint) ([]models.Device, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if deviceID != nil {
		q = q.Where("id = ?", *deviceID)
	}
	var out []models.Device
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TelemetryRepo) DeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// FirstDevice returns the lowest-id device or nil when none exist.
func (r *TelemetryRepo) FirstDevice(ctx context.Context) (*models.Device, error) {
	var out []models.Device
	if err := r.db.WithContext(ctx).Order("id ASC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// LatestReading returns the most recent reading, restricted to sensorID when
// it is not empty.
func (r *TelemetryRepo) LatestReading(ctx context.Context, deviceID uint, sensorID string) (*models.TemperatureReading, error) {
	q := r.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if sensorID != "" {
		q = q.Where("sensor_id = ?", sensorID)
	}
	var out []models.TemperatureReading
	if err := q.Order("recorded_at DESC").Order("id DESC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ReadingsSince returns readings strictly after since, oldest first.
func (r *TelemetryRepo) ReadingsSince(ctx context.Context, deviceID uint, since time.Time) ([]models.TemperatureReading, error) {
	var out []models.TemperatureReading
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND recorded_at > ?", deviceID, since.UTC()).
		Order("recorded_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ReadingsBetween returns readings in [from, to), oldest first.
func (r *TelemetryRepo) ReadingsBetween(ctx context.Context, deviceID uint, from, to time.Time) ([]models.TemperatureReading, error) {
	var out []models.TemperatureReading
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND recorded_at >= ? AND recorded_at < ?", deviceID, from.UTC(), to.UTC()).
		Order("recorded_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// HasReadingsBetween reports whether any reading falls strictly inside
// (from, to).
func (r *TelemetryRepo) HasReadingsBetween(ctx context.Context, deviceID uint, from, to time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.TemperatureReading{}).
		Where("device_id = ? AND recorded_at > ? AND recorded_at < ?", deviceID, from.UTC(), to.UTC()).
		Count(&n).Error
	return n > 0, err
}

func relayCacheKey(deviceID uint) string {
	return fmt.Sprintf("relays:%d", deviceID)
}

// Relays returns the device's relays ordered by relay number.
func (r *TelemetryRepo) Relays(ctx context.Context, deviceID uint) ([]models.Relay, error) {
	return local_cache.GetOrLoad(r.cache, relayCacheKey(deviceID), r.cacheTTL, func() ([]models.Relay, error) {
		var out []models.Relay
		err := r.db.WithContext(ctx).
			Where("device_id = ?", deviceID).
			Order("relay_number ASC").
			Order("id ASC").
			Find(&out).Error
		return out, err
	})
}

func (r *TelemetryRepo) latestRelayState(q *gorm.DB) (*models.RelayState, error) {
	var out []models.RelayState
	if err := q.Order("changed_at DESC").Order("id DESC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// RelayCurrentState returns the latest state row or nil when the relay has
// no history.
func (r *TelemetryRepo) RelayCurrentState(ctx context.Context, relayID uint) (*models.RelayState, error) {
	return r.latestRelayState(r.db.WithContext(ctx).Where("relay_id = ?", relayID))
}

// LatestRelayStateSince returns the latest state row changed strictly after
// since.
func (r *TelemetryRepo) LatestRelayStateSince(ctx context.Context, relayID uint, since time.Time) (*models.RelayState, error) {
	return r.latestRelayState(r.db.WithContext(ctx).Where("relay_id = ? AND changed_at > ?", relayID, since.UTC()))
}

// LatestRelayStateOtherThan returns the latest row whose state differs from
// state, i.e. the last time the relay was in the opposite state.
func (r *TelemetryRepo) LatestRelayStateOtherThan(ctx context.Context, relayID uint, state bool) (*models.RelayState, error) {
	return r.latestRelayState(r.db.WithContext(ctx).Where("relay_id = ? AND state <> ?", relayID, state))
}

// CountRelayStatesSince counts state rows changed strictly after since.
func (r *TelemetryRepo) CountRelayStatesSince(ctx context.Context, relayID uint, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.RelayState{}).
		Where("relay_id = ? AND changed_at > ?", relayID, since.UTC()).
		Count(&n).Error
	return n, err
}

// CountRelayStatesBetween counts rows in [from, to) with the given state.
func (r *TelemetryRepo) CountRelayStatesBetween(ctx context.Context, relayID uint, from, to time.Time, state bool) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.RelayState{}).
		Where("relay_id = ? AND state = ? AND changed_at >= ? AND changed_at < ?", relayID, state, from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}
