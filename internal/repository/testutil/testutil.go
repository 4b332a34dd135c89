// Package testutil provides an in-memory database and seed helpers for
// package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/database"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated SQLite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(
		database.WithDriver(database.DriverSQLite),
		database.WithDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		database.WithPool(1, 1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func User(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Device creates a device last seen at lastSeen. A zero lastSeen leaves the
// device never seen.
func Device(t *testing.T, db *gorm.DB, name string, lastSeen time.Time) *models.Device {
	t.Helper()
	d := &models.Device{Name: name}
	if !lastSeen.IsZero() {
		ts := lastSeen.UTC()
		d.LastSeenAt = &ts
		d.IsOnline = true
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

func Reading(t *testing.T, db *gorm.DB, deviceID uint, temp float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.TemperatureReading{
		DeviceID:    deviceID,
		Temperature: temp,
		RecordedAt:  at.UTC(),
	}).Error)
}

func SensorReading(t *testing.T, db *gorm.DB, deviceID uint, sensorID string, temp float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.TemperatureReading{
		DeviceID:    deviceID,
		Temperature: temp,
		SensorID:    sensorID,
		RecordedAt:  at.UTC(),
	}).Error)
}

func Relay(t *testing.T, db *gorm.DB, deviceID uint, number int, name string) *models.Relay {
	t.Helper()
	r := &models.Relay{DeviceID: deviceID, RelayNumber: number, Name: name, RelayType: "HEATER"}
	require.NoError(t, db.Create(r).Error)
	return r
}

func RelayState(t *testing.T, db *gorm.DB, relayID uint, state bool, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.RelayState{
		RelayID:   relayID,
		State:     state,
		Mode:      models.RelayModeAuto,
		ChangedAt: at.UTC(),
	}).Error)
}

// Subscription stores sub as given, bypassing constructor defaults.
func Subscription(t *testing.T, db *gorm.DB, sub *models.AlertSubscription) *models.AlertSubscription {
	t.Helper()
	require.NoError(t, db.Create(sub).Error)
	return sub
}
