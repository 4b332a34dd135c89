package repository

import (
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Migrate creates or updates every table the service reads or writes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Device{},
		&models.TemperatureReading{},
		&models.Relay{},
		&models.RelayState{},
		&models.AlertSubscription{},
		&models.AlertLog{},
	)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
