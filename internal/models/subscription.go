package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultCooldownMinutes = 30
	MinCooldownMinutes     = 1
	MaxCooldownMinutes     = 1440
	DefaultScheduledTime   = "09:00"
)

// AlertSubscription is a user's standing request to be alerted on one kind,
// optionally scoped to one device.
type AlertSubscription struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	UserID   uint  `gorm:"not null;uniqueIndex:idx_alert_subscriptions_scope,priority:1" json:"user_id"`
	DeviceID *uint `gorm:"index" json:"device_id"`
	// DeviceScope mirrors DeviceID with 0 standing for all devices so that
	// the unique index also covers unbound subscriptions.
	DeviceScope     uint                         `gorm:"not null;default:0;uniqueIndex:idx_alert_subscriptions_scope,priority:2" json:"-"`
	AlertKind       AlertKind                    `gorm:"column:alert_type;type:varchar(64);not null;uniqueIndex:idx_alert_subscriptions_scope,priority:3" json:"alert_type"`
	Enabled         bool                         `gorm:"not null" json:"enabled"`
	Settings        datatypes.JSONType[Settings] `json:"settings"`
	CooldownMinutes int                          `gorm:"not null" json:"cooldown_minutes"`
	ScheduledTime   *string                      `gorm:"type:varchar(8)" json:"scheduled_time"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`

	User   User    `gorm:"foreignKey:UserID" json:"-"`
	Device *Device `gorm:"foreignKey:DeviceID" json:"-"`
}

func (AlertSubscription) TableName() string {
	return "alert_subscriptions"
}

func (s *AlertSubscription) BeforeSave(_ *gorm.DB) error {
	s.DeviceScope = 0
	if s.DeviceID != nil {
		s.DeviceScope = *s.DeviceID
	}
	return nil
}

func (s *AlertSubscription) Config() Settings {
	return s.Settings.Data()
}

// ScheduleOrDefault returns the report time as minutes after midnight.
func (s *AlertSubscription) ScheduleOrDefault() int {
	if s.ScheduledTime != nil {
		if m, err := ParseClock(*s.ScheduledTime); err == nil {
			return m
		}
	}
	m, _ := ParseClock(DefaultScheduledTime)
	return m
}

func (s *AlertSubscription) DeviceName() string {
	if s.Device == nil {
		return "All Devices"
	}
	return s.Device.Name
}

// NewSubscription builds a validated subscription. Zero cooldown means the
// default; an empty scheduled time is left unset.
func NewSubscription(userID uint, deviceID *uint, kind AlertKind, enabled bool, settings Settings, cooldown int, scheduledTime string) (*AlertSubscription, error) {
	if !kind.Valid() {
		return nil, errors.Errorf("unknown alert kind %q", kind)
	}
	if cooldown == 0 {
		cooldown = DefaultCooldownMinutes
	}
	if cooldown < MinCooldownMinutes || cooldown > MaxCooldownMinutes {
		return nil, errors.Errorf("cooldown_minutes must be between %d and %d", MinCooldownMinutes, MaxCooldownMinutes)
	}
	if err := settings.Validate(kind); err != nil {
		return nil, err
	}
	sub := &AlertSubscription{
		UserID:          userID,
		DeviceID:        deviceID,
		AlertKind:       kind,
		Enabled:         enabled,
		Settings:        datatypes.NewJSONType(settings),
		CooldownMinutes: cooldown,
	}
	if strings.TrimSpace(scheduledTime) != "" {
		if !ValidClock(scheduledTime) {
			return nil, errors.Errorf("scheduled_time %q must be formatted as HH:MM", scheduledTime)
		}
		sub.ScheduledTime = &scheduledTime
	}
	return sub, nil
}

// ValidClock reports whether s is a strict HH:MM wall-clock time.
func ValidClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}

// ParseClock converts "HH:MM" or "HH:MM:SS" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
