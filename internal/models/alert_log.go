package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertLog is one alert episode, from detection until the condition clears.
// Message and Data are written once at creation; ResolvedAt is the only
// field that changes afterwards.
type AlertLog struct {
	ID                  uint              `gorm:"primaryKey" json:"id"`
	AlertSubscriptionID uint              `gorm:"not null;index:idx_alert_logs_subscription_triggered,priority:1" json:"alert_subscription_id"`
	DeviceID            *uint             `gorm:"index:idx_alert_logs_device_triggered,priority:1" json:"device_id"`
	TriggeredAt         time.Time         `gorm:"not null;index:idx_alert_logs_subscription_triggered,priority:2;index:idx_alert_logs_device_triggered,priority:2" json:"triggered_at"`
	ResolvedAt          *time.Time        `json:"resolved_at"`
	Message             string            `gorm:"type:text;not null" json:"message"`
	Data                datatypes.JSONMap `json:"data"`
	// DedupKey is set while the episode is open and cleared on resolution.
	DedupKey  *string   `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Subscription AlertSubscription `gorm:"foreignKey:AlertSubscriptionID" json:"-"`
	Device       *Device           `gorm:"foreignKey:DeviceID" json:"-"`
}

func (AlertLog) TableName() string {
	return "alert_logs"
}

func (l *AlertLog) Resolved() bool { return l.ResolvedAt != nil }
