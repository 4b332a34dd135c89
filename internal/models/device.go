package models

import "time"

const OnlineWindow = 5 * time.Minute

type RelayMode string

const (
	RelayModeAuto      RelayMode = "AUTO"
	RelayModeManualOn  RelayMode = "MANUAL_ON"
	RelayModeManualOff RelayMode = "MANUAL_OFF"
)

// Device is a reporting thermostat. Rows are written by the ingestion API.
type Device struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	Hostname   string     `gorm:"type:varchar(255)" json:"hostname"`
	MacAddress string     `gorm:"type:varchar(32)" json:"mac_address"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	IsOnline   bool       `json:"is_online"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Device) TableName() string {
	return "devices"
}

// OnlineAt reports whether the device was seen within OnlineWindow of now.
func (d Device) OnlineAt(now time.Time) bool {
	return d.LastSeenAt != nil && d.LastSeenAt.After(now.Add(-OnlineWindow))
}

type TemperatureReading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    uint      `gorm:"not null;index:idx_temperature_readings_device_recorded,priority:1" json:"device_id"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	SensorID    string    `gorm:"type:varchar(64)" json:"sensor_id"`
	RecordedAt  time.Time `gorm:"not null;index:idx_temperature_readings_device_recorded,priority:2" json:"recorded_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TemperatureReading) TableName() string {
	return "temperature_readings"
}

type Relay struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    uint      `gorm:"not null;index" json:"device_id"`
	RelayNumber int       `gorm:"not null" json:"relay_number"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	RelayType   string    `gorm:"type:varchar(32);default:GENERIC" json:"relay_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Relay) TableName() string {
	return "relays"
}

// RelayState is one row of a relay's state-change history. The latest row by
// ChangedAt is the relay's current state.
type RelayState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RelayID   uint      `gorm:"not null;index:idx_relay_states_relay_changed,priority:1" json:"relay_id"`
	State     bool      `gorm:"not null" json:"state"`
	Mode      RelayMode `gorm:"type:varchar(16)" json:"mode"`
	TempOn    *float64  `json:"temp_on"`
	TempOff   *float64  `json:"temp_off"`
	ChangedAt time.Time `gorm:"not null;index:idx_relay_states_relay_changed,priority:2" json:"changed_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (RelayState) TableName() string {
	return "relay_states"
}

// OnOff renders a relay state the way notifications show it.
func OnOff(state bool) string {
	if state {
		return "ON"
	}
	return "OFF"
}
