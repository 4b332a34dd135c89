package models

import "strings"

// AlertKind identifies one monitorable condition. The value is persisted in
// alert_subscriptions.alert_type and never changes after creation.
type AlertKind string

const (
	KindTempHigh           AlertKind = "temp_high"
	KindTempLow            AlertKind = "temp_low"
	KindTempRapidChange    AlertKind = "temp_rapid_change"
	KindTempSensorOffline  AlertKind = "temp_sensor_offline"
	KindDeviceOffline      AlertKind = "device_offline"
	KindDeviceOnline       AlertKind = "device_online"
	KindDeviceNotReporting AlertKind = "device_not_reporting"
	KindRelayStateChanged  AlertKind = "relay_state_changed"
	KindRelayModeChanged   AlertKind = "relay_mode_changed"
	KindRelayStuck         AlertKind = "relay_stuck"
	KindRelayCycling       AlertKind = "relay_cycling"
	KindDailySummary       AlertKind = "daily_summary"
	KindWeeklySummary      AlertKind = "weekly_summary"
)

const (
	CategoryTemperature  = "Temperature"
	CategoryDeviceStatus = "Device Status"
	CategoryRelays       = "Relays"
	CategoryReports      = "Reports"
)

const defaultCooldownMinutes = 30

// KindInfo is the static catalogue entry of an alert kind.
type KindInfo struct {
	Kind               AlertKind `json:"value"`
	Label              string    `json:"label"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	RequiresPermission Role      `json:"requires_permission"`

	// DefaultThreshold is nil for kinds that take no threshold.
	DefaultThreshold *float64 `json:"-"`
	CooldownMinutes  int      `json:"-"`
}

func threshold(v float64) *float64 { return &v }

var catalogue = map[AlertKind]KindInfo{
	KindTempHigh: {
		Label:            "Temperature Above Threshold",
		Description:      "Get notified when temperature exceeds your threshold",
		Category:         CategoryTemperature,
		DefaultThreshold: threshold(30),
		CooldownMinutes:  30,
	},
	KindTempLow: {
		Label:            "Temperature Below Threshold",
		Description:      "Get notified when temperature drops below your threshold",
		Category:         CategoryTemperature,
		DefaultThreshold: threshold(15),
		CooldownMinutes:  30,
	},
	KindTempRapidChange: {
		Label:            "Rapid Temperature Change",
		Description:      "Alert when temperature changes by more than the threshold within 10 minutes",
		Category:         CategoryTemperature,
		DefaultThreshold: threshold(5),
		CooldownMinutes:  60,
	},
	KindTempSensorOffline: {
		Label:       "Temperature Sensor Offline",
		Description: "Alert when temperature sensor stops reporting",
		Category:    CategoryTemperature,
	},
	KindDeviceOffline: {
		Label:           "Device Offline",
		Description:     "Alert when device disconnects",
		Category:        CategoryDeviceStatus,
		CooldownMinutes: 15,
	},
	KindDeviceOnline: {
		Label:           "Device Back Online",
		Description:     "Alert when device reconnects",
		Category:        CategoryDeviceStatus,
		CooldownMinutes: 5,
	},
	KindDeviceNotReporting: {
		Label:           "Device Not Reporting",
		Description:     "Alert when device hasn't reported in 15 minutes",
		Category:        CategoryDeviceStatus,
		CooldownMinutes: 15,
	},
	KindRelayStateChanged: {
		Label:              "Relay State Changed",
		Description:        "Notify when relay turns ON/OFF",
		Category:           CategoryRelays,
		RequiresPermission: RoleUser,
		CooldownMinutes:    10,
	},
	KindRelayModeChanged: {
		Label:              "Relay Mode Changed",
		Description:        "Notify when relay mode changes",
		Category:           CategoryRelays,
		RequiresPermission: RoleUser,
		CooldownMinutes:    10,
	},
	KindRelayStuck: {
		Label:              "Relay Stuck",
		Description:        "Alert when relay should change but doesn't",
		Category:           CategoryRelays,
		RequiresPermission: RoleUser,
		CooldownMinutes:    120,
	},
	KindRelayCycling: {
		Label:              "Relay Cycling Too Frequently",
		Description:        "Alert when relay switches too frequently",
		Category:           CategoryRelays,
		RequiresPermission: RoleUser,
		CooldownMinutes:    60,
	},
	KindDailySummary: {
		Label:       "Daily Summary Report",
		Description: "Daily report of temperature and relay activity",
		Category:    CategoryReports,
	},
	KindWeeklySummary: {
		Label:       "Weekly Summary Report",
		Description: "Weekly summary of trends and statistics",
		Category:    CategoryReports,
	},
}

var kindOrder = []AlertKind{
	KindTempHigh, KindTempLow, KindTempRapidChange, KindTempSensorOffline,
	KindDeviceOffline, KindDeviceOnline, KindDeviceNotReporting,
	KindRelayStateChanged, KindRelayModeChanged, KindRelayStuck, KindRelayCycling,
	KindDailySummary, KindWeeklySummary,
}

func init() {
	for _, k := range kindOrder {
		info := catalogue[k]
		info.Kind = k
		if info.RequiresPermission == "" {
			info.RequiresPermission = RoleViewer
		}
		if info.CooldownMinutes == 0 {
			info.CooldownMinutes = defaultCooldownMinutes
		}
		catalogue[k] = info
	}
}

// ParseAlertKind returns the kind matching s, ignoring surrounding whitespace.
func ParseAlertKind(s string) (AlertKind, bool) {
	k := AlertKind(strings.TrimSpace(s))
	_, ok := catalogue[k]
	return k, ok
}

func (k AlertKind) Valid() bool {
	_, ok := catalogue[k]
	return ok
}

func (k AlertKind) Info() KindInfo {
	if info, ok := catalogue[k]; ok {
		return info
	}
	return KindInfo{Kind: k, Label: string(k), RequiresPermission: RoleViewer, CooldownMinutes: defaultCooldownMinutes}
}

func (k AlertKind) Label() string { return k.Info().Label }

// CooldownMinutes is the suppression window applied by the sweep. It is fixed
// per kind and independent of the subscription's own cooldown_minutes.
func (k AlertKind) CooldownMinutes() int { return k.Info().CooldownMinutes }

func (k AlertKind) IsSummary() bool {
	return k == KindDailySummary || k == KindWeeklySummary
}

func (k AlertKind) TakesThreshold() bool {
	return k.Info().DefaultThreshold != nil
}

// GroupedCatalogue returns the catalogue keyed by category, each group in
// catalogue order.
func GroupedCatalogue() map[string][]KindInfo {
	out := make(map[string][]KindInfo)
	for _, k := range kindOrder {
		info := catalogue[k]
		out[info.Category] = append(out[info.Category], info)
	}
	return out
}
