package config

import (
	"time"

	"github.com/okieraised/thermostat-alerts/internal/utilities"
	"github.com/spf13/viper"
)

// Duration reads key as a duration string or a bare number of seconds.
// Unset, blank or malformed values yield def.
func Duration(key string, def time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return def
	}
	if d, ok := viper.Get(key).(time.Duration); ok {
		if d > 0 {
			return d
		}
		return def
	}
	d, err := utilities.ParseDurationOrDefault(viper.GetString(key), def)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func Bool(key string, def bool) bool {
	if !viper.IsSet(key) {
		return def
	}
	return viper.GetBool(key)
}

// Int returns def when key is unset or not positive.
func Int(key string, def int) int {
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	return def
}

func String(key, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}
