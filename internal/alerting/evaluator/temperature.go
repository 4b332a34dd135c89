package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/models"
)

const (
	rapidChangeWindow   = 10 * time.Minute
	sensorOfflineWindow = 10 * time.Minute
	// neverReportedMinutes is reported when a device has no reading at all.
	neverReportedMinutes = 999
)

func (e *Evaluator) tempHigh(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	return e.tempThreshold(ctx, sub, dev, now, func(t, th float64) bool { return t > th }, "exceeds")
}

func (e *Evaluator) tempLow(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	return e.tempThreshold(ctx, sub, dev, now, func(t, th float64) bool { return t < th }, "is below")
}

func (e *Evaluator) tempThreshold(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time, breached func(t, th float64) bool, verb string) (*Result, error) {
	settings := sub.Config()
	threshold := settings.ThresholdFor(sub.AlertKind)

	reading, err := e.telemetry.LatestReading(ctx, dev.ID, settings.SensorID)
	if err != nil {
		return nil, err
	}
	if reading == nil || !breached(reading.Temperature, threshold) {
		return nil, nil
	}

	meta := map[string]interface{}{
		"temperature": reading.Temperature,
		"threshold":   threshold,
		"device_name": dev.Name,
		"recorded_at": reading.RecordedAt.In(e.loc).Format(displayTimeLayout),
	}
	if settings.SensorID != "" {
		meta["sensor_id"] = settings.SensorID
	}
	state, err := e.deviceState(ctx, dev, now)
	if err != nil {
		return nil, err
	}
	for k, v := range state {
		meta[k] = v
	}

	return &Result{
		Message: fmt.Sprintf("Temperature %s°C %s threshold %s°C on %s",
			formatNumber(reading.Temperature), verb, formatNumber(threshold), dev.Name),
		Metadata: meta,
	}, nil
}

func (e *Evaluator) tempRapidChange(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	threshold := sub.Config().ThresholdFor(sub.AlertKind)

	readings, err := e.telemetry.ReadingsSince(ctx, dev.ID, now.Add(-rapidChangeWindow))
	if err != nil {
		return nil, err
	}
	if len(readings) < 2 {
		return nil, nil
	}

	first, last := readings[0].Temperature, readings[len(readings)-1].Temperature
	change := round(math.Abs(last-first), 2)
	if change < threshold {
		return nil, nil
	}

	return &Result{
		Message: fmt.Sprintf("Temperature changed %s°C in 10 minutes on %s", formatNumber(change), dev.Name),
		Metadata: map[string]interface{}{
			"change":      change,
			"threshold":   threshold,
			"from_temp":   first,
			"to_temp":     last,
			"device_name": dev.Name,
		},
	}, nil
}

func (e *Evaluator) tempSensorOffline(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	sensorID := sub.Config().SensorID
	reading, err := e.telemetry.LatestReading(ctx, dev.ID, sensorID)
	if err != nil {
		return nil, err
	}
	if reading != nil && !reading.RecordedAt.Before(now.Add(-sensorOfflineWindow)) {
		return nil, nil
	}

	minutes := neverReportedMinutes
	var last interface{}
	if reading != nil {
		minutes = wholeMinutes(now.Sub(reading.RecordedAt))
		last = reading.RecordedAt.In(e.loc).Format(time.RFC3339)
	}

	meta := map[string]interface{}{
		"device_name":           dev.Name,
		"minutes_since_reading": minutes,
		"last_reading":          last,
	}
	if sensorID != "" {
		meta["sensor_id"] = sensorID
	}
	return &Result{
		Message:  fmt.Sprintf("No temperature readings from %s for %d minutes", dev.Name, minutes),
		Metadata: meta,
	}, nil
}

// deviceState is the snapshot attached to threshold alerts.
func (e *Evaluator) deviceState(ctx context.Context, dev models.Device, now time.Time) (map[string]interface{}, error) {
	state := map[string]interface{}{
		"last_seen": "Never",
		"online":    dev.OnlineAt(now),
	}
	if dev.LastSeenAt != nil {
		state["last_seen"] = dev.LastSeenAt.In(e.loc).Format(displayTimeLayout)
	}

	latest, err := e.telemetry.LatestReading(ctx, dev.ID, "")
	if err != nil {
		return nil, err
	}
	if latest != nil {
		state["current_temperature"] = celsius(latest.Temperature)
	}

	relays, err := e.telemetry.Relays(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	for _, relay := range relays {
		current, err := e.telemetry.RelayCurrentState(ctx, relay.ID)
		if err != nil {
			return nil, err
		}
		prefix := fmt.Sprintf("relay_%d_", relay.ID)
		state[prefix+"name"] = relay.Name
		state[prefix+"state"] = "Unknown"
		state[prefix+"mode"] = "manual"
		if current != nil {
			state[prefix+"state"] = models.OnOff(current.State)
			if current.Mode != "" {
				state[prefix+"mode"] = string(current.Mode)
			}
		}
	}
	return state, nil
}
