package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/models"
)

const (
	offlineAfter      = 5 * time.Minute
	notReportingAfter = 15 * time.Minute
	backOnlineWithin  = 2 * time.Minute
	silentFrom        = 15 * time.Minute
	silentUntil       = 5 * time.Minute
)

// Devices that were never seen carry no signal for the presence rules and
// are skipped by all three.

func (e *Evaluator) deviceOffline(_ context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	if dev.LastSeenAt == nil {
		return nil, nil
	}
	since := now.Sub(*dev.LastSeenAt)
	if since <= offlineAfter {
		return nil, nil
	}
	minutes := wholeMinutes(since)
	return &Result{
		Message: fmt.Sprintf("%s has been offline for %d minutes", dev.Name, minutes),
		Metadata: map[string]interface{}{
			"device_name":     dev.Name,
			"last_seen":       dev.LastSeenAt.In(e.loc).Format(time.RFC3339),
			"minutes_offline": minutes,
		},
	}, nil
}

func (e *Evaluator) deviceNotReporting(_ context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	if dev.LastSeenAt == nil {
		return nil, nil
	}
	since := now.Sub(*dev.LastSeenAt)
	if since <= notReportingAfter {
		return nil, nil
	}
	minutes := wholeMinutes(since)
	return &Result{
		Message: fmt.Sprintf("%s has not reported in %d minutes", dev.Name, minutes),
		Metadata: map[string]interface{}{
			"device_name":          dev.Name,
			"last_seen":            dev.LastSeenAt.In(e.loc).Format(time.RFC3339),
			"minutes_since_report": minutes,
		},
	}, nil
}

// deviceOnline fires for a device seen in the last two minutes that sent no
// reading between fifteen and five minutes ago.
func (e *Evaluator) deviceOnline(ctx context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	if dev.LastSeenAt == nil || now.Sub(*dev.LastSeenAt) > backOnlineWithin {
		return nil, nil
	}
	active, err := e.telemetry.HasReadingsBetween(ctx, dev.ID, now.Add(-silentFrom), now.Add(-silentUntil))
	if err != nil {
		return nil, err
	}
	if active {
		return nil, nil
	}
	return &Result{
		Message: fmt.Sprintf("%s is back online", dev.Name),
		Metadata: map[string]interface{}{
			"device_name": dev.Name,
			"last_seen":   dev.LastSeenAt.In(e.loc).Format(time.RFC3339),
		},
	}, nil
}
