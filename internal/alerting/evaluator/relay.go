package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/models"
)

const (
	relayChangeWindow  = 2 * time.Minute
	relayStuckAfter    = 3 * time.Hour
	relayCyclingWindow = 30 * time.Minute
	relayCyclingCount  = 10
)

// relayRule checks a single relay of a device.
type relayRule func(ctx context.Context, dev models.Device, relay models.Relay, now time.Time) (*Result, error)

// eachRelay returns the first relay result of dev, in relay number order.
func (e *Evaluator) eachRelay(ctx context.Context, dev models.Device, now time.Time, check relayRule) (*Result, error) {
	relays, err := e.telemetry.Relays(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	for _, relay := range relays {
		res, err := check(ctx, dev, relay, now)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func (e *Evaluator) relayStateChanged(ctx context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	return e.eachRelay(ctx, dev, now, func(ctx context.Context, dev models.Device, relay models.Relay, now time.Time) (*Result, error) {
		change, err := e.telemetry.LatestRelayStateSince(ctx, relay.ID, now.Add(-relayChangeWindow))
		if err != nil || change == nil {
			return nil, err
		}
		state := models.OnOff(change.State)
		return &Result{
			Message: fmt.Sprintf("%s on %s changed to %s", relay.Name, dev.Name, state),
			Metadata: map[string]interface{}{
				"device_name": dev.Name,
				"relay_name":  relay.Name,
				"state":       state,
				"changed_at":  change.ChangedAt.In(e.loc).Format(time.RFC3339),
			},
		}, nil
	})
}

// relayModeChanged never fires: relay mode history is not recorded, so there
// is nothing to detect a change against.
func (e *Evaluator) relayModeChanged(context.Context, *models.AlertSubscription, models.Device, time.Time) (*Result, error) {
	return nil, nil
}

// relayStuck fires when the relay last left its current state three or more
// hours ago.
func (e *Evaluator) relayStuck(ctx context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	return e.eachRelay(ctx, dev, now, func(ctx context.Context, dev models.Device, relay models.Relay, now time.Time) (*Result, error) {
		current, err := e.telemetry.RelayCurrentState(ctx, relay.ID)
		if err != nil || current == nil {
			return nil, err
		}
		previous, err := e.telemetry.LatestRelayStateOtherThan(ctx, relay.ID, current.State)
		if err != nil || previous == nil {
			return nil, err
		}
		held := now.Sub(previous.ChangedAt)
		if held < relayStuckAfter {
			return nil, nil
		}
		state := models.OnOff(current.State)
		hours := wholeHours(held)
		return &Result{
			Message: fmt.Sprintf("%s on %s has been %s for %d hours", relay.Name, dev.Name, state, hours),
			Metadata: map[string]interface{}{
				"device_name":    dev.Name,
				"relay_name":     relay.Name,
				"state":          state,
				"hours_in_state": hours,
			},
		}, nil
	})
}

func (e *Evaluator) relayCycling(ctx context.Context, _ *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	return e.eachRelay(ctx, dev, now, func(ctx context.Context, dev models.Device, relay models.Relay, now time.Time) (*Result, error) {
		n, err := e.telemetry.CountRelayStatesSince(ctx, relay.ID, now.Add(-relayCyclingWindow))
		if err != nil || n < relayCyclingCount {
			return nil, err
		}
		return &Result{
			Message: fmt.Sprintf("%s on %s cycled %d times in 30 minutes", relay.Name, dev.Name, n),
			Metadata: map[string]interface{}{
				"device_name": dev.Name,
				"relay_name":  relay.Name,
				"cycle_count": n,
				"time_period": "30 minutes",
			},
		}, nil
	})
}
