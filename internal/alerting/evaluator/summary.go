package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/models"
)

const (
	// scheduleGrace is how long after the scheduled minute a summary may
	// still fire, inclusive.
	scheduleGrace = 5
	minutesPerDay = 24 * 60
	// relayOnTimePerRow approximates on-time from the number of ON rows.
	relayOnTimePerRow = time.Minute
)

// scheduleAnchor reports whether now falls within the summary window of sub
// and returns the local scheduled instant the window belongs to. Weekly
// summaries also need the current local day to be a Monday, even when the
// window opened before midnight.
func (e *Evaluator) scheduleAnchor(sub *models.AlertSubscription, now time.Time) (time.Time, bool) {
	local := now.In(e.loc)
	minute := local.Hour()*60 + local.Minute()
	offset := (minute - sub.ScheduleOrDefault() + minutesPerDay) % minutesPerDay
	if offset > scheduleGrace {
		return time.Time{}, false
	}
	anchor := local.Add(-time.Duration(offset) * time.Minute)
	if sub.AlertKind == models.KindWeeklySummary && local.Weekday() != time.Monday {
		return time.Time{}, false
	}
	return anchor, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyPeriod is the local calendar day before the one containing t.
func DailyPeriod(t time.Time) Period {
	today := startOfDay(t)
	return Period{From: today.AddDate(0, 0, -1), To: today}
}

// WeeklyPeriod is the Monday to Monday week before the one containing t.
func WeeklyPeriod(t time.Time) Period {
	today := startOfDay(t)
	sinceMonday := (int(today.Weekday()) + 6) % 7
	thisWeek := today.AddDate(0, 0, -sinceMonday)
	return Period{From: thisWeek.AddDate(0, 0, -7), To: thisWeek}
}

func (e *Evaluator) dailySummary(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	anchor, due := e.scheduleAnchor(sub, now)
	if !due {
		return nil, nil
	}
	period := DailyPeriod(anchor)
	stats, err := e.periodStats(ctx, dev, period)
	if err != nil || stats == nil {
		return nil, err
	}
	stats["date"] = period.From.Format(displayDateLayout)
	stats["readings_count"] = stats["count"]
	delete(stats, "count")

	return &Result{
		Message:  fmt.Sprintf("Daily Summary for %s", dev.Name),
		Metadata: stats,
		Period:   &period,
	}, nil
}

func (e *Evaluator) weeklySummary(ctx context.Context, sub *models.AlertSubscription, dev models.Device, now time.Time) (*Result, error) {
	if _, due := e.scheduleAnchor(sub, now); !due {
		return nil, nil
	}
	period := WeeklyPeriod(now.In(e.loc))
	stats, err := e.periodStats(ctx, dev, period)
	if err != nil || stats == nil {
		return nil, err
	}
	lastDay := period.To.AddDate(0, 0, -1)
	stats["period"] = period.From.Format("Jan 2") + " - " + lastDay.Format(displayDateLayout)
	stats["total_readings"] = stats["count"]
	delete(stats, "count")

	return &Result{
		Message:  fmt.Sprintf("Weekly Summary for %s", dev.Name),
		Metadata: stats,
		Period:   &period,
	}, nil
}

// periodStats aggregates readings and relay activity over p. It returns nil
// when the device has no readings in p.
func (e *Evaluator) periodStats(ctx context.Context, dev models.Device, p Period) (map[string]interface{}, error) {
	readings, err := e.telemetry.ReadingsBetween(ctx, dev.ID, p.From, p.To)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, r := range readings {
		sum += r.Temperature
		lo = math.Min(lo, r.Temperature)
		hi = math.Max(hi, r.Temperature)
	}

	relays, err := e.telemetry.Relays(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	activity := make(map[string]interface{}, len(relays))
	for _, relay := range relays {
		on, err := e.telemetry.CountRelayStatesBetween(ctx, relay.ID, p.From, p.To, true)
		if err != nil {
			return nil, err
		}
		activity[relay.Name] = formatOnTime(time.Duration(on) * relayOnTimePerRow)
	}

	return map[string]interface{}{
		"device_name":     dev.Name,
		"avg_temperature": celsius(sum / float64(len(readings))),
		"min_temperature": celsius(lo),
		"max_temperature": celsius(hi),
		"count":           len(readings),
		"relay_activity":  activity,
	}, nil
}
