package chart

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 400

	marginLeft   = 60.0
	marginRight  = 20.0
	marginTop    = 40.0
	marginBottom = 40.0
	gridLines    = 5
)

// RenderPNG draws readings over [from, to) as a line chart. Readings must be
// ordered by RecordedAt.
func RenderPNG(title string, readings []models.TemperatureReading, from, to time.Time, loc *time.Location, width, height int) ([]byte, error) {
	if len(readings) == 0 {
		return nil, errors.New("no readings to chart")
	}
	if !to.After(from) {
		return nil, errors.New("empty chart period")
	}
	if loc == nil {
		loc = time.UTC
	}

	lo, hi := readings[0].Temperature, readings[0].Temperature
	for _, r := range readings[1:] {
		lo = math.Min(lo, r.Temperature)
		hi = math.Max(hi, r.Temperature)
	}
	lo, hi = math.Floor(lo-1), math.Ceil(hi+1)

	w, h := float64(width), float64(height)
	plotW := w - marginLeft - marginRight
	plotH := h - marginTop - marginBottom
	span := to.Sub(from).Seconds()

	x := func(t time.Time) float64 {
		return marginLeft + plotW*t.Sub(from).Seconds()/span
	}
	y := func(v float64) float64 {
		return marginTop + plotH*(hi-v)/(hi-lo)
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0.12, 0.16, 0.2)
	dc.DrawStringAnchored(title, w/2, marginTop/2, 0.5, 0.5)

	// horizontal grid with temperature labels
	dc.SetLineWidth(1)
	for i := 0; i <= gridLines; i++ {
		v := lo + (hi-lo)*float64(i)/gridLines
		gy := y(v)
		dc.SetRGB(0.88, 0.9, 0.92)
		dc.DrawLine(marginLeft, gy, w-marginRight, gy)
		dc.Stroke()
		dc.SetRGB(0.4, 0.45, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f°C", v), marginLeft-6, gy, 1, 0.5)
	}

	dc.SetRGB(0.4, 0.45, 0.5)
	dc.DrawStringAnchored(from.In(loc).Format("Jan 2 15:04"), marginLeft, h-marginBottom/2, 0, 0.5)
	dc.DrawStringAnchored(to.In(loc).Format("Jan 2 15:04"), w-marginRight, h-marginBottom/2, 1, 0.5)

	dc.SetRGB(0.86, 0.32, 0.18)
	dc.SetLineWidth(2)
	for i, r := range readings {
		if i == 0 {
			dc.MoveTo(x(r.RecordedAt), y(r.Temperature))
			continue
		}
		dc.LineTo(x(r.RecordedAt), y(r.Temperature))
	}
	if len(readings) == 1 {
		dc.DrawCircle(x(readings[0].RecordedAt), y(readings[0].Temperature), 3)
		dc.Fill()
	} else {
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode chart")
	}
	return buf.Bytes(), nil
}
