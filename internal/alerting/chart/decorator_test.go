package chart

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReadings struct {
	readings []models.TemperatureReading
	from, to time.Time
}

func (s *stubReadings) ReadingsBetween(_ context.Context, _ uint, from, to time.Time) ([]models.TemperatureReading, error) {
	s.from, s.to = from, to
	return s.readings, nil
}

type memUploader struct {
	objects map[string][]byte
	err     error
}

func (u *memUploader) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	if u.objects == nil {
		u.objects = map[string][]byte{}
	}
	u.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

var day = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

func dayReadings() []models.TemperatureReading {
	out := make([]models.TemperatureReading, 0, 24)
	for h := 0; h < 24; h++ {
		out = append(out, models.TemperatureReading{
			DeviceID:    7,
			Temperature: 18 + float64(h%6),
			RecordedAt:  day.Add(time.Duration(h) * time.Hour),
		})
	}
	return out
}

func summaryResult() *evaluator.Result {
	return &evaluator.Result{
		DeviceID:   7,
		DeviceName: "Greenhouse",
		Metadata:   map[string]interface{}{"date": "Mar 9, 2025"},
		Period:     &evaluator.Period{From: day, To: day.Add(24 * time.Hour)},
	}
}

func TestRenderPNG(t *testing.T) {
	out, err := RenderPNG("Greenhouse", dayReadings(), day, day.Add(24*time.Hour), time.UTC, 320, 160)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())

	_, err = RenderPNG("x", nil, day, day.Add(time.Hour), nil, 320, 160)
	assert.Error(t, err)
	_, err = RenderPNG("x", dayReadings(), day, day, nil, 320, 160)
	assert.Error(t, err)
}

func TestDecorateSummary(t *testing.T) {
	readings := &stubReadings{readings: dayReadings()}
	uploader := &memUploader{}
	d := NewDecorator(readings, uploader, WithPrefix("charts"), WithSize(320, 160))
	sub := &models.AlertSubscription{ID: 3, AlertKind: models.KindDailySummary}
	res := summaryResult()

	require.NoError(t, d.Decorate(context.Background(), sub, res))

	assert.True(t, readings.from.Equal(day))
	assert.True(t, readings.to.Equal(day.Add(24*time.Hour)))
	assert.Equal(t, "https://cdn.example.com/charts/daily_summary/3/7/20250309.png", res.Metadata[MetadataKey])
	assert.Contains(t, uploader.objects, "charts/daily_summary/3/7/20250309.png")
	assert.Equal(t, "Mar 9, 2025", res.Metadata["date"])
}

func TestDecorateSkips(t *testing.T) {
	uploader := &memUploader{}
	d := NewDecorator(&stubReadings{readings: dayReadings()}, uploader)

	res := summaryResult()
	require.NoError(t, d.Decorate(context.Background(), &models.AlertSubscription{AlertKind: models.KindTempHigh}, res))
	assert.NotContains(t, res.Metadata, MetadataKey)

	noPeriod := summaryResult()
	noPeriod.Period = nil
	require.NoError(t, d.Decorate(context.Background(), &models.AlertSubscription{AlertKind: models.KindWeeklySummary}, noPeriod))

	empty := NewDecorator(&stubReadings{}, uploader)
	res = summaryResult()
	require.NoError(t, empty.Decorate(context.Background(), &models.AlertSubscription{AlertKind: models.KindDailySummary}, res))
	assert.NotContains(t, res.Metadata, MetadataKey)
	assert.Empty(t, uploader.objects)
}

func TestDecorateUploadError(t *testing.T) {
	d := NewDecorator(&stubReadings{readings: dayReadings()}, &memUploader{err: errors.New("bucket missing")}, WithSize(320, 160))
	res := summaryResult()
	err := d.Decorate(context.Background(), &models.AlertSubscription{ID: 1, AlertKind: models.KindDailySummary}, res)
	assert.EqualError(t, err, "bucket missing")
	assert.NotContains(t, res.Metadata, MetadataKey)
}
