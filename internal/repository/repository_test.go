package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/infrastructure/local_cache"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/okieraised/thermostat-alerts/internal/repository/testutil"
	"github.com/okieraised/thermostat-alerts/internal/utilities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestSubscriptionRepo_Uniqueness(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewSubscriptionRepo(db)

	user := testutil.User(t, db, "alice", "alice@example.com", models.RoleUser)
	dev := testutil.Device(t, db, "Living Room", now)

	global, err := models.NewSubscription(user.ID, nil, models.KindTempHigh, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, global))

	again, err := models.NewSubscription(user.ID, nil, models.KindTempHigh, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, again), repository.ErrDuplicate)

	bound, err := models.NewSubscription(user.ID, &dev.ID, models.KindTempHigh, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, bound))

	boundAgain, err := models.NewSubscription(user.ID, &dev.ID, models.KindTempHigh, false, models.Settings{}, 0, "")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, boundAgain), repository.ErrDuplicate)

	other, err := models.NewSubscription(user.ID, nil, models.KindTempLow, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	subs, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []uint{global.ID, bound.ID, other.ID}, []uint{subs[0].ID, subs[1].ID, subs[2].ID})
}

func TestSubscriptionRepo_ListAndUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewSubscriptionRepo(db)

	user := testutil.User(t, db, "bob", "bob@example.com", models.RoleUser)
	dev := testutil.Device(t, db, "Garage", now)

	a, err := models.NewSubscription(user.ID, &dev.ID, models.KindTempLow, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))
	b, err := models.NewSubscription(user.ID, nil, models.KindDeviceOffline, false, models.Settings{}, 15, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, b))

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, a.ID, enabled[0].ID)
	assert.Equal(t, "bob@example.com", enabled[0].User.Email)
	require.NotNil(t, enabled[0].Device)
	assert.Equal(t, "Garage", enabled[0].Device.Name)

	require.NoError(t, repo.Update(ctx, b, utilities.Ptr(true), &models.Settings{Threshold: utilities.Ptr(12.5)}))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, 12.5, *got.Config().Threshold)
	assert.Equal(t, models.KindDeviceOffline, got.AlertKind)
	assert.Equal(t, 15, got.CooldownMinutes)

	enabled, err = repo.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	mine, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubscriptionRepo_DeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	subs := repository.NewSubscriptionRepo(db)
	logs := repository.NewAlertLogRepo(db)

	user := testutil.User(t, db, "carol", "carol@example.com", models.RoleUser)
	dev := testutil.Device(t, db, "Attic", now)
	sub, err := models.NewSubscription(user.ID, &dev.ID, models.KindTempHigh, true, models.Settings{}, 0, "")
	require.NoError(t, err)
	require.NoError(t, subs.Create(ctx, sub))

	for i := 0; i < 3; i++ {
		require.NoError(t, logs.Create(ctx, &models.AlertLog{
			AlertSubscriptionID: sub.ID,
			DeviceID:            &dev.ID,
			TriggeredAt:         now.Add(time.Duration(i) * time.Hour),
			Message:             "hot",
			Data:                datatypes.JSONMap{"temperature": 35},
		}))
	}

	require.NoError(t, subs.Delete(ctx, sub.ID))

	var remaining int64
	require.NoError(t, db.Model(&models.AlertLog{}).Count(&remaining).Error)
	assert.Zero(t, remaining)

	assert.ErrorIs(t, subs.Delete(ctx, sub.ID), repository.ErrNotFound)
}

func TestAlertLogRepo_OpenEpisodes(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewAlertLogRepo(db)

	user := testutil.User(t, db, "dave", "dave@example.com", models.RoleUser)
	d1 := testutil.Device(t, db, "One", now)
	d2 := testutil.Device(t, db, "Two", now)
	sub := testutil.Subscription(t, db, &models.AlertSubscription{
		UserID: user.ID, AlertKind: models.KindTempHigh, Enabled: true, CooldownMinutes: 30,
	})

	key := "1:1:0"
	entry := &models.AlertLog{
		AlertSubscriptionID: sub.ID,
		DeviceID:            &d1.ID,
		TriggeredAt:         now.Add(-10 * time.Minute),
		Message:             "Temperature 35°C exceeds threshold 30°C on One",
		Data:                datatypes.JSONMap{"temperature": 35.0},
		DedupKey:            &key,
	}
	require.NoError(t, repo.Create(ctx, entry))

	dup := &models.AlertLog{
		AlertSubscriptionID: sub.ID,
		DeviceID:            &d1.ID,
		TriggeredAt:         now,
		Message:             "again",
		DedupKey:            &key,
	}
	assert.ErrorIs(t, repo.Create(ctx, dup), repository.ErrDuplicate)

	open, err := repo.FindOpenSince(ctx, sub.ID, &d1.ID, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, entry.ID, open.ID)

	open, err = repo.FindOpenSince(ctx, sub.ID, &d1.ID, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, open)

	open, err = repo.FindOpenSince(ctx, sub.ID, &d2.ID, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, open)

	n, err := repo.ResolveOpen(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.ResolveOpen(ctx, sub.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(now))
	assert.Nil(t, got.DedupKey)
	assert.Equal(t, entry.Message, got.Message)
	assert.Equal(t, "dave@example.com", got.Subscription.User.Email)

	// the key is free again once the episode is resolved
	require.NoError(t, repo.Create(ctx, dup))
}

func TestAlertLogRepo_ListForUser(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := repository.NewAlertLogRepo(db)

	alice := testutil.User(t, db, "alice", "a@example.com", models.RoleUser)
	bob := testutil.User(t, db, "bob", "b@example.com", models.RoleUser)
	sa := testutil.Subscription(t, db, &models.AlertSubscription{UserID: alice.ID, AlertKind: models.KindTempHigh, Enabled: true, CooldownMinutes: 30})
	sb := testutil.Subscription(t, db, &models.AlertSubscription{UserID: bob.ID, AlertKind: models.KindTempHigh, Enabled: true, CooldownMinutes: 30})

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.AlertLog{AlertSubscriptionID: sa.ID, TriggeredAt: now.Add(time.Duration(i) * time.Minute), Message: "a"}))
	}
	require.NoError(t, repo.Create(ctx, &models.AlertLog{AlertSubscriptionID: sb.ID, TriggeredAt: now, Message: "b"}))

	out, err := repo.ListForUser(ctx, alice.ID, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].TriggeredAt.Equal(now.Add(4*time.Minute)))
	for _, l := range out {
		assert.Equal(t, sa.ID, l.AlertSubscriptionID)
	}
}

func TestTelemetryRepo_Queries(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	cache, err := local_cache.New()
	require.NoError(t, err)
	defer cache.Close()
	repo := repository.NewTelemetryRepo(db, repository.WithRelayCache(cache, time.Minute))

	d1 := testutil.Device(t, db, "One", now)
	d2 := testutil.Device(t, db, "Two", time.Time{})

	devices, err := repo.Devices(ctx, nil)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, d1.ID, devices[0].ID)
	assert.Nil(t, devices[1].LastSeenAt)

	devices, err = repo.Devices(ctx, &d2.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Two", devices[0].Name)

	testutil.SensorReading(t, db, d1.ID, "sensor-a", 20, now.Add(-20*time.Minute))
	testutil.SensorReading(t, db, d1.ID, "sensor-b", 22, now.Add(-8*time.Minute))
	testutil.SensorReading(t, db, d1.ID, "sensor-a", 24, now.Add(-2*time.Minute))

	latest, err := repo.LatestReading(ctx, d1.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 24.0, latest.Temperature)

	latest, err = repo.LatestReading(ctx, d1.ID, "sensor-b")
	require.NoError(t, err)
	assert.Equal(t, 22.0, latest.Temperature)

	latest, err = repo.LatestReading(ctx, d2.ID, "")
	require.NoError(t, err)
	assert.Nil(t, latest)

	since, err := repo.ReadingsSince(ctx, d1.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, 22.0, since[0].Temperature)

	between, err := repo.ReadingsBetween(ctx, d1.ID, now.Add(-20*time.Minute), now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	has, err := repo.HasReadingsBetween(ctx, d1.ID, now.Add(-15*time.Minute), now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = repo.HasReadingsBetween(ctx, d1.ID, now.Add(-20*time.Minute), now.Add(-8*time.Minute))
	require.NoError(t, err)
	assert.False(t, has)

	relay := testutil.Relay(t, db, d1.ID, 1, "Heater")
	testutil.RelayState(t, db, relay.ID, true, now.Add(-4*time.Hour))
	testutil.RelayState(t, db, relay.ID, false, now.Add(-3*time.Hour))
	testutil.RelayState(t, db, relay.ID, true, now.Add(-time.Minute))

	relays, err := repo.Relays(ctx, d1.ID)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, "Heater", relays[0].Name)

	cur, err := repo.RelayCurrentState(ctx, relay.ID)
	require.NoError(t, err)
	assert.True(t, cur.State)

	other, err := repo.LatestRelayStateOtherThan(ctx, relay.ID, true)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.True(t, other.ChangedAt.Equal(now.Add(-3*time.Hour)))

	recent, err := repo.LatestRelayStateSince(ctx, relay.ID, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.True(t, recent.State)

	n, err := repo.CountRelayStatesSince(ctx, relay.ID, now.Add(-5*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.CountRelayStatesBetween(ctx, relay.ID, now.Add(-5*time.Hour), now, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
