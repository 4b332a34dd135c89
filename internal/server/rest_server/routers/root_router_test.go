package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/alerting/gate"
	"github.com/okieraised/thermostat-alerts/internal/alerting/sweep"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/okieraised/thermostat-alerts/internal/repository/testutil"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu   sync.Mutex
	sent []uint
	err  error
}

func (s *fakeSender) SendNow(_ context.Context, _ models.User, entry *models.AlertLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, entry.ID)
	return nil
}

type queuedNotifier struct{}

func (queuedNotifier) Enqueue(context.Context, models.User, *models.AlertLog) error { return nil }

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	db     *gorm.DB
	engine *gin.Engine
	sender *fakeSender
	admin  *models.User
	user   *models.User
	viewer *models.User
	device *models.Device
}

func newAPIFixture(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	f := &apiFixture{db: db, sender: &fakeSender{}}
	f.admin = testutil.User(t, db, "root", "root@example.com", models.RoleAdmin)
	f.user = testutil.User(t, db, "alice", "alice@example.com", models.RoleUser)
	f.viewer = testutil.User(t, db, "victor", "", models.RoleViewer)
	f.device = testutil.Device(t, db, "Greenhouse", now)

	subs := repository.NewSubscriptionRepo(db)
	users := repository.NewUserRepo(db)
	logs := repository.NewAlertLogRepo(db)
	telemetry := repository.NewTelemetryRepo(db)
	g := gate.New(logs, queuedNotifier{})
	sweeper := sweep.New(subs, evaluator.New(telemetry), g, sweep.WithClock(func() time.Time { return now }))

	sqlDB, err := db.DB()
	require.NoError(t, err)

	v1 := NewV1RestState()
	v1.SetHealthcheckService(restful.NewHealthcheckService(sqlDB, sweeper))
	v1.SetSubscriptionService(restful.NewSubscriptionService(subs, users, logs, telemetry, g, f.sender,
		restful.WithSubscriptionClock(func() time.Time { return now })))
	v1.SetSweepService(restful.NewSweepService(sweeper))

	state := NewAppState()
	state.SetV1RestState(v1)
	state.SetUserLookup(users)

	f.engine = rest_server.NewEngine(NewRootRouter(state).InitRouters)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, as *models.User, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(constants.HeaderContentType, "application/json")
	if as != nil {
		req.Header.Set(constants.HeaderXUserID, fmt.Sprint(as.ID))
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (f *apiFixture) create(t *testing.T, as *models.User, body map[string]any) restful.SubscriptionView {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", as, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view restful.SubscriptionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cerrors.OK.Code, env.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderXRequestID))
	assert.True(t, strings.HasPrefix(rec.Header().Get(constants.HeaderContentDigest), "sha-256=:"))

	var out restful.HealthcheckOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.Healthy)
	assert.Equal(t, "ok", out.Database)
	assert.Nil(t, out.LastSweep)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/alert-subscriptions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, cerrors.ErrMissingAuthenticationHeader.Code, env.Code)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions", &models.User{ID: 999}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, cerrors.ErrInvalidAuthenticationHeader.Code, env.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, cerrors.ErrGenericUnknownAPIPath.Code, env.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListTypes(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/alert-subscriptions/types", f.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var grouped map[string][]models.KindInfo
	require.NoError(t, json.Unmarshal(env.Data, &grouped))
	assert.Len(t, grouped[models.CategoryTemperature], 4)
	assert.Len(t, grouped[models.CategoryRelays], 4)
}

func TestCreateAndList(t *testing.T) {
	f := newAPIFixture(t)

	view := f.create(t, f.user, map[string]any{
		"alert_type": "temp_high",
		"device_id":  f.device.ID,
		"settings":   map[string]any{"threshold": 28.5},
	})
	assert.Equal(t, f.user.ID, view.UserID)
	assert.Equal(t, models.KindTempHigh, view.AlertType)
	assert.Equal(t, "Greenhouse", view.DeviceName)
	assert.True(t, view.Enabled)
	require.NotNil(t, view.Settings.Threshold)
	assert.Equal(t, 28.5, *view.Settings.Threshold)

	rec, env := f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.user, map[string]any{
		"alert_type": "temp_high",
		"device_id":  f.device.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, cerrors.ErrSubscriptionExists.Code, env.Code)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions", f.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.Count)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions", f.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestCreate_Rejections(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.user, map[string]any{"alert_type": "meltdown"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, cerrors.ErrInvalidAlertKind.Code, env.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.viewer, map[string]any{"alert_type": "relay_stuck"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, cerrors.ErrAlertKindRequiresRole.Code, env.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.user, map[string]any{
		"alert_type": "temp_high",
		"device_id":  4242,
	})
	assert.Equal(t, cerrors.ErrInvalidSubscription.Code, env.Code)
	assert.Equal(t, cerrors.ErrInvalidSubscription.HTTPStatus, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.user, map[string]any{
		"alert_type":     "daily_summary",
		"scheduled_time": "25:00",
	})
	assert.Equal(t, cerrors.ErrInvalidSubscription.Code, env.Code)
	assert.Equal(t, cerrors.ErrInvalidSubscription.HTTPStatus, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/alert-subscriptions", f.user, map[string]any{
		"alert_type": "temp_high",
		"user_id":    f.admin.ID,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, cerrors.ErrGenericPermission.Code, env.Code)
}

func TestAdminActsOnOtherUser(t *testing.T) {
	f := newAPIFixture(t)

	view := f.create(t, f.admin, map[string]any{
		"alert_type": "device_offline",
		"user_id":    f.user.ID,
	})
	assert.Equal(t, f.user.ID, view.UserID)
	assert.Equal(t, "All Devices", view.DeviceName)

	rec, env := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/alert-subscriptions?user_id=%d", f.user.ID), f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.Count)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions?user_id=9999", f.admin, nil)
	assert.Equal(t, cerrors.ErrUnknownUser.HTTPStatus, rec.Code)
	assert.Equal(t, cerrors.ErrUnknownUser.Code, env.Code)

	rec, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/alert-subscriptions?user_id=%d", f.admin.ID), f.user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions?user_id=abc", f.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newAPIFixture(t)
	view := f.create(t, f.user, map[string]any{"alert_type": "temp_low"})
	path := fmt.Sprintf("/api/v1/alert-subscriptions/%d", view.ID)

	rec, env := f.do(t, http.MethodPatch, path, f.user, map[string]any{
		"enabled":  false,
		"settings": map[string]any{"threshold": 12},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated restful.SubscriptionView
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.False(t, updated.Enabled)
	require.NotNil(t, updated.Settings.Threshold)
	assert.Equal(t, 12.0, *updated.Settings.Threshold)

	rec, _ = f.do(t, http.MethodPatch, path, f.viewer, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = f.do(t, http.MethodPatch, "/api/v1/alert-subscriptions/777", f.user, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, cerrors.ErrSubscriptionNotFound.Code, env.Code)

	rec, _ = f.do(t, http.MethodDelete, path, f.viewer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, path, f.user, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, path, f.user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestTrigger(t *testing.T) {
	f := newAPIFixture(t)
	view := f.create(t, f.user, map[string]any{"alert_type": "temp_high"})
	path := fmt.Sprintf("/api/v1/alert-subscriptions/%d/test", view.ID)

	rec, env := f.do(t, http.MethodPost, path, f.user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, cerrors.ErrAdminRequired.Code, env.Code)

	rec, env = f.do(t, http.MethodPost, path, f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out restful.TestTriggerOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "alice@example.com", out.EmailSentTo)
	assert.Equal(t, "TEST: Temperature 35°C exceeds threshold 30°C on Greenhouse", out.AlertLog.Message)
	assert.Equal(t, []uint{out.AlertLog.ID}, f.sender.sent)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alert-subscriptions/logs", f.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.Count)

	f.sender.err = errors.New("smtp down")
	rec, env = f.do(t, http.MethodPost, path, f.admin, nil)
	assert.Equal(t, cerrors.ErrNotificationFailed.HTTPStatus, rec.Code)
	assert.Equal(t, cerrors.ErrNotificationFailed.Code, env.Code)
}

func TestTestTrigger_NoEmail(t *testing.T) {
	f := newAPIFixture(t)
	view := f.create(t, f.viewer, map[string]any{"alert_type": "device_online"})

	rec, env := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/alert-subscriptions/%d/test", view.ID), f.admin, nil)
	assert.Equal(t, cerrors.ErrUserHasNoEmail.HTTPStatus, rec.Code)
	assert.Equal(t, cerrors.ErrUserHasNoEmail.Code, env.Code)
}

func TestManualSweep(t *testing.T) {
	f := newAPIFixture(t)
	f.create(t, f.user, map[string]any{"alert_type": "temp_high", "device_id": f.device.ID})
	testutil.Reading(t, f.db, f.device.ID, 40, now.Add(-time.Minute))

	rec, _ := f.do(t, http.MethodPost, "/api/v1/sweeps", f.user, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/v1/sweeps", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats sweep.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, sweep.Stats{Checked: 1, Triggered: 1}, stats)

	rec, env = f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health restful.HealthcheckOutput
	require.NoError(t, json.Unmarshal(env.Data, &health))
	require.NotNil(t, health.LastSweep)
	assert.Equal(t, 1, health.LastSweep.Stats.Triggered)
}
