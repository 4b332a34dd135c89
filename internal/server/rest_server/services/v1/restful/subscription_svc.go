package restful

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/api_response"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/notification"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/okieraised/thermostat-alerts/internal/utilities"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LogListLimit caps the alert history endpoint.
const LogListLimit = 100

type ISubscriptionService interface {
	ListTypes(ctx *gin.Context, input *ListTypesInput) (*api_response.BaseOutput, *cerrors.AppError)
	List(ctx *gin.Context, input *ListSubscriptionsInput) (*api_response.BaseOutput, *cerrors.AppError)
	Create(ctx *gin.Context, input *CreateSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError)
	Update(ctx *gin.Context, input *UpdateSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError)
	Delete(ctx *gin.Context, input *DeleteSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError)
	Logs(ctx *gin.Context, input *ListLogsInput) (*api_response.BaseOutput, *cerrors.AppError)
	TestTrigger(ctx *gin.Context, input *TestTriggerInput) (*api_response.BaseOutput, *cerrors.AppError)
}

type DeviceLookup interface {
	DeviceByID(ctx context.Context, id uint) (*models.Device, error)
	FirstDevice(ctx context.Context) (*models.Device, error)
}

type TestRecorder interface {
	RecordTest(ctx context.Context, sub *models.AlertSubscription, deviceID *uint, message string, data map[string]interface{}, now time.Time) (*models.AlertLog, error)
}

type ImmediateSender interface {
	SendNow(ctx context.Context, user models.User, entry *models.AlertLog) error
}

type SubscriptionService struct {
	subs     repository.SubscriptionRepo
	users    repository.UserRepo
	logs     repository.AlertLogRepo
	devices  DeviceLookup
	recorder TestRecorder
	sender   ImmediateSender
	clock    func() time.Time
	logger   *log.Logger
}

func WithSubscriptionClock(clock func() time.Time) func(*SubscriptionService) {
	return func(svc *SubscriptionService) { svc.clock = clock }
}

func NewSubscriptionService(
	subs repository.SubscriptionRepo,
	users repository.UserRepo,
	logs repository.AlertLogRepo,
	devices DeviceLookup,
	recorder TestRecorder,
	sender ImmediateSender,
	options ...func(*SubscriptionService),
) *SubscriptionService {
	svc := &SubscriptionService{
		subs:     subs,
		users:    users,
		logs:     logs,
		devices:  devices,
		recorder: recorder,
		sender:   sender,
		clock:    time.Now,
	}
	for _, opt := range options {
		opt(svc)
	}
	svc.logger = log.Default().Named("subscription_svc")
	return svc
}

type SubscriptionView struct {
	ID              uint             `json:"id"`
	UserID          uint             `json:"user_id"`
	AlertType       models.AlertKind `json:"alert_type"`
	AlertLabel      string           `json:"alert_label"`
	DeviceID        *uint            `json:"device_id"`
	DeviceName      string           `json:"device_name"`
	Enabled         bool             `json:"enabled"`
	Settings        models.Settings  `json:"settings"`
	CooldownMinutes int              `json:"cooldown_minutes"`
	ScheduledTime   *string          `json:"scheduled_time"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toSubscriptionView(sub *models.AlertSubscription) SubscriptionView {
	return SubscriptionView{
		ID:              sub.ID,
		UserID:          sub.UserID,
		AlertType:       sub.AlertKind,
		AlertLabel:      sub.AlertKind.Label(),
		DeviceID:        sub.DeviceID,
		DeviceName:      sub.DeviceName(),
		Enabled:         sub.Enabled,
		Settings:        sub.Config(),
		CooldownMinutes: sub.CooldownMinutes,
		ScheduledTime:   sub.ScheduledTime,
		CreatedAt:       sub.CreatedAt,
	}
}

type AlertLogView struct {
	ID          uint                   `json:"id"`
	AlertType   models.AlertKind       `json:"alert_type"`
	AlertLabel  string                 `json:"alert_label"`
	DeviceID    *uint                  `json:"device_id"`
	DeviceName  string                 `json:"device_name"`
	Message     string                 `json:"message"`
	TriggeredAt time.Time              `json:"triggered_at"`
	ResolvedAt  *time.Time             `json:"resolved_at"`
	Data        map[string]interface{} `json:"data"`
}

func toAlertLogView(entry *models.AlertLog) AlertLogView {
	name := "All Devices"
	if entry.Device != nil {
		name = entry.Device.Name
	}
	return AlertLogView{
		ID:          entry.ID,
		AlertType:   entry.Subscription.AlertKind,
		AlertLabel:  entry.Subscription.AlertKind.Label(),
		DeviceID:    entry.DeviceID,
		DeviceName:  name,
		Message:     entry.Message,
		TriggeredAt: entry.TriggeredAt,
		ResolvedAt:  entry.ResolvedAt,
		Data:        entry.Data,
	}
}

// targetUser resolves the user an actor is acting on. Only admins may act
// on someone else.
func (svc *SubscriptionService) targetUser(ctx context.Context, actor *models.User, userID *uint) (*models.User, *cerrors.AppError) {
	if userID == nil || *userID == actor.ID {
		return actor, nil
	}
	if !actor.IsAdmin() {
		return nil, cerrors.ErrGenericPermission
	}
	user, err := svc.users.GetByID(ctx, *userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, cerrors.ErrUnknownUser
	}
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	return user, nil
}

// owned loads a subscription the actor owns or administers.
func (svc *SubscriptionService) owned(ctx context.Context, actor *models.User, id uint) (*models.AlertSubscription, *cerrors.AppError) {
	sub, err := svc.subs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, cerrors.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	if sub.UserID != actor.ID && !actor.IsAdmin() {
		return nil, cerrors.ErrGenericPermission
	}
	return sub, nil
}

func ok(data any) *api_response.BaseOutput {
	return &api_response.BaseOutput{Code: cerrors.OK.Code, Message: cerrors.OK.Message, Data: data}
}

type ListTypesInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
}

func (svc *SubscriptionService) ListTypes(ctx *gin.Context, input *ListTypesInput) (*api_response.BaseOutput, *cerrors.AppError) {
	_, span := input.Tracer.Start(input.TracerCtx, "list-types-handler")
	defer span.End()
	return ok(models.GroupedCatalogue()), nil
}

type ListSubscriptionsInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
	UserID    *uint
}

func (svc *SubscriptionService) List(ctx *gin.Context, input *ListSubscriptionsInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "list-subscriptions-handler")
	defer span.End()

	target, appErr := svc.targetUser(rootCtx, input.Actor, input.UserID)
	if appErr != nil {
		return nil, appErr
	}
	subs, err := svc.subs.ListByUser(rootCtx, target.ID)
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	out := make([]SubscriptionView, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionView(&subs[i]))
	}
	resp := ok(out)
	resp.Count = len(out)
	return resp, nil
}

type CreateSubscriptionInput struct {
	TracerCtx       context.Context
	Tracer          trace.Tracer
	Actor           *models.User
	UserID          *uint
	DeviceID        *uint
	AlertType       string
	Enabled         *bool
	Settings        models.Settings
	CooldownMinutes int
	ScheduledTime   string
}

func (svc *SubscriptionService) Create(ctx *gin.Context, input *CreateSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "create-subscription-handler")
	defer span.End()

	lg := svc.logger.With(zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)))

	target, appErr := svc.targetUser(rootCtx, input.Actor, input.UserID)
	if appErr != nil {
		return nil, appErr
	}

	kind, valid := models.ParseAlertKind(input.AlertType)
	if !valid {
		return nil, cerrors.ErrInvalidAlertKind
	}
	if !target.CanSubscribe(kind) {
		return nil, cerrors.ErrAlertKindRequiresRole
	}

	if input.DeviceID != nil {
		if _, err := svc.devices.DeviceByID(rootCtx, *input.DeviceID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, cerrors.ErrInvalidSubscription.WithMessage("device %d does not exist", *input.DeviceID)
			}
			return nil, cerrors.ErrGenericInternalServer.WithCause(err)
		}
	}

	sub, err := models.NewSubscription(target.ID, input.DeviceID, kind, utilities.DerefOr(input.Enabled, true), input.Settings, input.CooldownMinutes, input.ScheduledTime)
	if err != nil {
		return nil, cerrors.ErrInvalidSubscription.WithMessage("%s", err.Error())
	}

	if err := svc.subs.Create(rootCtx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, cerrors.ErrSubscriptionExists
		}
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}

	created, err := svc.subs.GetByID(rootCtx, sub.ID)
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	lg.Info("Alert subscription created",
		zap.Uint(constants.LogFieldSubscriptionID, created.ID),
		zap.Uint(constants.LogFieldUserID, created.UserID),
		zap.String(constants.LogFieldAlertKind, string(created.AlertKind)),
	)
	return ok(toSubscriptionView(created)), nil
}

type UpdateSubscriptionInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
	ID        uint
	Enabled   *bool
	Settings  *models.Settings
}

func (svc *SubscriptionService) Update(ctx *gin.Context, input *UpdateSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "update-subscription-handler")
	defer span.End()

	sub, appErr := svc.owned(rootCtx, input.Actor, input.ID)
	if appErr != nil {
		return nil, appErr
	}
	if input.Settings != nil {
		if err := input.Settings.Validate(sub.AlertKind); err != nil {
			return nil, cerrors.ErrInvalidSubscription.WithMessage("%s", err.Error())
		}
	}
	if err := svc.subs.Update(rootCtx, sub, input.Enabled, input.Settings); err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	return ok(toSubscriptionView(sub)), nil
}

type DeleteSubscriptionInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
	ID        uint
}

func (svc *SubscriptionService) Delete(ctx *gin.Context, input *DeleteSubscriptionInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "delete-subscription-handler")
	defer span.End()

	sub, appErr := svc.owned(rootCtx, input.Actor, input.ID)
	if appErr != nil {
		return nil, appErr
	}
	if err := svc.subs.Delete(rootCtx, sub.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, cerrors.ErrSubscriptionNotFound
		}
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	return ok(nil), nil
}

type ListLogsInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
	UserID    *uint
}

func (svc *SubscriptionService) Logs(ctx *gin.Context, input *ListLogsInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "list-logs-handler")
	defer span.End()

	target, appErr := svc.targetUser(rootCtx, input.Actor, input.UserID)
	if appErr != nil {
		return nil, appErr
	}
	logs, err := svc.logs.ListForUser(rootCtx, target.ID, LogListLimit)
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	out := make([]AlertLogView, 0, len(logs))
	for i := range logs {
		out = append(out, toAlertLogView(&logs[i]))
	}
	resp := ok(out)
	resp.Count = len(out)
	resp.Meta = map[string]any{"limit": LogListLimit}
	return resp, nil
}

type TestTriggerInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
	ID        uint
}

type TestTriggerOutput struct {
	AlertLog    AlertLogView `json:"alert_log"`
	EmailSentTo string       `json:"email_sent_to"`
}

func (svc *SubscriptionService) TestTrigger(ctx *gin.Context, input *TestTriggerInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "test-trigger-handler")
	defer span.End()

	lg := svc.logger.With(zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)))

	if !input.Actor.IsAdmin() {
		return nil, cerrors.ErrAdminRequired
	}
	sub, err := svc.subs.GetByID(rootCtx, input.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, cerrors.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	if !sub.User.HasEmail() {
		return nil, cerrors.ErrUserHasNoEmail
	}

	device := sub.Device
	if device == nil {
		device, err = svc.devices.FirstDevice(rootCtx)
		if err != nil {
			return nil, cerrors.ErrGenericInternalServer.WithCause(err)
		}
	}
	var deviceID *uint
	deviceName := "Test Device"
	if device != nil {
		deviceID = &device.ID
		deviceName = device.Name
	}

	message, data := TestMessage(sub.AlertKind, deviceName)
	entry, err := svc.recorder.RecordTest(rootCtx, sub, deviceID, message, data, svc.clock())
	if err != nil {
		return nil, cerrors.ErrGenericInternalServer.WithCause(err)
	}
	entry.Device = device

	if err := svc.sender.SendNow(rootCtx, sub.User, entry); err != nil {
		if errors.Is(err, notification.ErrNoEmail) {
			return nil, cerrors.ErrUserHasNoEmail
		}
		lg.Error("Failed to send test alert", zap.Uint(constants.LogFieldAlertLogID, entry.ID), zap.Error(err))
		return nil, cerrors.ErrNotificationFailed.WithCause(err)
	}

	lg.Info("Test alert sent",
		zap.Uint(constants.LogFieldSubscriptionID, sub.ID),
		zap.Uint(constants.LogFieldAlertLogID, entry.ID),
	)
	return ok(TestTriggerOutput{AlertLog: toAlertLogView(entry), EmailSentTo: sub.User.Email}), nil
}

// TestMessage is the synthetic message and data of a manual test alert.
func TestMessage(kind models.AlertKind, deviceName string) (string, map[string]interface{}) {
	switch kind {
	case models.KindTempHigh:
		return fmt.Sprintf("TEST: Temperature 35°C exceeds threshold 30°C on %s", deviceName),
			map[string]interface{}{"temperature": 35, "threshold": 30, "device_name": deviceName}
	case models.KindTempLow:
		return fmt.Sprintf("TEST: Temperature 10°C is below threshold 15°C on %s", deviceName),
			map[string]interface{}{"temperature": 10, "threshold": 15, "device_name": deviceName}
	case models.KindDeviceOffline:
		return fmt.Sprintf("TEST: %s has been offline for 10 minutes", deviceName),
			map[string]interface{}{"device_name": deviceName, "minutes_offline": 10}
	case models.KindDeviceOnline:
		return fmt.Sprintf("TEST: %s is back online", deviceName),
			map[string]interface{}{"device_name": deviceName}
	case models.KindRelayStateChanged:
		return fmt.Sprintf("TEST: Heating Relay on %s changed to ON", deviceName),
			map[string]interface{}{"device_name": deviceName, "relay_name": "Heating Relay", "state": "ON"}
	case models.KindDailySummary:
		return fmt.Sprintf("TEST: Daily summary for %s", deviceName),
			map[string]interface{}{
				"device_name":   deviceName,
				"avg_temp":      22.5,
				"min_temp":      18.0,
				"max_temp":      27.0,
				"relay_on_time": "4h 32m",
			}
	case models.KindWeeklySummary:
		return fmt.Sprintf("TEST: Weekly summary for %s", deviceName),
			map[string]interface{}{
				"device_name":         deviceName,
				"avg_temp":            21.8,
				"min_temp":            16.5,
				"max_temp":            28.5,
				"total_relay_on_time": "28h 15m",
			}
	default:
		return fmt.Sprintf("TEST: %s alert for %s", kind.Label(), deviceName),
			map[string]interface{}{"device_name": deviceName, "alert_type": string(kind)}
	}
}
