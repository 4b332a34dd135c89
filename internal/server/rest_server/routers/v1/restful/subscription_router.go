package restful

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/middlewares"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
	"github.com/okieraised/thermostat-alerts/internal/utilities"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SubscriptionRouter struct {
	svc    restful.ISubscriptionService
	logger *log.Logger
	tracer trace.Tracer
}

func NewSubscriptionRouter(svc restful.ISubscriptionService) *SubscriptionRouter {
	return &SubscriptionRouter{
		svc:    svc,
		logger: log.Default().Named("subscription_router"),
		tracer: tracer_client.Tracer("subscription_http_router"),
	}
}

func (r *SubscriptionRouter) Routes(engine *gin.RouterGroup) {
	routes := engine.Group("/alert-subscriptions")
	routes.GET("/types", r.listTypes)
	routes.GET("/logs", r.listLogs)
	routes.GET("", r.list)
	routes.POST("", r.create)
	routes.PATCH("/:id", r.update)
	routes.DELETE("/:id", r.delete)
	routes.POST("/:id/test", r.testTrigger)
}

// begin opens the request span and returns the caller and a request-scoped
// logger.
func (r *SubscriptionRouter) begin(ctx *gin.Context, msg string) (context.Context, trace.Span, *models.User, *log.Logger) {
	rootCtx, span := r.tracer.Start(ctx.Request.Context(), ctx.Request.URL.Path, trace.WithAttributes(attribute.KeyValue{
		Key:   constants.APIFieldRequestID,
		Value: attribute.StringValue(ctx.GetString(constants.APIFieldRequestID)),
	}))
	actor, _ := middlewares.CurrentUser(ctx)
	lg := r.logger.With(zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)))
	if actor != nil {
		lg = lg.With(zap.Uint(constants.LogFieldUserID, actor.ID))
	}
	lg.Info(msg)
	return rootCtx, span, actor, lg
}

func (r *SubscriptionRouter) listTypes(ctx *gin.Context) {
	rootCtx, span, _, lg := r.begin(ctx, "Received new alert type list request")
	defer span.End()

	result, appErr := r.svc.ListTypes(ctx, &restful.ListTypesInput{TracerCtx: rootCtx, Tracer: r.tracer})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}

func (r *SubscriptionRouter) list(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new subscription list request")
	defer span.End()

	userID, appErr := queryUserID(ctx)
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	result, appErr := r.svc.List(ctx, &restful.ListSubscriptionsInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
		Actor:     actor,
		UserID:    userID,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}

type CreateSubscriptionRequest struct {
	UserID          *uint           `json:"user_id"`
	DeviceID        *uint           `json:"device_id"`
	AlertType       string          `json:"alert_type"`
	Enabled         *bool           `json:"enabled"`
	Settings        models.Settings `json:"settings"`
	CooldownMinutes *int            `json:"cooldown_minutes"`
	ScheduledTime   *string         `json:"scheduled_time"`
}

func (req *CreateSubscriptionRequest) validate() *cerrors.AppError {
	if strings.TrimSpace(req.AlertType) == "" {
		return cerrors.ErrInvalidSubscription.WithMessage("alert_type is required")
	}
	if req.CooldownMinutes != nil && (*req.CooldownMinutes < models.MinCooldownMinutes || *req.CooldownMinutes > models.MaxCooldownMinutes) {
		return cerrors.ErrInvalidSubscription.WithMessage("cooldown_minutes must be between %d and %d", models.MinCooldownMinutes, models.MaxCooldownMinutes)
	}
	if req.ScheduledTime != nil && *req.ScheduledTime != "" && !models.ValidClock(*req.ScheduledTime) {
		return cerrors.ErrInvalidSubscription.WithMessage("scheduled_time must be formatted as HH:MM")
	}
	return nil
}

func (req *CreateSubscriptionRequest) toInput(ctx context.Context, tracer trace.Tracer, actor *models.User) *restful.CreateSubscriptionInput {
	input := &restful.CreateSubscriptionInput{
		TracerCtx: ctx,
		Tracer:    tracer,
		Actor:     actor,
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		AlertType: req.AlertType,
		Enabled:   req.Enabled,
		Settings:  req.Settings,
	}
	input.CooldownMinutes = utilities.DerefOr(req.CooldownMinutes, 0)
	input.ScheduledTime = utilities.DerefOr(req.ScheduledTime, "")
	return input
}

func (r *SubscriptionRouter) create(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new subscription create request")
	defer span.End()

	// serialization
	_, cSpan := r.tracer.Start(rootCtx, "serialization")
	var req CreateSubscriptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		cSpan.End()
		writeError(ctx, lg, cerrors.ErrGenericBadRequest.WithMessage("%s", err.Error()))
		return
	}
	cSpan.End()

	// validation
	_, cSpan = r.tracer.Start(rootCtx, "validation")
	if appErr := req.validate(); appErr != nil {
		cSpan.End()
		writeError(ctx, lg, appErr)
		return
	}
	cSpan.End()

	result, appErr := r.svc.Create(ctx, req.toInput(rootCtx, r.tracer, actor))
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusCreated, result)
}

type UpdateSubscriptionRequest struct {
	Enabled  *bool            `json:"enabled"`
	Settings *models.Settings `json:"settings"`
}

func (r *SubscriptionRouter) update(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new subscription update request")
	defer span.End()

	id, appErr := pathID(ctx, "id")
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	var req UpdateSubscriptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		writeError(ctx, lg, cerrors.ErrInvalidSubscription.WithMessage("%s", err.Error()))
		return
	}

	result, appErr := r.svc.Update(ctx, &restful.UpdateSubscriptionInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
		Actor:     actor,
		ID:        id,
		Enabled:   req.Enabled,
		Settings:  req.Settings,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}

func (r *SubscriptionRouter) delete(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new subscription delete request")
	defer span.End()

	id, appErr := pathID(ctx, "id")
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	result, appErr := r.svc.Delete(ctx, &restful.DeleteSubscriptionInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
		Actor:     actor,
		ID:        id,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}

func (r *SubscriptionRouter) listLogs(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new alert log list request")
	defer span.End()

	userID, appErr := queryUserID(ctx)
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	result, appErr := r.svc.Logs(ctx, &restful.ListLogsInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
		Actor:     actor,
		UserID:    userID,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}

func (r *SubscriptionRouter) testTrigger(ctx *gin.Context) {
	rootCtx, span, actor, lg := r.begin(ctx, "Received new test alert request")
	defer span.End()

	id, appErr := pathID(ctx, "id")
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	result, appErr := r.svc.TestTrigger(ctx, &restful.TestTriggerInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
		Actor:     actor,
		ID:        id,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}
