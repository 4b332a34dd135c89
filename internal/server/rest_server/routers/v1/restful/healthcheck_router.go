package restful

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HealthcheckRouter struct {
	svc    restful.IHealthcheckService
	logger *log.Logger
	tracer trace.Tracer
}

func NewHealthcheckRouter(svc restful.IHealthcheckService) *HealthcheckRouter {
	return &HealthcheckRouter{
		svc:    svc,
		logger: log.Default().Named("healthcheck_router"),
		tracer: tracer_client.Tracer("healthcheck"),
	}
}

func (r *HealthcheckRouter) Routes(engine *gin.RouterGroup) {
	routes := engine.Group("/health")
	routes.GET("", r.healthcheck)
}

func (r *HealthcheckRouter) healthcheck(ctx *gin.Context) {
	rootCtx, span := r.tracer.Start(ctx.Request.Context(), ctx.Request.URL.Path, trace.WithAttributes(attribute.KeyValue{
		Key:   constants.APIFieldRequestID,
		Value: attribute.StringValue(ctx.GetString(constants.APIFieldRequestID)),
	}))
	defer span.End()

	lg := r.logger.With(
		zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
	)
	lg.Debug("Received new healthcheck request")

	result, appErr := r.svc.Healthcheck(ctx, &restful.HealthcheckInput{
		TracerCtx: rootCtx,
		Tracer:    r.tracer,
	})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}
