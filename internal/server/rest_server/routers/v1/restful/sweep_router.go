package restful

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/middlewares"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SweepRouter struct {
	svc    restful.ISweepService
	logger *log.Logger
	tracer trace.Tracer
}

func NewSweepRouter(svc restful.ISweepService) *SweepRouter {
	return &SweepRouter{
		svc:    svc,
		logger: log.Default().Named("sweep_router"),
		tracer: tracer_client.Tracer("sweep_http_router"),
	}
}

func (r *SweepRouter) Routes(engine *gin.RouterGroup) {
	routes := engine.Group("/sweeps")
	routes.POST("", r.run)
}

func (r *SweepRouter) run(ctx *gin.Context) {
	rootCtx, span := r.tracer.Start(ctx.Request.Context(), ctx.Request.URL.Path, trace.WithAttributes(attribute.KeyValue{
		Key:   constants.APIFieldRequestID,
		Value: attribute.StringValue(ctx.GetString(constants.APIFieldRequestID)),
	}))
	defer span.End()

	lg := r.logger.With(zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)))
	lg.Info("Received new manual sweep request")

	actor, _ := middlewares.CurrentUser(ctx)
	result, appErr := r.svc.Run(ctx, &restful.RunSweepInput{TracerCtx: rootCtx, Tracer: r.tracer, Actor: actor})
	if appErr != nil {
		writeError(ctx, lg, appErr)
		return
	}
	writeResult(ctx, http.StatusOK, result)
}
