package restful

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/alerting/sweep"
	"github.com/okieraised/thermostat-alerts/internal/api_response"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type IHealthcheckService interface {
	Healthcheck(ctx *gin.Context, input *HealthcheckInput) (*api_response.BaseOutput, *cerrors.AppError)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type SweepStatus interface {
	LastStatus() (sweep.Status, bool)
}

type HealthcheckService struct {
	db     Pinger
	sweeps SweepStatus
	logger *log.Logger
}

func NewHealthcheckService(db Pinger, sweeps SweepStatus, options ...func(*HealthcheckService)) *HealthcheckService {
	svc := &HealthcheckService{db: db, sweeps: sweeps}
	for _, opt := range options {
		opt(svc)
	}
	svc.logger = log.Default().Named("healthcheck_svc")
	return svc
}

type HealthcheckInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
}

type HealthcheckOutput struct {
	Database  string        `json:"database"`
	LastSweep *sweep.Status `json:"last_sweep"`
	Healthy   bool          `json:"healthy"`
}

func (svc *HealthcheckService) Healthcheck(ctx *gin.Context, input *HealthcheckInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "healthcheck-handler")
	defer span.End()

	lg := svc.logger.With(
		zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
	)

	out := HealthcheckOutput{Database: "ok", Healthy: true}

	_, cSpan := input.Tracer.Start(rootCtx, "ping-database")
	pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
	err := svc.db.PingContext(pingCtx)
	cancel()
	cSpan.End()
	if err != nil {
		wErr := errors.Wrap(err, "failed to ping database")
		lg.Error(wErr.Error())
		out.Database = "unreachable"
		out.Healthy = false
	}

	if svc.sweeps != nil {
		if status, ran := svc.sweeps.LastStatus(); ran {
			out.LastSweep = &status
			if !status.OK() {
				out.Healthy = false
			}
		}
	}

	resp := ok(out)
	if !out.Healthy {
		resp.Code = cerrors.ErrGenericInternalServer.Code
		resp.Message = "unhealthy"
		resp.Status = http.StatusServiceUnavailable
	}
	return resp, nil
}
