package restful

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/alerting/sweep"
	"github.com/okieraised/thermostat-alerts/internal/api_response"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

type ISweepService interface {
	Run(ctx *gin.Context, input *RunSweepInput) (*api_response.BaseOutput, *cerrors.AppError)
}

type SweepRunner interface {
	RunSweep(ctx context.Context) (sweep.Stats, error)
}

type SweepService struct {
	sweeper SweepRunner
}

func NewSweepService(sweeper SweepRunner) *SweepService {
	return &SweepService{sweeper: sweeper}
}

type RunSweepInput struct {
	TracerCtx context.Context
	Tracer    trace.Tracer
	Actor     *models.User
}

func (svc *SweepService) Run(ctx *gin.Context, input *RunSweepInput) (*api_response.BaseOutput, *cerrors.AppError) {
	rootCtx, span := input.Tracer.Start(input.TracerCtx, "run-sweep-handler")
	defer span.End()

	if !input.Actor.IsAdmin() {
		return nil, cerrors.ErrAdminRequired
	}
	// Runs to completion even when the request is cancelled.
	stats, err := svc.sweeper.RunSweep(context.WithoutCancel(rootCtx))
	if errors.Is(err, sweep.ErrSweepInProgress) {
		return nil, cerrors.ErrSweepInProgress
	}
	if err != nil {
		return nil, cerrors.ErrSweepFailed.WithCause(err)
	}
	return ok(stats), nil
}
