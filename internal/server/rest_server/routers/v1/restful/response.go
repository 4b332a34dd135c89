package restful

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/api_response"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"go.uber.org/zap"
)

func writeError(ctx *gin.Context, lg *log.Logger, appErr *cerrors.AppError) {
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		lg.Error(appErr.Error(), zap.Error(appErr.Cause))
	} else {
		lg.Info(appErr.Error())
	}
	resp := api_response.New[any](ctx)
	resp.Populate(appErr.Code, appErr.Message, nil, nil, nil)
	ctx.JSON(cerrors.HTTPStatusOf(appErr), resp)
}

func writeResult(ctx *gin.Context, status int, result *api_response.BaseOutput) {
	if result.Status != 0 {
		status = result.Status
	}
	resp := api_response.New[any](ctx)
	resp.Populate(result.Code, result.Message, result.Data, result.Meta, result.Count)
	ctx.JSON(status, resp)
}

// pathID parses a positive numeric path parameter.
func pathID(ctx *gin.Context, name string) (uint, *cerrors.AppError) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, cerrors.ErrGenericBadRequest.WithMessage("invalid %s", name)
	}
	return uint(id), nil
}

// queryUserID parses the optional user_id query parameter.
func queryUserID(ctx *gin.Context) (*uint, *cerrors.AppError) {
	raw, present := ctx.GetQuery("user_id")
	if !present || raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, cerrors.ErrGenericBadRequest.WithMessage("invalid user_id")
	}
	v := uint(id)
	return &v, nil
}
