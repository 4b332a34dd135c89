package middlewares

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/api_response"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/pkg/errors"
)

type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// AuthMW resolves the caller from the X-User-ID header set by the gateway
// in front of this service.
func AuthMW(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw := strings.TrimSpace(ctx.GetHeader(constants.HeaderXUserID))
		if raw == "" {
			abort(ctx, cerrors.ErrMissingAuthenticationHeader)
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			abort(ctx, cerrors.ErrInvalidAuthenticationHeader)
			return
		}
		user, err := users.GetByID(ctx.Request.Context(), uint(id))
		if errors.Is(err, repository.ErrNotFound) {
			abort(ctx, cerrors.ErrInvalidAuthenticationHeader)
			return
		}
		if err != nil {
			abort(ctx, cerrors.ErrGenericInternalServer)
			return
		}
		ctx.Set(constants.ContextFieldUser, user)
		ctx.Set(constants.ContextFieldUsername, user.Name)
		ctx.Next()
	}
}

// CurrentUser returns the user AuthMW stored on the request.
func CurrentUser(ctx *gin.Context) (*models.User, bool) {
	v, ok := ctx.Get(constants.ContextFieldUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

func abort(ctx *gin.Context, appErr *cerrors.AppError) {
	resp := api_response.New[any](ctx)
	resp.Populate(appErr.Code, appErr.Message, nil, nil, nil)
	ctx.AbortWithStatusJSON(appErr.HTTPStatus, resp)
}
