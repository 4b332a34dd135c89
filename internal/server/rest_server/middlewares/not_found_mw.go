package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
)

func NoRouteMW() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		abort(ctx, cerrors.ErrGenericUnknownAPIPath)
	}
}

// NoMethodMW answers known paths hit with an unsupported verb.
func NoMethodMW() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		appErr := cerrors.ErrGenericUnknownAPIPath.WithMessage("method %s not allowed", ctx.Request.Method)
		appErr.HTTPStatus = http.StatusMethodNotAllowed
		abort(ctx, appErr)
	}
}
