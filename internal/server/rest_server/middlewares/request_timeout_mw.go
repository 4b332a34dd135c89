package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/pkg/errors"
)

// RequestTimeoutMW bounds the request context. Handlers that honour the
// context and return without writing get a 504.
func RequestTimeoutMW(timeout time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if timeout <= 0 {
			ctx.Next()
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(reqCtx)

		ctx.Next()

		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && !ctx.Writer.Written() {
			abort(ctx, cerrors.ErrGenericRequestTimedOut)
		}
	}
}
