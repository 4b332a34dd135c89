package middlewares

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"go.uber.org/zap"
)

// RecoveryMW turns a handler panic into a 500 without echoing the panic value
// to the caller.
func RecoveryMW() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				log.Default().Named("recovery").Error("handler panicked",
					zap.String(constants.APIFieldRequestID, ctx.GetString(constants.APIFieldRequestID)),
					zap.String("panic", fmt.Sprint(p)),
					zap.ByteString("stack", debug.Stack()),
				)
				abort(ctx, cerrors.ErrGenericInternalServer)
			}
		}()
		ctx.Next()
	}
}
