package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okieraised/thermostat-alerts/internal/constants"
)

// RequestIDMW keeps an inbound X-Request-ID or mints one, and echoes it back.
func RequestIDMW() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(constants.HeaderXRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		ctx.Set(constants.APIFieldRequestID, requestID)
		ctx.Header(constants.HeaderXRequestID, requestID)
		ctx.Next()
	}
}
