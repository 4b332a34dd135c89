package middlewares

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/constants"
)

// digestWriter sets Content-Digest from the first body write. Headers are
// flushed with that write, so later chunks are not covered.
type digestWriter struct {
	gin.ResponseWriter
}

func (w *digestWriter) Write(data []byte) (int, error) {
	if !w.Written() {
		sum := sha256.Sum256(data)
		w.Header().Set(constants.HeaderContentDigest, "sha-256=:"+base64.StdEncoding.EncodeToString(sum[:])+":")
	}
	return w.ResponseWriter.Write(data)
}

func (w *digestWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// ResponseHashMW adds a Content-Digest header to JSON responses.
func ResponseHashMW() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Writer = &digestWriter{ResponseWriter: ctx.Writer}
		ctx.Next()
	}
}
