package api_response

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okieraised/thermostat-alerts/internal/constants"
)

// Response is the envelope every REST endpoint answers with.
type Response[T any] struct {
	RequestID     string         `json:"request_id"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	ServerTime    int64          `json:"server_time"`
	ServerTimeISO string         `json:"server_time_iso"`
	Count         int            `json:"count,omitempty"`
	Data          T              `json:"data"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// BaseOutput is what services hand back to routers.
type BaseOutput struct {
	Status  int
	Code    string
	Message string
	Data    any
	Count   int
	Meta    map[string]any
}

func New[T any](ctx context.Context) *Response[T] {
	now := time.Now().UTC()
	return &Response[T]{
		RequestID:     requestIDFromContext(ctx),
		ServerTime:    now.Unix(),
		ServerTimeISO: now.Format(time.RFC3339),
	}
}

func (r *Response[T]) WithMetaKV(k string, v any) *Response[T] {
	if r.Meta == nil {
		r.Meta = make(map[string]any)
	}
	r.Meta[k] = v
	return r
}

func (r *Response[T]) WithMeta(m map[string]any) *Response[T] {
	for k, v := range m {
		r.WithMetaKV(k, v)
	}
	return r
}

// Populate fills the envelope in one call. A non-map meta is nested under "meta".
func (r *Response[T]) Populate(code, message string, data T, meta any, count any) *Response[T] {
	r.Code = code
	r.Message = message
	r.Data = data
	switch m := meta.(type) {
	case nil:
	case map[string]any:
		r.WithMeta(m)
	default:
		r.WithMetaKV("meta", m)
	}
	if total, ok := count.(int); ok {
		r.Count = total
	}
	return r
}

// requestIDFromContext reads the id set by the request id middleware. Gin
// contexts resolve string keys through their own key store.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if v := ctx.Value(constants.APIFieldRequestID); v != nil {
		return fmt.Sprint(v)
	}
	return uuid.NewString()
}
