package middlewares

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/cerrors"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type users map[uint]*models.User

func (u users) GetByID(_ context.Context, id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func serve(engine *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDMW(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestIDMW())
	engine.GET("/", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, ctx.GetString(constants.APIFieldRequestID))
	})

	rec := serve(engine, http.MethodGet, "/", http.Header{constants.HeaderXRequestID: {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get(constants.HeaderXRequestID))
	assert.Equal(t, "abc-123", rec.Body.String())

	rec = serve(engine, http.MethodGet, "/", http.Header{constants.HeaderXRequestID: {strings.Repeat("x", 200)}})
	minted := rec.Header().Get(constants.HeaderXRequestID)
	assert.Len(t, minted, 36)
	assert.Equal(t, minted, rec.Body.String())
}

func TestResponseHashMW(t *testing.T) {
	engine := gin.New()
	engine.Use(ResponseHashMW())
	engine.GET("/", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello")
	})

	rec := serve(engine, http.MethodGet, "/", nil)
	sum := sha256.Sum256([]byte("hello"))
	assert.Equal(t, "sha-256=:"+base64.StdEncoding.EncodeToString(sum[:])+":", rec.Header().Get(constants.HeaderContentDigest))
}

func TestRecoveryMW(t *testing.T) {
	engine := gin.New()
	engine.Use(RecoveryMW())
	engine.GET("/", func(ctx *gin.Context) {
		panic("secret detail")
	})

	rec := serve(engine, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), cerrors.ErrGenericInternalServer.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestRequestTimeoutMW(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestTimeoutMW(20 * time.Millisecond))
	engine.GET("/slow", func(ctx *gin.Context) {
		<-ctx.Request.Context().Done()
	})
	engine.GET("/fast", func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})

	rec := serve(engine, http.MethodGet, "/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), cerrors.ErrGenericRequestTimedOut.Code)

	rec = serve(engine, http.MethodGet, "/fast", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNotFoundMW(t *testing.T) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(NoRouteMW())
	engine.NoMethod(NoMethodMW())
	engine.GET("/only-get", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	rec := serve(engine, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(engine, http.MethodPost, "/only-get", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "method POST not allowed")
}

func TestAuthMW(t *testing.T) {
	engine := gin.New()
	engine.Use(AuthMW(users{5: {ID: 5, Name: "ana"}}))
	engine.GET("/", func(ctx *gin.Context) {
		user, ok := CurrentUser(ctx)
		require.True(t, ok)
		ctx.String(http.StatusOK, user.Name)
	})

	cases := []struct {
		header string
		status int
		code   string
	}{
		{"", http.StatusUnauthorized, cerrors.ErrMissingAuthenticationHeader.Code},
		{"abc", http.StatusUnauthorized, cerrors.ErrInvalidAuthenticationHeader.Code},
		{"0", http.StatusUnauthorized, cerrors.ErrInvalidAuthenticationHeader.Code},
		{"9", http.StatusUnauthorized, cerrors.ErrInvalidAuthenticationHeader.Code},
	}
	for _, tc := range cases {
		rec := serve(engine, http.MethodGet, "/", http.Header{constants.HeaderXUserID: {tc.header}})
		assert.Equal(t, tc.status, rec.Code, tc.header)
		assert.Contains(t, rec.Body.String(), tc.code, tc.header)
	}

	rec := serve(engine, http.MethodGet, "/", http.Header{constants.HeaderXUserID: {" 5 "}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", rec.Body.String())
}
