package rest_server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/middlewares"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const shutdownGrace = 5 * time.Second

func getHTTPPort() int {
	port := viper.GetInt(config.ServiceHTTPPort)
	if port <= 0 {
		return constants.DefaultHTTPPort
	}
	return port
}

func getHTTPRequestTimeout() time.Duration {
	timeout := constants.DefaultHTTPRequestTimeout
	if viper.GetInt(config.ServiceHTTPRequestTimeout) > 0 {
		timeout = viper.GetInt(config.ServiceHTTPRequestTimeout)
	}
	return time.Duration(timeout) * time.Second
}

// NewEngine builds the gin engine with the middleware chain installed ahead of
// the routes registerRoutes adds.
func NewEngine(registerRoutes func(engine *gin.Engine)) *gin.Engine {
	if mode := viper.GetString(config.ServiceHTTPMode); mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoRoute(middlewares.NoRouteMW())
	router.NoMethod(middlewares.NoMethodMW())

	router.Use(
		middlewares.RecoveryMW(),
		middlewares.RequestIDMW(),
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodPost, http.MethodPatch, http.MethodGet, http.MethodDelete},
			AllowHeaders: []string{constants.HeaderOrigin, constants.HeaderAccept, constants.HeaderContentType,
				constants.HeaderAuthorization, constants.HeaderXUserID, constants.HeaderXRequestID},
			ExposeHeaders: []string{constants.HeaderContentLength, constants.HeaderContentDigest, constants.HeaderXRequestID},
		}),
		middlewares.RequestLoggingMW(log.Default().Named("http").Logger),
		middlewares.RequestTimeoutMW(getHTTPRequestTimeout()),
		gzip.Gzip(gzip.DefaultCompression),
		middlewares.ResponseHashMW(),
	)
	if viper.GetBool(config.ServiceEnableTracing) {
		router.Use(otelgin.Middleware(viper.GetString(config.ServiceName)))
	}

	if registerRoutes != nil {
		registerRoutes(router)
	}
	return router
}

func NewHTTPServer(ctx context.Context, registerRoutes func(engine *gin.Engine)) error {
	log.Default().Info("Initializing HTTP server")

	serverAddr := fmt.Sprintf("0.0.0.0:%d", getHTTPPort())
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           NewEngine(registerRoutes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	certFile := viper.GetString(config.ServiceTLSCertFile)
	keyFile := viper.GetString(config.ServiceTLSKeyFile)
	useTLS := certFile != "" && keyFile != ""
	if useTLS {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Default().Info(fmt.Sprintf("HTTP server listening on %s", serverAddr))

	select {
	case <-ctx.Done():
		log.Default().Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Default().Info("Graceful stop timed out, forcing shutdown")
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		return errors.Wrap(err, "failed to start HTTP server")
	}
}
