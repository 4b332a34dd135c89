package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arl/statsviz"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func getMonitoringPort() int {
	port := viper.GetInt(config.ServiceMonitoringPort)
	if port <= 0 {
		return constants.DefaultMonitoringPort
	}
	return port
}

// NewHandler serves /metrics from gatherer and the statsviz dashboard under
// /debug/statsviz.
func NewHandler(gatherer prometheus.Gatherer) (http.Handler, error) {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return nil, errors.Wrap(err, "register statsviz")
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux, nil
}

func NewMonitoringServer(ctx context.Context) error {
	log.Default().Info("Starting monitoring server")
	handler, err := NewHandler(prometheus.DefaultGatherer)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", getMonitoringPort()),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Default().Info("Shutting down monitoring server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return errors.Wrap(err, "failed to start monitoring server")
	}
}
