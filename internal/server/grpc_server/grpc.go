package grpc_server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

func getGRPCPort() int {
	port := viper.GetInt(config.ServiceGRPCPort)
	if port <= 0 {
		return constants.DefaultGRPCPort
	}
	return port
}

// interceptorLogger adapts the zap logger to the go-grpc-middleware logging
// interface.
func interceptorLogger(l *log.Logger) logging.Logger {
	return logging.LoggerFunc(func(_ context.Context, lvl logging.Level, msg string, fields ...any) {
		zf := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			zf = append(zf, zap.Any(key, fields[i+1]))
		}
		switch lvl {
		case logging.LevelDebug:
			l.Debug(msg, zf...)
		case logging.LevelWarn:
			l.Warn(msg, zf...)
		case logging.LevelError:
			l.Error(msg, zf...)
		default:
			l.Info(msg, zf...)
		}
	})
}

func recoveryHandler(p any) error {
	log.Default().Named("grpc").Error(fmt.Sprintf("panic recovered: %v", p))
	return status.Error(codes.Internal, "internal server error")
}

func serverTLS() (*tls.Config, error) {
	certFile := viper.GetString(config.ServiceTLSCertFile)
	keyFile := viper.GetString(config.ServiceTLSKeyFile)
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load server cert file")
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if caFile := viper.GetString(config.ServiceTLSClientCAFile); caFile != "" {
		caBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read client CA file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("failed to append client CA to pool")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

// NewServer builds the gRPC server with the health service registered on hs.
func NewServer(hs *health.Server) (*grpc.Server, error) {
	lg := interceptorLogger(log.Default().Named("grpc"))
	loggingOpts := []logging.Option{logging.WithLogOnEvents(logging.FinishCall)}

	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      2 * time.Hour,
			MaxConnectionAgeGrace: 30 * time.Second,
			Time:                  2 * time.Minute,
			Timeout:               20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             1 * time.Minute,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(recoveryHandler)),
			logging.UnaryServerInterceptor(lg, loggingOpts...),
		),
		grpc.ChainStreamInterceptor(
			grpc_recovery.StreamServerInterceptor(grpc_recovery.WithRecoveryHandler(recoveryHandler)),
			logging.StreamServerInterceptor(lg, loggingOpts...),
		),
	}

	tlsCfg, err := serverTLS()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)
	return grpcServer, nil
}

// NewGRPCServer serves health checks until ctx is done, then graceful-stops.
func NewGRPCServer(ctx context.Context, hs *health.Server) error {
	log.Default().Info("Initializing gRPC server")

	grpcServer, err := NewServer(hs)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", getGRPCPort()))
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Default().Info("Starting gRPC server")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Default().Info("Shutting down gRPC server")
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		t := time.NewTimer(3 * time.Second)
		defer t.Stop()
		select {
		case <-stopped:
		case <-t.C:
			log.Default().Info("Graceful stop timed out, forcing shutdown")
			grpcServer.Stop()
		}
		return nil
	case err = <-errCh:
		return errors.Wrap(err, "failed to start gRPC server")
	}
}
