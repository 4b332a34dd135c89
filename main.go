package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/server/grpc_server"
	"github.com/okieraised/thermostat-alerts/internal/server/monitoring"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func mirrorEnvCase() {
	for _, kv := range os.Environ() {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		k, v := kv[:i], kv[i+1:]
		_ = os.Setenv(strings.ToUpper(k), v)
		_ = os.Setenv(strings.ToLower(k), v)
	}
}

func loadDotenvIfExists(filename string, overload bool) (bool, error) {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if overload {
		return true, godotenv.Overload(filename)
	}
	return true, godotenv.Load(filename)
}

func readConfigIfExists(path string, merge bool) (bool, error) {
	viper.SetConfigFile(path)
	var err error
	if merge {
		err = viper.MergeInConfig()
	} else {
		err = viper.ReadInConfig()
	}
	if err == nil {
		return true, nil
	}
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) || os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func detectProfile() string {
	for _, k := range []string{"APP_ENV", "app_env"} {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return strings.ToLower(v)
		}
	}
	return "dev"
}

// Load layers .env, .{profile}.env, conf/config.toml and
// conf/{profile}.config.toml, then lets SECTION__KEY environment variables
// override any key.
func Load() error {
	envFound, err := loadDotenvIfExists(".env", false)
	if err != nil {
		return err
	}
	profile := detectProfile()

	pfFound, err := loadDotenvIfExists("."+profile+".env", true)
	if err != nil {
		return err
	}
	if envFound || pfFound {
		mirrorEnvCase()
	}

	cfgFound, err := readConfigIfExists("conf/config.toml", false)
	if err != nil {
		return err
	}
	if !envFound && !cfgFound {
		return errors.New("no configuration sources found: missing both .env and conf/config.toml")
	}
	if _, err := readConfigIfExists("conf/"+profile+".config.toml", true); err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()
	return nil
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "usage: %s [serve|sweep|migrate]\n", os.Args[0])
}

func main() {
	if err := Load(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to setup service configuration: %v\n", err)
		os.Exit(1)
	}
	log.MustInitDefault()
	defer func() { _ = log.Sync() }()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "sweep":
		err = sweepOnce()
	case "migrate":
		err = migrate()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Default().Error("Exiting with error", zap.String("command", cmd), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// sweepOnce runs a single sweep, for use from an external scheduler.
func sweepOnce() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.sweeper.RunSweep(ctx)
	if err != nil {
		return err
	}
	log.Default().Info("Sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("triggered", stats.Triggered),
		zap.Int("resolved", stats.Resolved),
		zap.Int("failed", stats.Failed),
	)
	if !app.localQueue {
		// the serving process delivers from the shared redis queue
		return nil
	}
	return app.dispatcher.Drain(ctx)
}

func migrate() error {
	app, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()
	return app.migrate()
}

func serve() error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	parentCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(parentCtx)
	if err != nil {
		return err
	}
	defer app.Close()

	g, ctx := errgroup.WithContext(parentCtx)

	g.Go(func() error {
		if err := grpc_server.NewGRPCServer(ctx, app.health); err != nil {
			return err
		}
		return ctx.Err()
	})

	g.Go(func() error {
		if viper.GetBool(config.ServiceEnableMonitoring) {
			if err := monitoring.NewMonitoringServer(ctx); err != nil {
				return err
			}
		}
		return ctx.Err()
	})

	g.Go(func() error {
		if err := rest_server.NewHTTPServer(ctx, app.routes); err != nil {
			return err
		}
		return ctx.Err()
	})

	g.Go(func() error {
		return app.dispatcher.Run(ctx)
	})

	g.Go(func() error {
		if !config.Bool(config.SweepEnabled, true) {
			log.Default().Info("Periodic sweep disabled")
			<-ctx.Done()
			return ctx.Err()
		}
		return app.sweeper.Run(ctx, config.Duration(config.SweepInterval, constants.DefaultSweepInterval))
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case sig := <-sigCh:
		log.Default().Info(fmt.Sprintf("Signal received: %v", sig))
		cancel()
		select {
		case <-done:
			log.Default().Info("All tasks exited, shutting down")
		case sig2 := <-sigCh:
			log.Default().Info(fmt.Sprintf("Second signal received: %v", sig2))
		case <-time.After(constants.GraceWaitPeriod):
			log.Default().Info("Grace period timed out, forcing exit")
		}
		return nil
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return errors.Wrap(err, "services finished early")
	}
}
