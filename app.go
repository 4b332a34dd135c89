package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okieraised/thermostat-alerts/internal/alerting/chart"
	"github.com/okieraised/thermostat-alerts/internal/alerting/evaluator"
	"github.com/okieraised/thermostat-alerts/internal/alerting/gate"
	"github.com/okieraised/thermostat-alerts/internal/alerting/sweep"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/database"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/local_cache"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/metrics"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/mqtt_client"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/redis_client"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/s3_client"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/tracer_client"
	"github.com/okieraised/thermostat-alerts/internal/notification"
	"github.com/okieraised/thermostat-alerts/internal/repository"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/routers"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"gorm.io/gorm"
)

// app holds the wired components shared by every command.
type app struct {
	db         *gorm.DB
	health     *health.Server
	sweeper    *sweep.Sweeper
	dispatcher *notification.Dispatcher
	routes     func(engine *gin.Engine)
	closers    []func()
	// localQueue is set when mail is queued in process and must be drained
	// before a one-shot command exits.
	localQueue bool
}

func location() (*time.Location, error) {
	tz := config.String(config.ServiceTimezone, "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid service timezone %q", tz)
	}
	return loc, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) migrate() error {
	log.Default().Info("Migrating database schema")
	return repository.Migrate(a.db)
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{health: health.NewServer()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := location()
	if err != nil {
		return nil, err
	}

	if viper.GetBool(config.ServiceEnableTracing) {
		log.Default().Info("Started initializing OTEL tracer")
		shutdown, err := tracer_client.NewTracerClient(tracer_client.OptionsFromConfig()...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize OTEL tracer")
		}
		a.onClose(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		})
	}

	log.Default().Info("Started initializing database connection")
	err = database.NewDatabaseClient(
		database.WithDriver(config.String(config.DatabaseDriver, constants.DefaultDatabaseDriver)),
		database.WithDSN(config.String(config.DatabaseDSN, constants.DefaultDatabaseDSN)),
		database.WithPool(
			config.Int(config.DatabaseMaxOpenConns, constants.DefaultDatabaseMaxOpen),
			config.Int(config.DatabaseMaxIdleConns, constants.DefaultDatabaseMaxIdle),
			config.Duration(config.DatabaseConnMaxLifetime, constants.DefaultDatabaseMaxLifetime),
		),
		database.WithLogLevel(viper.GetString(config.DatabaseLogLevel)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database connection")
	}
	a.db = database.Client()
	a.onClose(func() { _ = database.Close() })
	if config.Bool(config.DatabaseAutoMigrate, false) {
		if err := a.migrate(); err != nil {
			return nil, err
		}
	}

	if err := local_cache.NewLocalCache(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize local cache")
	}
	a.onClose(func() { local_cache.Cache().Close() })

	subs := repository.NewSubscriptionRepo(a.db)
	users := repository.NewUserRepo(a.db)
	logs := repository.NewAlertLogRepo(a.db)
	telemetry := repository.NewTelemetryRepo(a.db,
		repository.WithRelayCache(local_cache.Cache(), config.Duration(config.CacheRelayTTL, constants.DefaultRelayCacheTTL)),
	)
	m := metrics.Default()

	queue, popTimeout, err := a.newQueue(ctx)
	if err != nil {
		return nil, err
	}

	dispatcherOpts := []notification.Option{
		notification.WithWorkers(config.Int(config.MailWorkers, constants.DefaultMailWorkers)),
		notification.WithRetry(
			config.Int(config.MailMaxAttempts, constants.DefaultMailMaxAttempts),
			config.Duration(config.MailBackoffInitial, constants.DefaultMailBackoffInitial),
			config.Duration(config.MailBackoffMax, constants.DefaultMailBackoffMax),
		),
		notification.WithMetrics(m),
		notification.WithPopTimeout(popTimeout),
	}
	if viper.GetBool(config.ServiceEnableRedis) {
		dispatcherOpts = append(dispatcherOpts,
			notification.WithRecoverInterval(config.Duration(config.RedisLeaseTTL, constants.DefaultRedisLeaseTTL)))
	}
	if viper.GetBool(config.ServiceEnableMQTT) {
		publisher, err := a.newPublisher()
		if err != nil {
			return nil, err
		}
		dispatcherOpts = append(dispatcherOpts, notification.WithPublisher(publisher))
	}

	sender := notification.NewSMTPSender(
		viper.GetString(config.MailSMTPHost),
		viper.GetInt(config.MailSMTPPort),
		viper.GetString(config.MailFrom),
		notification.WithSMTPAuth(viper.GetString(config.MailUsername), viper.GetString(config.MailPassword)),
	)
	renderer := notification.NewRenderer(
		config.String(config.MailAppName, constants.DefaultMailAppName),
		viper.GetString(config.MailDashboardURL),
		loc,
	)
	a.dispatcher = notification.NewDispatcher(queue, sender, renderer, logs, dispatcherOpts...)

	a.localQueue = !viper.GetBool(config.ServiceEnableRedis)

	gateOpts := []gate.Option{gate.WithMetrics(m)}
	if viper.GetBool(config.ServiceEnableS3) {
		bucket, err := a.newBucket(ctx)
		if err != nil {
			return nil, err
		}
		gateOpts = append(gateOpts, gate.WithDecorator(chart.NewDecorator(telemetry, bucket,
			chart.WithPrefix(config.String(config.S3ChartPrefix, constants.S3DefaultChartPrefix)),
			chart.WithLocation(loc),
		)))
	}
	g := gate.New(logs, a.dispatcher, gateOpts...)

	a.sweeper = sweep.New(subs, evaluator.New(telemetry, evaluator.WithLocation(loc)), g,
		sweep.WithMetrics(m),
		sweep.WithHealth(a.health),
	)

	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql handle")
	}

	v1 := routers.NewV1RestState()
	v1.SetHealthcheckService(restful.NewHealthcheckService(sqlDB, a.sweeper))
	v1.SetSubscriptionService(restful.NewSubscriptionService(subs, users, logs, telemetry, g, a.dispatcher))
	v1.SetSweepService(restful.NewSweepService(a.sweeper))

	state := routers.NewAppState()
	state.SetV1RestState(v1)
	state.SetUserLookup(users)
	a.routes = routers.NewRootRouter(state).InitRouters

	ok = true
	return a, nil
}

// newQueue picks the redis-backed queue when enabled so that claimed jobs
// survive a restart, and an in-process queue otherwise.
func (a *app) newQueue(ctx context.Context) (notification.Queue, time.Duration, error) {
	popTimeout := config.Duration(config.RedisPopTimeout, constants.DefaultRedisPopTimeout)
	if !viper.GetBool(config.ServiceEnableRedis) {
		return notification.NewMemoryQueue(config.Int(config.MailQueueSize, constants.DefaultMailQueueSize)), popTimeout, nil
	}

	log.Default().Info("Started initializing client connection to Redis")
	err := redis_client.NewRedisClient(ctx,
		redis_client.WithAddr(viper.GetString(config.RedisAddr)),
		redis_client.WithPassword(viper.GetString(config.RedisPassword)),
		redis_client.WithDB(viper.GetInt(config.RedisDB)),
		redis_client.WithReadTimeout(popTimeout+5*time.Second),
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to initialize client connection to Redis")
	}
	a.onClose(func() { _ = redis_client.Close() })
	return notification.NewRedisQueue(
		redis_client.Client(),
		config.String(config.RedisQueueKey, constants.DefaultRedisQueueKey),
		config.String(config.RedisConsumer, consumerName()),
		notification.WithLeaseTTL(config.Duration(config.RedisLeaseTTL, constants.DefaultRedisLeaseTTL)),
	), popTimeout, nil
}

// consumerName identifies this replica on the shared queue. The hostname is
// stable across restarts of the same pod or host.
func consumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func (a *app) newPublisher() (*notification.MQTTPublisher, error) {
	log.Default().Info("Started initializing client connection to MQTT broker")
	clientID := config.String(config.MqttClientId, fmt.Sprintf("%s-%d", constants.DefaultServiceName, time.Now().UnixNano()))
	client, err := mqtt_client.NewMQTTClient(viper.GetString(config.MqttEndpoint), clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize client connection to MQTT broker")
	}
	a.onClose(func() { mqtt_client.Close(250 * time.Millisecond) })

	qos := 1
	if viper.IsSet(config.MqttQoS) {
		qos = viper.GetInt(config.MqttQoS)
	}
	if qos < 0 || qos > 2 {
		log.Default().Warn("Invalid MQTT QoS, using 1", zap.Int("qos", qos))
		qos = 1
	}
	return notification.NewMQTTPublisher(
		client,
		config.String(config.MqttAlertTopicPrefix, constants.MqttDefaultAlertTopicPrefix),
		byte(qos),
		config.Duration(config.MqttWriteTimeout, constants.MqttDefaultWriteTimeout),
	), nil
}

func (a *app) newBucket(ctx context.Context) (*s3_client.Bucket, error) {
	log.Default().Info("Started initializing client connection to external S3 storage")
	name := viper.GetString(config.S3Bucket)
	if name == "" {
		return nil, errors.New("s3.bucket is required when S3 is enabled")
	}
	if err := s3_client.NewS3Client(ctx, s3_client.OptionsFromConfig()...); err != nil {
		return nil, errors.Wrap(err, "failed to initialize client connection to external S3 storage")
	}
	return s3_client.NewBucket(
		s3_client.Client(),
		name,
		viper.GetString(config.S3PublicBaseURL),
		config.Duration(config.S3PresignTTL, constants.S3DefaultPresignTTL),
	), nil
}
