package constants

import "time"

const (
	DefaultServiceName    = "thermostat-alerts"
	DefaultHTTPPort       = 8080
	DefaultGRPCPort       = 7070
	DefaultMonitoringPort = 6060
)

const (
	DefaultHTTPRequestTimeout = 10
	GraceWaitPeriod           = 10 * time.Second
)

const (
	DefaultDatabaseDriver      = "sqlite"
	DefaultDatabaseDSN         = "file:thermostat.db?_foreign_keys=on"
	DefaultDatabaseMaxOpen     = 10
	DefaultDatabaseMaxIdle     = 5
	DefaultDatabaseMaxLifetime = 30 * time.Minute
)

const (
	DefaultSweepInterval = time.Minute
)

const (
	DefaultMailWorkers        = 2
	DefaultMailMaxAttempts    = 5
	DefaultMailBackoffInitial = 2 * time.Second
	DefaultMailBackoffMax     = 2 * time.Minute
	DefaultMailQueueSize      = 1024
	DefaultMailAppName        = "Thermostat"
)

const (
	DefaultRedisQueueKey   = "thermostat:alerts:mail"
	DefaultRedisPopTimeout = 5 * time.Second
	DefaultRedisLeaseTTL   = 5 * time.Minute
)

const (
	MqttDefaultWriteTimeout         = 10 * time.Second
	MqttDefaultKeepAlive            = 30 * time.Second
	MqttDefaultPingTimeout          = 5 * time.Second
	MqttDefaultMaxReconnectInterval = 30 * time.Second
	MqttDefaultConnectTimeout       = 10 * time.Second
	MqttDefaultConnectRetryInterval = 10 * time.Second
	MqttDefaultAlertTopicPrefix     = "thermostat/alerts"
)

const (
	S3DefaultChartPrefix = "charts"
	S3DefaultPresignTTL  = 7 * 24 * time.Hour
)

const (
	DefaultRelayCacheTTL = time.Minute
)
