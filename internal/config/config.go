package config

const (
	ServiceName               = "service.name"
	ServiceTimezone           = "service.timezone"
	ServiceEnableMonitoring   = "service.enable_monitoring"
	ServiceMonitoringPort     = "service.monitoring_port"
	ServiceLogLevel           = "service.log_level"
	ServiceHTTPPort           = "service.http_port"
	ServiceHTTPMode           = "service.http_mode"
	ServiceHTTPRequestTimeout = "service.http_request_timeout"
	ServiceGRPCPort           = "service.grpc_port"
	ServiceTLSCertFile        = "service.tls_cert_file"
	ServiceTLSKeyFile         = "service.tls_key_file"
	ServiceTLSClientCAFile    = "service.tls_client_ca_file"
	ServiceEnableMQTT         = "service.enable_mqtt"
	ServiceEnableTracing      = "service.enable_tracing"
	ServiceEnableS3           = "service.enable_s3"
	ServiceEnableRedis        = "service.enable_redis"
)

const (
	DatabaseDriver          = "database.driver"
	DatabaseDSN             = "database.dsn"
	DatabaseMaxOpenConns    = "database.max_open_conns"
	DatabaseMaxIdleConns    = "database.max_idle_conns"
	DatabaseConnMaxLifetime = "database.conn_max_lifetime"
	DatabaseAutoMigrate     = "database.auto_migrate"
	DatabaseLogLevel        = "database.log_level"
)

const (
	SweepEnabled  = "sweep.enabled"
	SweepInterval = "sweep.interval"
)

const (
	MailSMTPHost       = "mail.smtp_host"
	MailSMTPPort       = "mail.smtp_port"
	MailUsername       = "mail.username"
	MailPassword       = "mail.password"
	MailFrom           = "mail.from"
	MailAppName        = "mail.app_name"
	MailDashboardURL   = "mail.dashboard_url"
	MailWorkers        = "mail.workers"
	MailMaxAttempts    = "mail.max_attempts"
	MailBackoffInitial = "mail.backoff_initial"
	MailBackoffMax     = "mail.backoff_max"
	MailQueueSize      = "mail.queue_size"
)

const (
	RedisAddr       = "redis.addr"
	RedisPassword   = "redis.password"
	RedisDB         = "redis.db"
	RedisQueueKey   = "redis.queue_key"
	RedisPopTimeout = "redis.pop_timeout"
	RedisConsumer   = "redis.consumer"
	RedisLeaseTTL   = "redis.lease_ttl"
)

const (
	MqttEndpoint              = "mqtt.endpoint"
	MqttCleanSession          = "mqtt.clean_session"
	MqttClientId              = "mqtt.client_id"
	MqttUsername              = "mqtt.username"
	MqttPassword              = "mqtt.password"
	MqttAutoReconnect         = "mqtt.auto_reconnect"
	MqttConnectRetry          = "mqtt.connect_retry"
	MqttMaxConnectInterval    = "mqtt.max_connect_interval"
	MqttWriteTimeout          = "mqtt.write_timeout"
	MqttPingTimeout           = "mqtt.ping_timeout"
	MqttKeepAliveDuration     = "mqtt.keep_alive_duration"
	MqttResumeSubs            = "mqtt.resume_subs"
	MqttConnectTimeout        = "mqtt.connect_timeout"
	MqttConnectRetryInterval  = "mqtt.connect_retry_interval"
	MqttTLSInsecureSkipVerify = "mqtt.tls_insecure_skip_verify"
	MqttAlertTopicPrefix      = "mqtt.alert_topic_prefix"
	MqttQoS                   = "mqtt.qos"
)

const (
	S3Region                = "s3.region"
	S3Endpoint              = "s3.endpoint"
	S3AccessKey             = "s3.access_key"
	S3SecretKey             = "s3.secret_key"
	S3UsePathStyle          = "s3.use_path_style"
	S3TLSInsecureSkipVerify = "s3.tls_insecure_skip_verify"
	S3Bucket                = "s3.bucket"
	S3ChartPrefix           = "s3.chart_prefix"
	S3PublicBaseURL         = "s3.public_base_url"
	S3PresignTTL            = "s3.presign_ttl"
)

const (
	TracingEndpoint    = "tracing.endpoint"
	TracingInsecure    = "tracing.insecure"
	TracingNamespace   = "tracing.namespace"
	TracingSampleRatio = "tracing.sample_ratio"
)

const (
	CacheRelayTTL = "cache.relay_ttl"
)
