package mqtt_client

import (
	"crypto/tls"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/okieraised/thermostat-alerts/internal/infrastructure/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func isSecureScheme(u string) bool {
	s := strings.ToLower(u)
	return strings.HasPrefix(s, "mqtts://") || strings.HasPrefix(s, "ssl://") ||
		strings.HasPrefix(s, "tls://") || strings.HasPrefix(s, "wss://")
}

// Options covers the connection settings of a publish-only client.
type Options struct {
	Username             string
	Password             string
	CleanSession         bool
	AutoReconnect        bool
	ConnectRetry         bool
	TLSInsecureSkip      bool
	WriteTimeout         time.Duration
	KeepAlive            time.Duration
	PingTimeout          time.Duration
	MaxReconnectInterval time.Duration
	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration
	TLSConfig            *tls.Config
}

type Option func(*Options)

func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

func WithCleanSession(v bool) Option {
	return func(o *Options) { o.CleanSession = v }
}

func WithAutoReconnect(v bool) Option {
	return func(o *Options) { o.AutoReconnect = v }
}

func WithConnectRetry(v bool) Option {
	return func(o *Options) { o.ConnectRetry = v }
}

func WithTLSInsecureSkipVerify(v bool) Option {
	return func(o *Options) { o.TLSInsecureSkip = v }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.WriteTimeout = d }
}

func WithKeepAlive(d time.Duration) Option {
	return func(o *Options) { o.KeepAlive = d }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}

func defaultOptionsFromViper() Options {
	return Options{
		Username:             viper.GetString(config.MqttUsername),
		Password:             viper.GetString(config.MqttPassword),
		CleanSession:         config.Bool(config.MqttCleanSession, true),
		AutoReconnect:        config.Bool(config.MqttAutoReconnect, true),
		ConnectRetry:         config.Bool(config.MqttConnectRetry, true),
		TLSInsecureSkip:      config.Bool(config.MqttTLSInsecureSkipVerify, false),
		WriteTimeout:         config.Duration(config.MqttWriteTimeout, constants.MqttDefaultWriteTimeout),
		KeepAlive:            config.Duration(config.MqttKeepAliveDuration, constants.MqttDefaultKeepAlive),
		PingTimeout:          config.Duration(config.MqttPingTimeout, constants.MqttDefaultPingTimeout),
		MaxReconnectInterval: config.Duration(config.MqttMaxConnectInterval, constants.MqttDefaultMaxReconnectInterval),
		ConnectTimeout:       config.Duration(config.MqttConnectTimeout, constants.MqttDefaultConnectTimeout),
		ConnectRetryInterval: config.Duration(config.MqttConnectRetryInterval, constants.MqttDefaultConnectRetryInterval),
	}
}

// clientOptions translates conf into paho options for endpoint.
func clientOptions(endpoint, clientID string, conf Options) *mqtt.ClientOptions {
	lg := log.Default().Named("mqtt")
	opts := mqtt.NewClientOptions().
		AddBroker(endpoint).
		SetClientID(clientID).
		SetCleanSession(conf.CleanSession).
		SetAutoReconnect(conf.AutoReconnect).
		SetConnectRetry(conf.ConnectRetry).
		SetConnectRetryInterval(conf.ConnectRetryInterval).
		SetMaxReconnectInterval(conf.MaxReconnectInterval).
		SetWriteTimeout(conf.WriteTimeout).
		SetKeepAlive(conf.KeepAlive).
		SetPingTimeout(conf.PingTimeout).
		SetConnectTimeout(conf.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			lg.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			lg.Info("MQTT reconnecting")
		})
	if conf.Username != "" {
		opts.SetUsername(conf.Username).SetPassword(conf.Password)
	}
	if conf.TLSConfig != nil {
		opts.SetTLSConfig(conf.TLSConfig)
	} else if isSecureScheme(endpoint) {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: conf.TLSInsecureSkip, MinVersion: tls.VersionTLS12}) // #nosec G402
	}
	return opts
}

var (
	once    sync.Once
	client  mqtt.Client
	initErr error
)

// NewMQTTClient connects the process-wide publisher client.
func NewMQTTClient(endpoint, clientID string, optFns ...Option) (mqtt.Client, error) {
	once.Do(func() {
		if endpoint == "" {
			initErr = errors.New("mqtt endpoint is required")
			return
		}
		conf := defaultOptionsFromViper()
		for _, fn := range optFns {
			if fn != nil {
				fn(&conf)
			}
		}

		c := mqtt.NewClient(clientOptions(endpoint, clientID, conf))
		tok := c.Connect()
		if !tok.WaitTimeout(conf.ConnectTimeout) {
			initErr = errors.Errorf("mqtt connect timeout after %s", conf.ConnectTimeout)
			return
		}
		if err := tok.Error(); err != nil {
			initErr = errors.Wrap(err, "mqtt connect")
			return
		}
		client = c
	})
	return client, initErr
}

// Close disconnects the client, allowing quiesce for in-flight publishes.
func Close(quiesce time.Duration) {
	if client != nil && client.IsConnected() {
		client.Disconnect(uint(quiesce.Milliseconds()))
	}
}
