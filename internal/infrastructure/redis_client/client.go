package redis_client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Option func(*Options)

func WithAddr(addr string) Option {
	return func(o *Options) { o.Addr = addr }
}

func WithPassword(password string) Option {
	return func(o *Options) { o.Password = password }
}

func WithDB(db int) Option {
	return func(o *Options) { o.DB = db }
}

// WithReadTimeout must exceed any blocking pop timeout used on the client.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout = d }
}

func defaultOptions() Options {
	return Options{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

var (
	once   sync.Once
	client *redis.Client
)

// New builds a client and verifies the server answers.
func New(ctx context.Context, opts ...Option) (*redis.Client, error) {
	conf := defaultOptions()
	for _, fn := range opts {
		fn(&conf)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  conf.DialTimeout,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, conf.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// NewRedisClient initializes the process-wide client.
func NewRedisClient(ctx context.Context, opts ...Option) error {
	var err error
	once.Do(func() {
		client, err = New(ctx, opts...)
	})
	return err
}

func Client() *redis.Client {
	if client == nil {
		panic("redis client not initialized; call NewRedisClient first")
	}
	return client
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
