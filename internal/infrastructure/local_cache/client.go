package local_cache

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

type Options struct {
	NumCounters            int64 // roughly 10x the number of items expected
	MaxCost                int64
	BufferItems            int64
	TtlTickerDurationInSec int64
	Metrics                bool
	OnEvict                func(item *ristretto.Item)
}

type Option func(*Options)

func WithNumCounters(n int64) Option {
	return func(o *Options) {
		o.NumCounters = n
	}
}

func WithMaxCost(c int64) Option {
	return func(o *Options) {
		o.MaxCost = c
	}
}

func WithBufferItems(n int64) Option {
	return func(o *Options) {
		o.BufferItems = n
	}
}

func WithMetrics() Option {
	return func(o *Options) {
		o.Metrics = true
	}
}

func WithOnEvict(f func(item *ristretto.Item)) Option {
	return func(o *Options) {
		o.OnEvict = f
	}
}

func WithTtlTickerDurationInSec(d int64) Option {
	return func(o *Options) {
		o.TtlTickerDurationInSec = d
	}
}

// defaultOptions is sized for per-device lookups, not bulk data.
func defaultOptions() Options {
	return Options{
		NumCounters:            100_000,
		MaxCost:                10_000,
		BufferItems:            64,
		TtlTickerDurationInSec: 5,
	}
}

var (
	once  sync.Once
	cache *ristretto.Cache
)

// New builds an independent cache. Every entry costs 1, so MaxCost is the
// maximum number of entries.
func New(opts ...Option) (*ristretto.Cache, error) {
	conf := defaultOptions()
	for _, fn := range opts {
		fn(&conf)
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:            conf.NumCounters,
		MaxCost:                conf.MaxCost,
		BufferItems:            conf.BufferItems,
		Metrics:                conf.Metrics,
		OnEvict:                conf.OnEvict,
		TtlTickerDurationInSec: conf.TtlTickerDurationInSec,
		IgnoreInternalCost:     true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create local cache")
	}
	return c, nil
}

// NewLocalCache builds the process-wide cache. The first call fixes config.
func NewLocalCache(opts ...Option) error {
	var err error
	once.Do(func() {
		cache, err = New(opts...)
	})
	return err
}

func Cache() *ristretto.Cache {
	if cache == nil {
		panic("local cache not initialized; call NewLocalCache first")
	}
	return cache
}

// GetOrLoad returns the cached value under key, calling load and caching its
// result for ttl on a miss. A nil cache always loads.
func GetOrLoad[T any](c *ristretto.Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if c != nil {
		c.SetWithTTL(key, v, 1, ttl)
	}
	return v, nil
}

// Invalidate drops key from c.
func Invalidate(c *ristretto.Cache, key string) {
	if c != nil {
		c.Del(key)
	}
}
