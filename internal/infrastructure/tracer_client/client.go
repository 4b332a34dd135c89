package tracer_client

import (
	"context"
	"sync"
	"time"

	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

var (
	tp   *sdktrace.TracerProvider
	mu   sync.RWMutex
	once sync.Once
)

type Options struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Namespace   string
	SampleRatio float64
	Timeout     time.Duration
}

type Option func(*Options)

func WithEndpoint(ep string) Option {
	return func(o *Options) { o.Endpoint = ep }
}

func WithInsecure(insecure bool) Option {
	return func(o *Options) { o.Insecure = insecure }
}

func WithServiceName(name string) Option {
	return func(o *Options) { o.ServiceName = name }
}

func WithNamespace(ns string) Option {
	return func(o *Options) { o.Namespace = ns }
}

// WithSampleRatio sets the root sampling ratio, clamped to [0, 1].
func WithSampleRatio(r float64) Option {
	return func(o *Options) { o.SampleRatio = r }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// OptionsFromConfig maps the tracing.* and service.name keys to options.
func OptionsFromConfig() []Option {
	name := viper.GetString(config.ServiceName)
	if name == "" {
		name = constants.DefaultServiceName
	}
	ratio := 1.0
	if viper.IsSet(config.TracingSampleRatio) {
		ratio = viper.GetFloat64(config.TracingSampleRatio)
	}
	return []Option{
		WithEndpoint(viper.GetString(config.TracingEndpoint)),
		WithInsecure(viper.GetBool(config.TracingInsecure)),
		WithNamespace(viper.GetString(config.TracingNamespace)),
		WithServiceName(name),
		WithSampleRatio(ratio),
	}
}

func buildOptions(opts ...Option) Options {
	opt := Options{SampleRatio: 1}
	for _, o := range opts {
		o(&opt)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	switch {
	case opt.SampleRatio < 0:
		opt.SampleRatio = 0
	case opt.SampleRatio > 1:
		opt.SampleRatio = 1
	}
	return opt
}

// NewTracerClient installs an OTLP/gRPC tracer provider as the global one and
// returns its shutdown func.
func NewTracerClient(opts ...Option) (func(ctx context.Context) error, error) {
	var initErr error
	once.Do(func() {
		opt := buildOptions(opts...)
		if opt.Endpoint == "" {
			initErr = errors.New("tracing endpoint is required")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), opt.Timeout)
		defer cancel()

		grpcOpts := []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
		}
		if opt.Insecure {
			grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}

		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(opt.Endpoint),
			otlptracegrpc.WithDialOption(grpcOpts...),
		))
		if err != nil {
			initErr = errors.Wrap(err, "create otlp trace exporter")
			return
		}

		attrs := []resource.Option{
			resource.WithFromEnv(),
			resource.WithProcess(),
			resource.WithTelemetrySDK(),
			resource.WithHost(),
			resource.WithAttributes(semconv.ServiceName(opt.ServiceName)),
		}
		if opt.Namespace != "" {
			attrs = append(attrs, resource.WithAttributes(semconv.ServiceNamespace(opt.Namespace)))
		}
		res, err := resource.New(ctx, attrs...)
		if err != nil {
			initErr = errors.Wrap(err, "create resource")
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opt.SampleRatio))),
			sdktrace.WithBatcher(
				exp,
				sdktrace.WithBatchTimeout(5*time.Second),
				sdktrace.WithExportTimeout(10*time.Second),
			),
		)

		mu.Lock()
		tp = provider
		mu.Unlock()

		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			),
		)
	})

	if initErr != nil {
		return nil, initErr
	}
	return Shutdown, nil
}

// Tracer returns a tracer from the installed provider, or the global no-op
// one when tracing is off.
func Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	mu.RLock()
	provider := tp
	mu.RUnlock()
	if provider == nil {
		return otel.Tracer(name, opts...)
	}
	return provider.Tracer(name, opts...)
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	provider := tp
	tp = nil
	mu.Unlock()
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
