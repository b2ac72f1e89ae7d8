package telemetry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	DefaultServiceName = "admitkit"

	// InstrumentationName names the tracer that records admission spans.
	InstrumentationName = "github.com/vinayprograms/admitkit/admission"

	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

var errNoEndpoint = errors.New("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")

// ProviderConfig selects where admission spans are exported. Empty fields
// fall back to the standard OTEL_ environment variables.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is host:port, or a URL whose scheme picks TLS ("http" means
	// insecure).
	Endpoint string
	Protocol string
	Insecure bool

	// SampleRatio in (0, 1) samples that fraction of requests; anything else
	// samples every request.
	SampleRatio float64

	BatchTimeout  time.Duration
	ExportTimeout time.Duration
}

func (c ProviderConfig) resolve() (ProviderConfig, error) {
	c.Endpoint = cmp.Or(c.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if c.Endpoint == "" {
		return c, errNoEndpoint
	}
	if u, err := url.Parse(c.Endpoint); err == nil && u.Host != "" {
		c.Endpoint = u.Host
		c.Insecure = c.Insecure || u.Scheme == "http"
	}

	c.ServiceName = cmp.Or(c.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), DefaultServiceName)

	c.Protocol = strings.ToLower(cmp.Or(c.Protocol, ProtocolGRPC))
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return c, fmt.Errorf("unknown telemetry protocol %q (use %q or %q)", c.Protocol, ProtocolGRPC, ProtocolHTTP)
	}
	return c, nil
}

func (c ProviderConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio > 0 && c.SampleRatio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
	return sdktrace.AlwaysSample()
}

// Provider owns the SDK tracer provider behind the admission tracer. Its
// OnShutdown flushes buffered spans, so it registers directly with a
// shutdown coordinator.
type Provider struct {
	cfg    ProviderConfig
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider builds an OTLP exporting provider, installs it as the otel
// global and as the tracer returned by GetTracer.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry exporter %s: %w", cfg.Protocol, err)
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p := &Provider{cfg: cfg, tp: tp, tracer: NewTracerFromProvider(tp, InstrumentationName)}
	SetGlobalTracer(p.tracer)
	return p, nil
}

func newExporter(ctx context.Context, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Tracer returns the admission tracer backed by this provider.
func (p *Provider) Tracer() *Tracer { return p.tracer }

// Config returns the configuration after environment fallbacks.
func (p *Provider) Config() ProviderConfig { return p.cfg }

// ForceFlush exports every span ended so far.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}

// OnShutdown flushes and stops the provider. The global tracer reverts to
// a no-op so controllers built afterwards do not export through a closed
// exporter.
func (p *Provider) OnShutdown(ctx context.Context) error {
	if GetTracer() == p.tracer {
		SetGlobalTracer(nil)
	}
	return p.tp.Shutdown(ctx)
}
