package otelcol

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"keywarden/pkg/config"
	"keywarden/pkg/otelcol/exporters"
)

var Module = fx.Module("otelcol", fx.Invoke(Register))

// ProvideTrace assembles a TracerProvider that batches spans into the given
// exporter and stamps them with the service identity.
func ProvideTrace(cfg *config.Config, exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(cfg.AppVersion),
		),
	)
	if err != nil {
		res = resource.Default()
	}

	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	return sdktrace.NewTracerProvider(opts...)
}

// Register installs the global TracerProvider and flushes it on shutdown.
// Without OTEL.ENABLE the global stays the no-op provider and every span in
// the process is a no-op.
func Register(lc fx.Lifecycle, cfg *config.Config) error {
	if !cfg.Otel.Enable {
		zap.L().Info("[Otel] trace export disabled")
		return nil
	}

	exporter, err := exporters.ProvideHttp(cfg)
	if err != nil {
		zap.L().Error("[Otel] failed to build trace exporter", zap.Error(err))
		return err
	}

	tp := ProvideTrace(cfg, exporter)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	zap.L().Info("[Otel] trace export enabled", zap.String("endpoint", cfg.Otel.Endpoint))
	return nil
}
