package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"

	sdk "go.opentelemetry.io/otel/sdk/metric"
)

// NewProvider builds the meter provider described by cfg. It returns nil when metrics are disabled.
func NewProvider(cfg Config) (*sdk.MeterProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := newExporter(context.Background(), cfg.Exporter)
	if err != nil {
		return nil, err
	}

	var readerOpts []sdk.PeriodicReaderOption
	if cfg.Exporter.Interval > 0 {
		readerOpts = append(readerOpts, sdk.WithInterval(cfg.Exporter.Interval))
	}

	return sdk.NewMeterProvider(sdk.WithReader(sdk.NewPeriodicReader(exporter, readerOpts...))), nil
}

func newExporter(ctx context.Context, cfg ExporterConfig) (sdk.Exporter, error) {
	switch cfg.Type {
	case "", ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPHTTP:
		var opts []otlpmetrichttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}

		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}

		return otlpmetrichttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlpmetricgrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}

		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}

		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", cfg.Type)
	}
}

// SetupMetrics installs provider as the global meter provider and creates the service instruments.
func SetupMetrics(provider *sdk.MeterProvider, serviceName string) error {
	otel.SetMeterProvider(provider)

	ins, err := NewInstruments(provider.Meter(serviceName))
	if err != nil {
		return err
	}

	global.Store(ins)

	return nil
}
