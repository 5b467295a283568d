package metrics

import "time"

type ExporterType string

const (
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPHTTP ExporterType = "otlphttp"
	ExporterOTLPGRPC ExporterType = "otlpgrpc"
)

type Config struct {
	Enabled  bool           `conf:"enabled" yaml:"enabled" json:"enabled"`
	Exporter ExporterConfig `conf:"exporter" yaml:"exporter" json:"exporter"`
}

type ExporterConfig struct {
	Type     ExporterType `conf:"type" yaml:"type" json:"type"`
	Endpoint string       `conf:"endpoint" yaml:"endpoint" json:"endpoint"`
	Insecure bool         `conf:"insecure" yaml:"insecure" json:"insecure"`

	// Interval is the export period. Defaults to 60s.
	Interval time.Duration `conf:"interval" yaml:"interval" json:"interval"`
}
