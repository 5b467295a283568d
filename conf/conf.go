// Package conf loads the service configuration from config.yml and LIFELINE_* environment variables.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/metrics"
	"github.com/looplj/lifeline/internal/pkg/watcher"
	"github.com/looplj/lifeline/internal/server"
	"github.com/looplj/lifeline/internal/server/db"
	"github.com/looplj/lifeline/internal/server/resync"
	"github.com/looplj/lifeline/internal/subscription"
)

const EnvPrefix = "LIFELINE"

type Config struct {
	fx.Out `conf:"-" yaml:"-" json:"-"`

	APIServer    server.Config        `conf:"server" yaml:"server" json:"server"`
	DB           db.Config            `conf:"db" yaml:"db" json:"db"`
	Log          log.Config           `conf:"log" yaml:"log" json:"log"`
	Watcher      watcher.Config       `conf:"watcher" yaml:"watcher" json:"watcher"`
	Subscription subscription.Options `conf:"subscription" yaml:"subscription" json:"subscription"`
	Collections  collections.Options  `conf:"collections" yaml:"collections" json:"collections"`
	Resync       resync.Config        `conf:"resync" yaml:"resync" json:"resync"`
	Metrics      metrics.Config       `conf:"metrics" yaml:"metrics" json:"metrics"`
}

// Load reads config.yml from ".", "./conf" or "/etc/lifeline". A missing file is not an error,
// defaults and environment variables still apply.
func Load() (Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")
	v.AddConfigPath("/etc/lifeline/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads the configuration from path.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	logDefaults := log.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.name", "lifeline")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.trace.trace_header", "LL-Trace-Id")
	v.SetDefault("server.trace.request_header", "LL-Request-Id")
	v.SetDefault("server.api.refresh_rate", 1.0)
	v.SetDefault("server.api.refresh_burst", 2)
	v.SetDefault("server.api.stream_heartbeat", 15*time.Second)
	v.SetDefault("server.api.websocket_origins", []string{})
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "If-None-Match", "LL-Trace-Id"})
	v.SetDefault("server.cors.exposed_headers", []string{"ETag", "LL-Trace-Id", "LL-Request-Id"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 12*time.Hour)

	v.SetDefault("db.dialect", "sqlite")
	v.SetDefault("db.dsn", "file:lifeline.db?_pragma=busy_timeout(5000)")
	v.SetDefault("db.debug", false)

	v.SetDefault("log.name", logDefaults.Name)
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.encoding", logDefaults.Encoding)
	v.SetDefault("log.output", logDefaults.Output)
	v.SetDefault("log.file.path", logDefaults.File.Path)
	v.SetDefault("log.file.max_size_mb", logDefaults.File.MaxSizeMB)
	v.SetDefault("log.file.max_age_days", logDefaults.File.MaxAgeDays)
	v.SetDefault("log.file.max_backups", logDefaults.File.MaxBackups)
	v.SetDefault("log.file.compress", logDefaults.File.Compress)
	v.SetDefault("log.include_stacktrace", false)

	v.SetDefault("watcher.mode", watcher.ModeMemory)
	v.SetDefault("watcher.channel_prefix", "lifeline:changes:")
	v.SetDefault("watcher.buffer", 64)
	v.SetDefault("watcher.redis.addr", "")
	v.SetDefault("watcher.redis.url", "")
	v.SetDefault("watcher.redis.username", "")
	v.SetDefault("watcher.redis.password", "")
	v.SetDefault("watcher.redis.tls", false)
	v.SetDefault("watcher.redis.tls_insecure_skip_verify", false)
	v.SetDefault("watcher.redis.dial_timeout", 5*time.Second)
	v.SetDefault("watcher.redis.ping_timeout", 3*time.Second)

	v.SetDefault("subscription.resubscribe_initial_interval", 500*time.Millisecond)
	v.SetDefault("subscription.resubscribe_max_interval", 30*time.Second)
	v.SetDefault("subscription.resubscribe_max_elapsed", 0)

	v.SetDefault("collections.refresh_timeout", 30*time.Second)

	v.SetDefault("resync.cron", "*/5 * * * *")
	v.SetDefault("resync.timeout", time.Minute)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter.type", string(metrics.ExporterStdout))
	v.SetDefault("metrics.exporter.endpoint", "")
	v.SetDefault("metrics.exporter.insecure", false)
	v.SetDefault("metrics.exporter.interval", time.Minute)
}
