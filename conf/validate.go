package conf

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/metrics"
	"github.com/looplj/lifeline/internal/pkg/db"
	"github.com/looplj/lifeline/internal/pkg/watcher"
)

// Validate reports every invalid setting, not only the first.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.APIServer.Port <= 0 || c.APIServer.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be between 1 and 65535"))
	}

	if c.APIServer.CORS.Enabled && len(c.APIServer.CORS.AllowedOrigins) == 0 {
		result = multierror.Append(result, fmt.Errorf("server.cors.allowed_origins cannot be empty when CORS is enabled"))
	}

	if c.APIServer.API.RefreshRate < 0 {
		result = multierror.Append(result, fmt.Errorf("server.api.refresh_rate cannot be negative"))
	}

	if _, err := db.ParseDialect(c.DB.Dialect); err != nil {
		result = multierror.Append(result, fmt.Errorf("db.dialect: %w", err))
	}

	if c.DB.DSN == "" {
		result = multierror.Append(result, fmt.Errorf("db.dsn cannot be empty"))
	}

	if c.Log.Name == "" {
		result = multierror.Append(result, fmt.Errorf("log.name cannot be empty"))
	}

	if c.Log.Output == log.OutputFile && c.Log.File.Path == "" {
		result = multierror.Append(result, fmt.Errorf("log.file.path cannot be empty when log.output is file"))
	}

	switch c.Watcher.Mode {
	case "", watcher.ModeMemory:
	case watcher.ModeRedis:
		if c.Watcher.Redis.Addr == "" && c.Watcher.Redis.URL == "" {
			result = multierror.Append(result, fmt.Errorf("watcher.redis.addr or watcher.redis.url is required in redis mode"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("watcher.mode %q is not one of memory, redis", c.Watcher.Mode))
	}

	if c.Subscription.ResubscribeMaxInterval > 0 && c.Subscription.ResubscribeInitialInterval > c.Subscription.ResubscribeMaxInterval {
		result = multierror.Append(result, fmt.Errorf("subscription.resubscribe_initial_interval exceeds resubscribe_max_interval"))
	}

	if c.Metrics.Enabled {
		switch c.Metrics.Exporter.Type {
		case metrics.ExporterStdout, metrics.ExporterOTLPHTTP, metrics.ExporterOTLPGRPC:
		default:
			result = multierror.Append(result, fmt.Errorf("metrics.exporter.type %q is not supported", c.Metrics.Exporter.Type))
		}
	}

	return result.ErrorOrNil()
}
