package observability

import (
	"github.com/smallbiznis/trafficwarden/internal/config"
	"github.com/smallbiznis/trafficwarden/internal/observability/logger"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(func(cfg config.Config) logger.Config {
		return logger.Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
			Version:     cfg.AppVersion,
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
		}
	}),
	fx.Provide(logger.New),
)
