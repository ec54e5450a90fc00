package aliyun

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

var Module = fx.Module("provider.aliyun",
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(domain.Provider))),
	),
)
