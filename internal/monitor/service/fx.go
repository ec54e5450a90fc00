package service

import "go.uber.org/fx"

var Module = fx.Module("monitor",
	fx.Provide(NewEngine),
)
