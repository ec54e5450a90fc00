package notification

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

var Module = fx.Module("notification",
	fx.Provide(
		NewEmailSender,
		NewTelegramSender,
		NewWebhookSender,
		fx.Annotate(NewDispatcher, fx.As(fx.Self()), fx.As(new(domain.Dispatcher))),
	),
)
