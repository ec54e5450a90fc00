package account

import (
	"github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/account/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(func(store *repository.Store) domain.Store { return store }),
	fx.Provide(repository.New),
)
