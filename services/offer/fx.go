package offer

import "go.uber.org/fx"

var Module = fx.Module("offer.module",
	fx.Provide(NewService),
)
