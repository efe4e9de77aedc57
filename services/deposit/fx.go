package deposit

import "go.uber.org/fx"

var Module = fx.Module("deposit.service",
	fx.Provide(NewService),
)
