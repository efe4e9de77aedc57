package credit

import "go.uber.org/fx"

var Module = fx.Module("credit.service",
	fx.Provide(NewService),
)
