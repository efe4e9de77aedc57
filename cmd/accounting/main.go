package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"connector-accounting/pkg/config"
	"connector-accounting/pkg/db"
	"connector-accounting/pkg/ledger"
	"connector-accounting/pkg/ledger/inmem"
	"connector-accounting/pkg/logger"
	"connector-accounting/services/account"
	"connector-accounting/services/asset"
	"connector-accounting/services/balance"
	"connector-accounting/services/credit"
	"connector-accounting/services/deposit"
	"connector-accounting/services/transfer"
	"connector-accounting/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(provideLedgerClient),
		balance.Module,
		asset.Module,
		account.Module,
		deposit.Module,
		withdrawal.Module,
		transfer.Module,
		credit.Module,
		fx.Invoke(announceReady),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

// provideLedgerClient runs the balance engine in-process. A networked
// engine cluster client satisfying ledger.Client can be substituted here
// without touching the services.
func provideLedgerClient() ledger.Client {
	return inmem.New()
}

func announceReady(
	log *zap.Logger,
	cfg *config.Config,
	_ *deposit.Service,
	_ *withdrawal.Service,
	_ *transfer.Service,
	_ *credit.Service,
) {
	log.Info("accounting core ready",
		zap.String("app_name", cfg.AppName),
		zap.String("app_version", cfg.AppVersion),
	)
}
