package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ex-otogi-trade/internal/driver"
	"ex-otogi-trade/internal/kernel"
	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/internal/trade/backend"
	"ex-otogi-trade/modules/help"
	"ex-otogi-trade/modules/trade"
	"ex-otogi-trade/pkg/otogi"
)

// run loads configuration, opens the trade state, wires drivers, services
// and modules into one kernel and runs it until ctx ends.
func run(ctx context.Context) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	catalog, err := tradecore.LoadCatalogFile(cfg.trade.CatalogFile)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	persistence, err := backend.Open(cfg.trade.Store, cfg.trade.StorePath)
	if err != nil {
		return fmt.Errorf("open trade backend: %w", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Error("close trade backend", "error", err)
		}
	}()
	logger.Info("trade backend ready", "store", cfg.trade.Store, "catalog_items", catalog.Count())

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}
	dispatcher, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return fmt.Errorf("build sink dispatcher: %w", err)
	}

	bot := kernel.New(kernel.WithLogger(logger), kernel.WithLimits(cfg.kernel))
	for _, runtime := range runtimes {
		if err := bot.RegisterDriver(runtime.Driver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtime.Driver.Name(), err)
		}
	}
	if err := registerRuntimeServices(bot, logger, dispatcher); err != nil {
		return err
	}
	if err := registerRuntimeModules(ctx, bot, cfg, catalog, persistence); err != nil {
		return err
	}

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

// registerRuntimeServices exposes the logger and outbound dispatcher to
// modules.
func registerRuntimeServices(bot *kernel.Kernel, logger *slog.Logger, dispatcher otogi.SinkDispatcher) error {
	if dispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}

	services := []struct {
		name    string
		service any
	}{
		{otogi.ServiceLogger, logger},
		{otogi.ServiceSinkDispatcher, dispatcher},
	}
	for _, entry := range services {
		if err := bot.RegisterService(entry.name, entry.service); err != nil {
			return fmt.Errorf("register service %s: %w", entry.name, err)
		}
	}

	return nil
}

// registerRuntimeModules registers the trade module, which owns the trading
// commands, and the help module listing every registered command.
func registerRuntimeModules(
	ctx context.Context,
	bot *kernel.Kernel,
	cfg appConfig,
	catalog *tradecore.Catalog,
	persistence *backend.Backend,
) error {
	tradeModule, err := trade.New(
		cfg.trade,
		catalog,
		persistence.Store,
		persistence.Ledger,
		trade.WithSweeperOptions(tradecore.WithMatchFunc(tradecore.FindMatchesIndexed)),
	)
	if err != nil {
		return fmt.Errorf("new trade module: %w", err)
	}

	for _, module := range []otogi.Module{tradeModule, help.New()} {
		if err := bot.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}

	return nil
}
