package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"ex-otogi-trade/pkg/otogi"
)

// Run starts modules, runs drivers, and blocks until ctx is cancelled, a
// driver fails, or every driver returns. Shutdown always runs before Run
// returns; cancellation of ctx is not reported as an error.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.startRun(); err != nil {
		return err
	}
	defer k.finishRun()

	if err := k.startModules(ctx); err != nil {
		return err
	}

	drivers := k.driverSnapshot()
	k.cfg.logger.InfoContext(ctx, "kernel started",
		"modules", len(k.moduleSnapshot()),
		"drivers", len(drivers),
		"services", k.services.Names(),
	)

	runErr := k.superviseDrivers(ctx, drivers)
	shutdownErr := k.shutdownAll(ctx)
	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

// startRun rejects a Run while another one is active.
func (k *Kernel) startRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: %w", ErrAlreadyRunning)
	}
	k.running = true

	return nil
}

func (k *Kernel) finishRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.moduleSnapshot() {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.limits.ModuleHookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// superviseDrivers runs every driver in one errgroup. The first fatal driver
// error cancels the others. Drivers get shutdownTimeout to return after
// cancellation; stragglers are abandoned.
func (k *Kernel) superviseDrivers(ctx context.Context, drivers []otogi.Driver) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	sink := k.newDriverEventSink()
	for _, driver := range drivers {
		group.Go(func() error {
			err := runSafely("driver "+driver.Name()+" Start", func() error {
				return driver.Start(groupCtx, sink)
			})
			if err == nil || isContextCancellation(err) {
				return nil
			}
			return fmt.Errorf("run driver %s: %w", driver.Name(), err)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	// groupCtx ends on parent cancellation, the first driver error, or once
	// every driver has returned.
	<-groupCtx.Done()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(k.cfg.limits.ShutdownTimeout):
		k.cfg.logger.WarnContext(ctx, "drivers did not stop within shutdown timeout",
			"timeout", k.cfg.limits.ShutdownTimeout,
		)
	}

	return ctx.Err()
}

// shutdownAll tears down drivers, modules and the bus within shutdownTimeout.
// It detaches from ctx cancellation so cleanup still runs after Run's parent
// context is done.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.limits.ShutdownTimeout)
	defer cancel()

	err := errors.Join(
		k.shutdownDrivers(shutdownCtx),
		k.shutdownModules(shutdownCtx),
		k.bus.Close(shutdownCtx),
	)
	if err != nil {
		return fmt.Errorf("kernel shutdown: %w", err)
	}

	return nil
}

func (k *Kernel) shutdownDrivers(ctx context.Context) error {
	var shutdownErr error
	for _, driver := range slices.Backward(k.driverSnapshot()) {
		name := driver.Name()
		err := runSafely("driver "+name+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		})
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", name, err))
		}
	}

	return shutdownErr
}

// shutdownModules closes each module's subscriptions before its OnShutdown
// hook, newest module first.
func (k *Kernel) shutdownModules(ctx context.Context) error {
	var shutdownErr error
	for _, record := range slices.Backward(k.moduleSnapshot()) {
		if err := record.closeSubscriptions(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.limits.ModuleHookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		cancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	return shutdownErr
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
