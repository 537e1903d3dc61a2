package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

const (
	commandAddWant    = "addwant"
	commandAddHave    = "addhave"
	commandRemoveWant = "removewant"
	commandRemoveHave = "removehave"
	commandMyLists    = "mylists"
	commandCatalog    = "catalog"

	itemsUsage = "<item numbers>"
)

// Module keeps member want/have lists and announces two-way matches.
type Module struct {
	cfg     Config
	catalog *tradecore.Catalog
	store   tradecore.ListStore
	ledger  tradecore.Ledger
	members *memberDirectory

	sweeperOptions []tradecore.SweeperOption
	logger         *slog.Logger
	dispatcher     otogi.SinkDispatcher
	sweeper        *tradecore.Sweeper

	lifecycleMu  sync.Mutex
	runCtx       context.Context
	cancelRun    context.CancelFunc
	cancelTicker context.CancelFunc
	stopped      bool
	sweeps       sync.WaitGroup
}

// Option mutates optional module dependencies.
type Option func(*Module)

// WithLogger pins the module logger instead of resolving the shared one.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSweeperOptions forwards options to the sweeper built at registration.
func WithSweeperOptions(options ...tradecore.SweeperOption) Option {
	return func(m *Module) {
		m.sweeperOptions = append(m.sweeperOptions, options...)
	}
}

// New creates a trade module over the given catalog, list store and ledger.
func New(
	cfg Config,
	catalog *tradecore.Catalog,
	store tradecore.ListStore,
	ledger tradecore.Ledger,
	options ...Option,
) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new trade module: %w", err)
	}
	if catalog == nil || catalog.Count() == 0 {
		return nil, fmt.Errorf("new trade module: %w", tradecore.ErrEmptyCatalog)
	}
	if store == nil {
		return nil, errors.New("new trade module: nil list store")
	}
	if ledger == nil {
		return nil, errors.New("new trade module: nil ledger")
	}

	module := &Module{
		cfg:     cfg.clone(),
		catalog: catalog,
		store:   store,
		ledger:  ledger,
		members: newMemberDirectory(),
	}
	for _, option := range options {
		option(module)
	}

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "trade"
}

// Spec declares the trade commands and the channel gating handler.
func (m *Module) Spec() otogi.ModuleSpec {
	handlers := []otogi.ModuleHandler{
		{
			Capability: otogi.Capability{
				Name:        "trade-command-handler",
				Description: "maintains want/have lists and replies to list commands",
				Interest: otogi.InterestSet{
					Kinds:          []otogi.EventKind{otogi.EventKindCommandReceived},
					RequireCommand: true,
					CommandNames: []string{
						commandAddWant,
						commandAddHave,
						commandRemoveWant,
						commandRemoveHave,
						commandMyLists,
						commandCatalog,
					},
					RequireArticle: true,
				},
				RequiredServices: []string{otogi.ServiceSinkDispatcher},
			},
			Subscription: otogi.NewDefaultSubscriptionSpec("trade-commands"),
			Handler:      m.handleCommand,
		},
	}
	if m.cfg.DeleteNonCommands && (m.cfg.Channels.Want != "" || m.cfg.Channels.Have != "") {
		handlers = append(handlers, otogi.ModuleHandler{
			Capability: otogi.Capability{
				Name:        "trade-channel-gate",
				Description: "deletes plain articles posted to the want and have channels",
				Interest: otogi.InterestSet{
					Kinds:          []otogi.EventKind{otogi.EventKindArticleCreated},
					RequireArticle: true,
				},
				RequiredServices: []string{otogi.ServiceSinkDispatcher},
			},
			Subscription: otogi.NewDefaultSubscriptionSpec("trade-channel-gate"),
			Handler:      m.handleArticle,
		})
	}

	return otogi.ModuleSpec{
		Handlers: handlers,
		Commands: []otogi.CommandSpec{
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandAddWant,
				Aliases:     []string{"addrequest"},
				Usage:       itemsUsage,
				Description: "add catalog items to your wants",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandAddHave,
				Aliases:     []string{"addduplicate"},
				Usage:       itemsUsage,
				Description: "add catalog items to your haves",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandRemoveWant,
				Aliases:     []string{"removerequest"},
				Usage:       itemsUsage,
				Description: "remove catalog items from your wants",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandRemoveHave,
				Aliases:     []string{"removeduplicate"},
				Usage:       itemsUsage,
				Description: "remove catalog items from your haves",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandMyLists,
				Aliases:     []string{"viewmylists"},
				Description: "show your wants and haves",
			},
			{
				Prefix:      otogi.CommandPrefixOrdinary,
				Name:        commandCatalog,
				Description: "list tradeable items with their numbers",
			},
		},
	}
}

// OnRegister resolves outbound and logging dependencies and builds the sweeper.
func (m *Module) OnRegister(_ context.Context, runtime otogi.ModuleRuntime) error {
	dispatcher, err := otogi.ResolveAs[otogi.SinkDispatcher](
		runtime.Services(),
		otogi.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("trade resolve outbound dispatcher: %w", err)
	}
	if m.logger == nil {
		m.logger = otogi.ResolveLogger(runtime.Services(), m.Name())
	}

	m.dispatcher = dispatcher
	if err := m.buildSweeper(); err != nil {
		return fmt.Errorf("trade register: %w", err)
	}

	return nil
}

func (m *Module) buildSweeper() error {
	if m.logger == nil {
		m.logger = slog.Default()
	}
	notifier := &matchNotifier{
		dispatcher: m.dispatcher,
		members:    m.members,
		announce:   m.cfg.Announce,
		logger:     m.logger,
	}
	options := append([]tradecore.SweeperOption{tradecore.WithLogger(m.logger)}, m.sweeperOptions...)
	sweeper, err := tradecore.NewSweeper(m.store, m.ledger, notifier, options...)
	if err != nil {
		return err
	}
	m.sweeper = sweeper

	return nil
}

// OnStart runs an initial sweep and starts the periodic sweep timer.
func (m *Module) OnStart(_ context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.cancelRun != nil {
		return errors.New("trade start: already started")
	}
	m.runCtx, m.cancelRun = context.WithCancel(context.Background())
	m.stopped = false

	m.startSweepLocked("startup")
	if m.cfg.SweepInterval > 0 {
		var tickerCtx context.Context
		tickerCtx, m.cancelTicker = context.WithCancel(m.runCtx)
		m.sweeps.Add(1)
		go m.runTicker(tickerCtx, m.runCtx, m.cfg.SweepInterval)
	}

	return nil
}

// OnShutdown stops the timer and lets in-flight sweeps finish delivering.
// Sweeps are cancelled only when ctx ends first.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.lifecycleMu.Lock()
	m.stopped = true
	cancelRun := m.cancelRun
	if m.cancelTicker != nil {
		m.cancelTicker()
		m.cancelTicker = nil
	}
	m.cancelRun = nil
	m.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.sweeps.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancelRun != nil {
			cancelRun()
		}
		return nil
	case <-ctx.Done():
		if cancelRun != nil {
			cancelRun()
		}
		<-done
		return fmt.Errorf("trade shutdown: %w", ctx.Err())
	}
}

// runTicker fires timer sweeps until tickerCtx ends. Each sweep runs on
// sweepCtx so stopping the timer does not abort a sweep mid-delivery.
func (m *Module) runTicker(tickerCtx, sweepCtx context.Context, interval time.Duration) {
	defer m.sweeps.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-tickerCtx.Done():
			return
		case <-ticker.C:
			m.runSweep(sweepCtx, "timer")
		}
	}
}

// triggerSweep runs one sweep in the background after a list mutation.
func (m *Module) triggerSweep(reason string) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.startSweepLocked(reason)
}

func (m *Module) startSweepLocked(reason string) {
	if m.stopped || m.sweeper == nil {
		return
	}
	parent := m.runCtx
	if parent == nil {
		parent = context.Background()
	}

	m.sweeps.Add(1)
	go func() {
		defer m.sweeps.Done()
		m.runSweep(parent, reason)
	}()
}

func (m *Module) runSweep(parent context.Context, reason string) {
	ctx, cancel := context.WithTimeout(parent, m.cfg.SweepTimeout)
	defer cancel()

	report, err := m.sweeper.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.logger.ErrorContext(ctx, "trade sweep failed",
			"reason", reason,
			"sweep_id", report.ID,
			"error", err,
		)
		return
	}
	m.logger.DebugContext(ctx, "trade sweep finished",
		"reason", reason,
		"sweep_id", report.ID,
		"candidates", report.Candidates,
		"recorded", report.Recorded,
	)
}

var (
	_ otogi.Module          = (*Module)(nil)
	_ otogi.ModuleRegistrar = (*Module)(nil)
)
