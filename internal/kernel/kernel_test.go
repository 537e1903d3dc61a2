package kernel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ex-otogi-trade/pkg/otogi"
)

func TestRegisterModuleRequiresServices(t *testing.T) {
	t.Parallel()

	needs := otogi.ModuleSpec{
		AdditionalCapabilities: []otogi.Capability{
			{Name: "deliver-matches", RequiredServices: []string{otogi.ServiceSinkDispatcher}},
			{Name: "log-sweeps", RequiredServices: []string{otogi.ServiceLogger}},
		},
	}

	tests := []struct {
		name      string
		services  []string
		wantErrIn []string
	}{
		{
			name:      "every missing service is reported",
			wantErrIn: []string{"deliver-matches requires service " + otogi.ServiceSinkDispatcher, "log-sweeps requires service logger"},
		},
		{
			name:      "one missing service",
			services:  []string{otogi.ServiceLogger},
			wantErrIn: []string{otogi.ServiceSinkDispatcher},
		},
		{
			name:     "all services present",
			services: []string{otogi.ServiceLogger, otogi.ServiceSinkDispatcher},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			for _, name := range testCase.services {
				require.NoError(t, kernelRuntime.RegisterService(name, struct{}{}))
			}

			module := &stubModule{name: "trade", spec: needs}
			err := kernelRuntime.RegisterModule(context.Background(), module)
			if len(testCase.wantErrIn) == 0 {
				require.NoError(t, err)
				assert.Equal(t, int32(1), module.registered.Load())
				return
			}

			require.ErrorIs(t, err, otogi.ErrServiceNotFound)
			for _, fragment := range testCase.wantErrIn {
				assert.Contains(t, err.Error(), fragment)
			}
			assert.Zero(t, module.registered.Load(), "OnRegister must not run without services")
		})
	}
}

func TestRegisterModuleRollsBackFailedRegistration(t *testing.T) {
	t.Parallel()

	commands := []otogi.CommandSpec{
		{Prefix: otogi.CommandPrefixOrdinary, Name: "addwant", Aliases: []string{"addrequest"}},
	}
	tests := []struct {
		name       string
		onRegister func(context.Context, otogi.ModuleRuntime) error
		wantPanic  bool
	}{
		{
			name: "hook error",
			onRegister: func(context.Context, otogi.ModuleRuntime) error {
				return errors.New("store unavailable")
			},
		},
		{
			name: "hook panic",
			onRegister: func(context.Context, otogi.ModuleRuntime) error {
				panic("nil store")
			},
			wantPanic: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			failing := &stubModule{
				name:       "trade",
				spec:       otogi.ModuleSpec{Commands: commands},
				onRegister: testCase.onRegister,
			}
			err := kernelRuntime.RegisterModule(context.Background(), failing)
			require.Error(t, err)
			var panicErr *PanicError
			assert.Equal(t, testCase.wantPanic, errors.As(err, &panicErr))

			_, found := kernelRuntime.lookupCommand(otogi.CommandPrefixOrdinary, "addrequest")
			assert.False(t, found, "commands of a failed module must be released")
			assert.Empty(t, kernelRuntime.moduleSnapshot())

			retry := &stubModule{name: "trade", spec: otogi.ModuleSpec{Commands: commands}}
			require.NoError(t, kernelRuntime.RegisterModule(context.Background(), retry))
			_, found = kernelRuntime.lookupCommand(otogi.CommandPrefixOrdinary, "addrequest")
			assert.True(t, found)
		})
	}
}

func TestRegisterModuleRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	require.NoError(t, kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "help"}))

	err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "help"})
	require.ErrorIs(t, err, otogi.ErrModuleAlreadyRegistered)

	require.ErrorContains(t, kernelRuntime.RegisterModule(context.Background(), nil), "nil module")
	require.ErrorContains(t, kernelRuntime.RegisterModule(context.Background(), &stubModule{}), "empty module name")
}

func TestRegisterDriver(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	require.NoError(t, kernelRuntime.RegisterDriver(&stubDriver{name: "tg-main"}))

	require.ErrorIs(t, kernelRuntime.RegisterDriver(&stubDriver{name: "tg-main"}), otogi.ErrDriverAlreadyRegistered)
	require.ErrorContains(t, kernelRuntime.RegisterDriver(nil), "nil driver")
	require.ErrorContains(t, kernelRuntime.RegisterDriver(&stubDriver{}), "empty name")
	assert.Len(t, kernelRuntime.driverSnapshot(), 1)
}

func TestRegisterModuleSubscribesDeclaredHandlers(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	handled := make(chan string, 2)
	record := func(_ context.Context, event *otogi.Event) error {
		handled <- string(event.Kind) + ":" + event.ID
		return nil
	}
	module := &stubModule{
		name: "trade",
		spec: otogi.ModuleSpec{
			Handlers: []otogi.ModuleHandler{
				handlerFor("gate-articles", "", otogi.EventKindArticleCreated, record),
				handlerFor("trade-commands", "trade-commands", otogi.EventKindCommandReceived, record),
			},
		},
	}
	require.NoError(t, kernelRuntime.RegisterModule(context.Background(), module))

	for _, event := range []*otogi.Event{
		newTestEvent("e1", otogi.EventKindArticleCreated),
		newTestEvent("e2", otogi.EventKindCommandReceived),
	} {
		require.NoError(t, kernelRuntime.EventBus().Publish(context.Background(), event))
	}

	got := make([]string, 0, 2)
	for range 2 {
		select {
		case id := <-handled:
			got = append(got, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for handlers, got %v", got)
		}
	}
	assert.ElementsMatch(t, []string{
		string(otogi.EventKindArticleCreated) + ":e1",
		string(otogi.EventKindCommandReceived) + ":e2",
	}, got)

	records := kernelRuntime.moduleSnapshot()
	require.Len(t, records, 1)
	assert.Len(t, records[0].capabilities, 2)
}

func TestRegisterModuleImperativeSubscriptionNeedsCapability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    otogi.ModuleSpec
		wantErr bool
	}{
		{name: "no capability", spec: otogi.ModuleSpec{}, wantErr: true},
		{
			name: "declared capability",
			spec: otogi.ModuleSpec{
				AdditionalCapabilities: []otogi.Capability{
					{
						Name: "watch-articles",
						Interest: otogi.InterestSet{
							Kinds: []otogi.EventKind{otogi.EventKindArticleCreated},
						},
					},
				},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			t.Cleanup(func() {
				_ = kernelRuntime.EventBus().Close(context.Background())
			})

			module := &stubModule{
				name: "watcher",
				spec: testCase.spec,
				onRegister: func(ctx context.Context, runtime otogi.ModuleRuntime) error {
					_, err := runtime.Subscribe(ctx, otogi.InterestSet{
						Kinds: []otogi.EventKind{otogi.EventKindArticleCreated},
					}, otogi.SubscriptionSpec{Name: "watch"}, noopHandler)
					return err
				},
			}

			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr {
				require.ErrorContains(t, err, "requires at least one declared capability")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegisterModuleSpecValidation(t *testing.T) {
	t.Parallel()

	articles := otogi.EventKindArticleCreated
	commands := otogi.EventKindCommandReceived

	tests := []struct {
		name       string
		spec       otogi.ModuleSpec
		wantErrSub string
	}{
		{
			name: "empty handler capability name",
			spec: otogi.ModuleSpec{Handlers: []otogi.ModuleHandler{
				handlerFor("", "", articles, noopHandler),
			}},
			wantErrSub: "empty capability name",
		},
		{
			name: "duplicate capability name",
			spec: otogi.ModuleSpec{Handlers: []otogi.ModuleHandler{
				handlerFor("dup", "", articles, noopHandler),
				handlerFor("dup", "", commands, noopHandler),
			}},
			wantErrSub: "duplicate capability name",
		},
		{
			name: "nil handler",
			spec: otogi.ModuleSpec{Handlers: []otogi.ModuleHandler{
				handlerFor("gate", "", articles, nil),
			}},
			wantErrSub: "nil handler",
		},
		{
			name: "duplicate subscription name",
			spec: otogi.ModuleSpec{Handlers: []otogi.ModuleHandler{
				handlerFor("gate", "shared", articles, noopHandler),
				handlerFor("commands", "shared", commands, noopHandler),
			}},
			wantErrSub: "duplicate subscription name",
		},
		{
			name: "additional capability reuses handler capability",
			spec: otogi.ModuleSpec{
				Handlers:               []otogi.ModuleHandler{handlerFor("gate", "", articles, noopHandler)},
				AdditionalCapabilities: []otogi.Capability{{Name: "gate"}},
			},
			wantErrSub: "duplicate capability name",
		},
		{
			name: "command without name",
			spec: otogi.ModuleSpec{
				Commands: []otogi.CommandSpec{{Prefix: otogi.CommandPrefixOrdinary}},
			},
			wantErrSub: "module command 0",
		},
		{
			name: "command declared twice",
			spec: otogi.ModuleSpec{Commands: []otogi.CommandSpec{
				{Prefix: otogi.CommandPrefixOrdinary, Name: "addwant"},
				{Prefix: otogi.CommandPrefixOrdinary, Name: "addwant"},
			}},
			wantErrSub: "duplicate command /addwant",
		},
		{
			name: "alias shadows another command",
			spec: otogi.ModuleSpec{Commands: []otogi.CommandSpec{
				{Prefix: otogi.CommandPrefixOrdinary, Name: "addwant"},
				{Prefix: otogi.CommandPrefixOrdinary, Name: "addrequest", Aliases: []string{"AddWant"}},
			}},
			wantErrSub: "duplicate command /addwant",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := New().RegisterModule(context.Background(), &stubModule{name: "invalid", spec: testCase.spec})
			require.ErrorContains(t, err, testCase.wantErrSub)
		})
	}
}

func TestKernelCommandCatalogService(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	catalog, err := otogi.ResolveAs[otogi.CommandCatalog](kernelRuntime.Services(), otogi.ServiceCommandCatalog)
	require.NoError(t, err)

	module := &stubModule{
		name: "trade",
		spec: otogi.ModuleSpec{
			Commands: []otogi.CommandSpec{
				{Prefix: otogi.CommandPrefixSystem, Name: "sweep"},
				{Prefix: otogi.CommandPrefixOrdinary, Name: "mylists", Aliases: []string{"viewmylists"}},
			},
		},
	}
	require.NoError(t, kernelRuntime.RegisterModule(context.Background(), module))

	commands, err := catalog.ListCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 2)

	assert.Equal(t, "trade", commands[0].ModuleName)
	assert.Equal(t, otogi.CommandPrefixOrdinary, commands[0].Command.Prefix)
	assert.Equal(t, "mylists", commands[0].Command.Name)
	assert.Equal(t, []string{"viewmylists"}, commands[0].Command.Aliases)
	assert.Equal(t, otogi.CommandPrefixSystem, commands[1].Command.Prefix)
	assert.Equal(t, "sweep", commands[1].Command.Name)
}

func TestRegisterModuleRejectsAliasOwnedByAnotherModule(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	require.NoError(t, kernelRuntime.RegisterModule(context.Background(), &stubModule{
		name: "trade",
		spec: otogi.ModuleSpec{Commands: []otogi.CommandSpec{
			{Prefix: otogi.CommandPrefixOrdinary, Name: "addwant", Aliases: []string{"addrequest"}},
		}},
	}))

	err := kernelRuntime.RegisterModule(context.Background(), &stubModule{
		name: "other",
		spec: otogi.ModuleSpec{Commands: []otogi.CommandSpec{
			{Prefix: otogi.CommandPrefixOrdinary, Name: "addrequest"},
		}},
	})
	require.ErrorContains(t, err, "already registered by module trade")

	_, found := kernelRuntime.lookupCommand(otogi.CommandPrefixOrdinary, "ADDREQUEST")
	assert.True(t, found, "the owning module keeps its alias")
	_, found = kernelRuntime.lookupCommand(otogi.CommandPrefixSystem, "addrequest")
	assert.False(t, found, "aliases are scoped to their prefix")
}

func TestKernelRunOrdersLifecycle(t *testing.T) {
	t.Parallel()

	log := &lifecycleLog{}
	kernelRuntime := New()
	for _, name := range []string{"trade", "help"} {
		require.NoError(t, kernelRuntime.RegisterModule(context.Background(), &stubModule{name: name, log: log}))
	}
	driver := &stubDriver{name: "tg-main", log: log}
	require.NoError(t, kernelRuntime.RegisterDriver(driver))

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	eventually(t, time.Second, func() bool {
		return driver.started.Load() == 1
	})
	cancel()
	require.NoError(t, waitRun(t, runDone))

	assert.Equal(t, []string{
		"start trade",
		"start help",
		"driver start tg-main",
		"driver stop tg-main",
		"shutdown help",
		"shutdown trade",
	}, log.snapshot())
}

func TestKernelRunStopsWhenDriverFails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		start     func(context.Context) error
		wantErr   string
		wantPanic bool
	}{
		{
			name: "driver error",
			start: func(context.Context) error {
				return errors.New("AUTH_KEY_UNREGISTERED")
			},
			wantErr: "run driver broken",
		},
		{
			name: "driver panic",
			start: func(context.Context) error {
				panic("nil client")
			},
			wantErr:   "panic recovered: nil client",
			wantPanic: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New(WithLimits(Limits{ShutdownTimeout: time.Second}))
			module := &stubModule{name: "trade"}
			healthy := &stubDriver{name: "healthy"}
			require.NoError(t, kernelRuntime.RegisterModule(context.Background(), module))
			require.NoError(t, kernelRuntime.RegisterDriver(healthy))
			require.NoError(t, kernelRuntime.RegisterDriver(&stubDriver{name: "broken", start: testCase.start}))

			runDone := make(chan error, 1)
			go func() {
				runDone <- kernelRuntime.Run(context.Background())
			}()

			err := waitRun(t, runDone)
			require.ErrorContains(t, err, testCase.wantErr)
			var panicErr *PanicError
			assert.Equal(t, testCase.wantPanic, errors.As(err, &panicErr))
			assert.Equal(t, int32(1), healthy.stopped.Load(), "other drivers are shut down")
			assert.Equal(t, int32(1), module.shutdown.Load(), "modules are shut down")
		})
	}
}

func TestKernelRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	kernelRuntime := New(WithLimits(Limits{ShutdownTimeout: time.Second}))
	driver := &stubDriver{name: "tg-main"}
	require.NoError(t, kernelRuntime.RegisterDriver(driver))

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	eventually(t, time.Second, func() bool {
		return driver.started.Load() == 1
	})
	require.ErrorIs(t, kernelRuntime.Run(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, waitRun(t, runDone))
}

func TestWithLimitsKeepsDefaultsForZeroFields(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	WithLimits(Limits{HandlerTimeout: 9 * time.Second, SubscriptionWorkers: -1})(&cfg)

	want := DefaultLimits()
	want.HandlerTimeout = 9 * time.Second
	assert.Equal(t, want, cfg.limits)
}

func handlerFor(
	capability string,
	subscription string,
	kind otogi.EventKind,
	handler otogi.EventHandler,
) otogi.ModuleHandler {
	return otogi.ModuleHandler{
		Capability: otogi.Capability{
			Name:     capability,
			Interest: otogi.InterestSet{Kinds: []otogi.EventKind{kind}},
		},
		Subscription: otogi.SubscriptionSpec{Name: subscription, Buffer: 4, Workers: 1},
		Handler:      handler,
	}
}

func noopHandler(context.Context, *otogi.Event) error {
	return nil
}

func waitRun(t *testing.T, runDone <-chan error) error {
	t.Helper()

	select {
	case err := <-runDone:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("kernel run did not exit")
		return nil
	}
}

// lifecycleLog records hook calls across modules and drivers in call order.
type lifecycleLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *lifecycleLog) add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *lifecycleLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.entries...)
}

type stubModule struct {
	name       string
	spec       otogi.ModuleSpec
	log        *lifecycleLog
	onRegister func(ctx context.Context, runtime otogi.ModuleRuntime) error

	registered atomic.Int32
	started    atomic.Int32
	shutdown   atomic.Int32
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Spec() otogi.ModuleSpec {
	return m.spec
}

func (m *stubModule) OnRegister(ctx context.Context, runtime otogi.ModuleRuntime) error {
	m.registered.Add(1)
	if m.onRegister == nil {
		return nil
	}

	return m.onRegister(ctx, runtime)
}

func (m *stubModule) OnStart(context.Context) error {
	m.started.Add(1)
	m.log.add("start " + m.name)
	return nil
}

func (m *stubModule) OnShutdown(context.Context) error {
	m.shutdown.Add(1)
	m.log.add("shutdown " + m.name)
	return nil
}

type stubDriver struct {
	name  string
	log   *lifecycleLog
	start func(context.Context) error

	started atomic.Int32
	stopped atomic.Int32
}

func (d *stubDriver) Name() string {
	return d.name
}

func (d *stubDriver) Start(ctx context.Context, _ otogi.EventSink) error {
	d.started.Add(1)
	d.log.add("driver start " + d.name)
	if d.start != nil {
		return d.start(ctx)
	}
	<-ctx.Done()

	return nil
}

func (d *stubDriver) Shutdown(context.Context) error {
	d.stopped.Add(1)
	d.log.add("driver stop " + d.name)
	return nil
}
