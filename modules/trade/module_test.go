package trade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tradecore "ex-otogi-trade/internal/trade"
	"ex-otogi-trade/pkg/otogi"
)

const (
	testWantChannel   = "-100"
	testHaveChannel   = "-200"
	testManageChannel = "-300"
	testAnnounce      = "-400"
)

func TestModuleHandleCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		preload  map[tradecore.Kind][]string
		channel  string
		text     string
		wantText string
		wantWant []string
		wantHave []string
	}{
		{
			name:     "add want in want channel",
			channel:  testWantChannel,
			text:     "/addwant 1, 3",
			wantText: "Added: Alpha, Gamma",
			wantWant: []string{"Alpha", "Gamma"},
		},
		{
			name:     "add have reports already present",
			preload:  map[tradecore.Kind][]string{tradecore.KindHave: {"Alpha"}},
			channel:  testHaveChannel,
			text:     "/addhave 1 2",
			wantText: "Added: Beta\nAlready in list: Alpha",
			wantHave: []string{"Alpha", "Beta"},
		},
		{
			name:     "add without valid ordinals",
			channel:  testWantChannel,
			text:     "/addwant 0 9 x",
			wantText: "No valid item numbers provided.",
		},
		{
			name:     "add want outside want channel",
			channel:  testHaveChannel,
			text:     "/addwant 1",
			wantText: "This command cannot be used in this channel.",
		},
		{
			name:     "remove want in manage channel",
			preload:  map[tradecore.Kind][]string{tradecore.KindWant: {"Alpha", "Beta"}},
			channel:  testManageChannel,
			text:     "/removewant 2 3",
			wantText: "Removed: Beta\nNot in your list: Gamma",
			wantWant: []string{"Alpha"},
		},
		{
			name:     "remove have outside manage channel",
			preload:  map[tradecore.Kind][]string{tradecore.KindHave: {"Alpha"}},
			channel:  testHaveChannel,
			text:     "/removehave 1",
			wantText: "This command cannot be used in this channel.",
			wantHave: []string{"Alpha"},
		},
		{
			name:     "list view outside manage channel",
			channel:  testWantChannel,
			text:     "/mylists",
			wantText: "This command can only be used in the list-management channel.",
		},
		{
			name:     "list view renders both sections",
			preload:  map[tradecore.Kind][]string{tradecore.KindWant: {"Gamma"}},
			channel:  testManageChannel,
			text:     "/mylists",
			wantText: "Your wants:\n3. Gamma\n\nYour haves:\nNone",
			wantWant: []string{"Gamma"},
		},
		{
			name:     "catalog is never gated",
			channel:  "-999",
			text:     "/catalog",
			wantText: "Tradeable items:\n1. Alpha\n2. Beta\n3. Gamma",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			store := tradecore.NewMemoryStore()
			for kind, ids := range testCase.preload {
				if _, err := store.AddItems(context.Background(), "100", kind, itemsOf(ids...)); err != nil {
					t.Fatalf("preload failed: %v", err)
				}
			}
			dispatcher := &recordingDispatcher{}
			module := newTestModule(t, gatedConfig(), store, dispatcher)

			event := newTradeCommandEvent(testCase.channel, otogi.Actor{ID: "100", Username: "alice"}, testCase.text)
			if err := module.handleCommand(context.Background(), event); err != nil {
				t.Fatalf("handle command failed: %v", err)
			}
			shutdownModule(t, module)

			replies := dispatcher.sentTo(testCase.channel)
			if len(replies) != 1 {
				t.Fatalf("replies = %d, want 1", len(replies))
			}
			if replies[0].Text != testCase.wantText {
				t.Fatalf("reply = %q, want %q", replies[0].Text, testCase.wantText)
			}
			if replies[0].ReplyToMessageID != event.Article.ID {
				t.Fatalf("reply_to = %q, want %q", replies[0].ReplyToMessageID, event.Article.ID)
			}

			list, err := store.MemberList(context.Background(), "100")
			if err != nil {
				t.Fatalf("member list failed: %v", err)
			}
			assertSet(t, "wants", list.Wants, testCase.wantWant)
			assertSet(t, "haves", list.Haves, testCase.wantHave)
		})
	}
}

func TestModuleAliasesShareHandler(t *testing.T) {
	t.Parallel()

	module := newTestModule(t, gatedConfig(), tradecore.NewMemoryStore(), &recordingDispatcher{})
	spec := module.Spec()

	aliases := make(map[string]string)
	for _, command := range spec.Commands {
		for _, alias := range command.Aliases {
			aliases[alias] = command.Name
		}
	}
	want := map[string]string{
		"addrequest":      commandAddWant,
		"addduplicate":    commandAddHave,
		"removerequest":   commandRemoveWant,
		"removeduplicate": commandRemoveHave,
		"viewmylists":     commandMyLists,
	}
	for alias, name := range want {
		if aliases[alias] != name {
			t.Fatalf("alias %s -> %q, want %q", alias, aliases[alias], name)
		}
	}

	interest := spec.Handlers[0].Capability.Interest
	for _, command := range spec.Commands {
		if !interest.Matches(&otogi.Event{
			Kind:    otogi.EventKindCommandReceived,
			Article: &otogi.Article{ID: "1"},
			Command: &otogi.CommandInvocation{Name: command.Name},
		}) {
			t.Fatalf("command handler does not accept %s", command.Name)
		}
	}
}

func TestModuleSpecGatingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(*Config)
		wantHandlers int
	}{
		{
			name:         "gating enabled with channels",
			mutate:       func(*Config) {},
			wantHandlers: 2,
		},
		{
			name:         "gating disabled by flag",
			mutate:       func(cfg *Config) { cfg.DeleteNonCommands = false },
			wantHandlers: 1,
		},
		{
			name: "gating without gated channels",
			mutate: func(cfg *Config) {
				cfg.Channels.Want = ""
				cfg.Channels.Have = ""
			},
			wantHandlers: 1,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := gatedConfig()
			testCase.mutate(&cfg)
			module := newTestModule(t, cfg, tradecore.NewMemoryStore(), &recordingDispatcher{})
			if got := len(module.Spec().Handlers); got != testCase.wantHandlers {
				t.Fatalf("handlers = %d, want %d", got, testCase.wantHandlers)
			}
		})
	}
}

func TestModuleSweepNotifiesOnce(t *testing.T) {
	t.Parallel()

	cfg := gatedConfig()
	cfg.Channels = Channels{}
	store := tradecore.NewMemoryStore()
	ledger := tradecore.NewMemoryLedger()
	dispatcher := &recordingDispatcher{}
	module := newTestModuleWithLedger(t, cfg, store, ledger, dispatcher)

	alice := otogi.Actor{ID: "100", Username: "alice"}
	bob := otogi.Actor{ID: "200", DisplayName: "Bob B"}
	commands := []struct {
		actor otogi.Actor
		text  string
	}{
		{actor: alice, text: "/addwant 1"},
		{actor: alice, text: "/addhave 2"},
		{actor: bob, text: "/addrequest 2"},
		{actor: bob, text: "/addhave 1"},
		{actor: bob, text: "/addhave 1"},
	}
	for index, command := range commands {
		event := newTradeCommandEvent("-1", command.actor, command.text)
		event.Command.Name = canonicalName(command.text)
		event.Article.ID = string(rune('a' + index))
		if err := module.handleCommand(context.Background(), event); err != nil {
			t.Fatalf("command %q failed: %v", command.text, err)
		}
	}
	shutdownModule(t, module)

	aliceDM := dispatcher.sentTo("100")
	if len(aliceDM) != 1 {
		t.Fatalf("alice notices = %d, want 1", len(aliceDM))
	}
	if want := "Match found!\nYou can get from Bob B: Alpha\nYou can give: Beta"; aliceDM[0].Text != want {
		t.Fatalf("alice notice = %q, want %q", aliceDM[0].Text, want)
	}
	if aliceDM[0].Target.Conversation.Type != otogi.ConversationTypePrivate {
		t.Fatalf("alice notice conversation type = %q", aliceDM[0].Target.Conversation.Type)
	}
	if aliceDM[0].Target.Sink == nil || aliceDM[0].Target.Sink.ID != "tg-main" {
		t.Fatalf("alice notice sink = %+v, want tg-main", aliceDM[0].Target.Sink)
	}

	bobDM := dispatcher.sentTo("200")
	if len(bobDM) != 1 {
		t.Fatalf("bob notices = %d, want 1", len(bobDM))
	}
	if want := "Match found!\nYou can get from @alice: Beta\nYou can give: Alpha"; bobDM[0].Text != want {
		t.Fatalf("bob notice = %q, want %q", bobDM[0].Text, want)
	}

	announcements := dispatcher.sentTo(testAnnounce)
	if len(announcements) != 1 {
		t.Fatalf("announcements = %d, want 1", len(announcements))
	}
	if want := "New match! @alice <-> Bob B\n@alice can get: Alpha\nBob B can get: Beta"; announcements[0].Text != want {
		t.Fatalf("announcement = %q, want %q", announcements[0].Text, want)
	}

	records, err := ledger.Records(context.Background())
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}

func TestModuleNotifyFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	store := tradecore.NewMemoryStore()
	seedMatch(t, store)
	ledger := tradecore.NewMemoryLedger()
	dispatcher := &recordingDispatcher{sendErr: errors.New("forbidden")}
	module := newTestModuleWithLedger(t, gatedConfig(), store, ledger, dispatcher)

	if err := module.OnStart(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	shutdownModule(t, module)

	records, err := ledger.Records(context.Background())
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := len(dispatcher.sentTo("100")); got != 1 {
		t.Fatalf("delivery attempts to first member = %d, want 1", got)
	}
	if got := len(dispatcher.sentTo("200")); got != 1 {
		t.Fatalf("delivery attempts to second member = %d, want 1", got)
	}
}

func TestModuleShutdownFinishesInFlightDelivery(t *testing.T) {
	t.Parallel()

	store := tradecore.NewMemoryStore()
	seedMatch(t, store)
	ledger := tradecore.NewMemoryLedger()
	dispatcher := &recordingDispatcher{sendDelay: 50 * time.Millisecond, sending: make(chan struct{})}
	cfg := gatedConfig()
	cfg.SweepInterval = time.Hour
	module := newTestModuleWithLedger(t, cfg, store, ledger, dispatcher)

	if err := module.OnStart(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case <-dispatcher.sending:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first delivery")
	}
	shutdownModule(t, module)

	records, err := ledger.Records(context.Background())
	if err != nil {
		t.Fatalf("records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	for _, conversationID := range []string{"100", "200", testAnnounce} {
		if got := len(dispatcher.sentTo(conversationID)); got != 1 {
			t.Fatalf("deliveries to %s = %d, want 1", conversationID, got)
		}
	}
}

func TestModuleShutdownDeadlineCancelsSweep(t *testing.T) {
	t.Parallel()

	store := tradecore.NewMemoryStore()
	seedMatch(t, store)
	dispatcher := &recordingDispatcher{sendDelay: time.Minute, sending: make(chan struct{})}
	module := newTestModule(t, gatedConfig(), store, dispatcher)

	if err := module.OnStart(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-dispatcher.sending

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := module.OnShutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("shutdown error = %v, want deadline exceeded", err)
	}
}

func TestModuleTimerSweep(t *testing.T) {
	t.Parallel()

	cfg := gatedConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	store := tradecore.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	module := newTestModule(t, cfg, store, dispatcher)

	if err := module.OnStart(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := module.OnStart(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	seedMatch(t, store)
	deadline := time.Now().Add(2 * time.Second)
	for len(dispatcher.sentTo(testAnnounce)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer sweep did not announce the match")
		}
		time.Sleep(5 * time.Millisecond)
	}
	shutdownModule(t, module)

	if got := len(dispatcher.sentTo(testAnnounce)); got != 1 {
		t.Fatalf("announcements = %d, want 1", got)
	}
}

func TestModuleOnRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		services         map[string]any
		wantErrSubstring string
	}{
		{
			name: "resolve dependencies succeeds",
			services: map[string]any{
				otogi.ServiceSinkDispatcher: &recordingDispatcher{},
				otogi.ServiceLogger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			},
		},
		{
			name: "missing logger falls back to default",
			services: map[string]any{
				otogi.ServiceSinkDispatcher: &recordingDispatcher{},
			},
		},
		{
			name:             "missing outbound dispatcher fails",
			services:         map[string]any{},
			wantErrSubstring: "trade resolve outbound dispatcher",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module, err := New(gatedConfig(), testCatalog(t), tradecore.NewMemoryStore(), tradecore.NewMemoryLedger())
			if err != nil {
				t.Fatalf("new module failed: %v", err)
			}
			err = module.OnRegister(context.Background(), moduleRuntimeStub{
				registry: serviceRegistryStub{values: testCase.services},
			})
			if testCase.wantErrSubstring == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if module.sweeper == nil || module.logger == nil {
					t.Fatal("expected sweeper and logger to be configured")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
			}
		})
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	catalog := testCatalog(t)
	store := tradecore.NewMemoryStore()
	ledger := tradecore.NewMemoryLedger()
	badStore := gatedConfig()
	badStore.Store = "redis"

	tests := []struct {
		name    string
		build   func() (*Module, error)
		wantErr bool
	}{
		{name: "valid", build: func() (*Module, error) { return New(gatedConfig(), catalog, store, ledger) }},
		{name: "nil catalog", build: func() (*Module, error) { return New(gatedConfig(), nil, store, ledger) }, wantErr: true},
		{name: "nil store", build: func() (*Module, error) { return New(gatedConfig(), catalog, nil, ledger) }, wantErr: true},
		{name: "nil ledger", build: func() (*Module, error) { return New(gatedConfig(), catalog, store, nil) }, wantErr: true},
		{name: "invalid config", build: func() (*Module, error) { return New(badStore, catalog, store, ledger) }, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := testCase.build()
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func gatedConfig() Config {
	cfg := DefaultConfig()
	cfg.Channels = Channels{
		Want:   testWantChannel,
		Have:   testHaveChannel,
		Manage: testManageChannel,
	}
	cfg.Announce = &otogi.OutboundTarget{
		Conversation: otogi.Conversation{ID: testAnnounce, Type: otogi.ConversationTypeGroup},
	}
	cfg.DeleteNonCommands = true
	cfg.SweepTimeout = time.Second

	return cfg
}

func testCatalog(t *testing.T) *tradecore.Catalog {
	t.Helper()

	catalog, err := tradecore.NewCatalog([]string{"Alpha", "Beta", "Gamma"})
	if err != nil {
		t.Fatalf("new catalog failed: %v", err)
	}

	return catalog
}

func newTestModule(t *testing.T, cfg Config, store tradecore.ListStore, dispatcher *recordingDispatcher) *Module {
	t.Helper()

	return newTestModuleWithLedger(t, cfg, store, tradecore.NewMemoryLedger(), dispatcher)
}

func newTestModuleWithLedger(
	t *testing.T,
	cfg Config,
	store tradecore.ListStore,
	ledger tradecore.Ledger,
	dispatcher *recordingDispatcher,
) *Module {
	t.Helper()

	module, err := New(cfg, testCatalog(t), store, ledger,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new module failed: %v", err)
	}
	err = module.OnRegister(context.Background(), moduleRuntimeStub{
		registry: serviceRegistryStub{values: map[string]any{otogi.ServiceSinkDispatcher: dispatcher}},
	})
	if err != nil {
		t.Fatalf("register module failed: %v", err)
	}
	t.Cleanup(func() {
		_ = module.OnShutdown(context.Background())
	})

	return module
}

func shutdownModule(t *testing.T, module *Module) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := module.OnShutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

// seedMatch stores a two-way match between members 100 and 200.
func seedMatch(t *testing.T, store tradecore.ListStore) {
	t.Helper()

	ctx := context.Background()
	seeds := []struct {
		member string
		kind   tradecore.Kind
		id     string
	}{
		{member: "100", kind: tradecore.KindWant, id: "Alpha"},
		{member: "100", kind: tradecore.KindHave, id: "Beta"},
		{member: "200", kind: tradecore.KindWant, id: "Beta"},
		{member: "200", kind: tradecore.KindHave, id: "Alpha"},
	}
	for _, seed := range seeds {
		if _, err := store.AddItems(ctx, seed.member, seed.kind, itemsOf(seed.id)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func itemsOf(ids ...string) []tradecore.Item {
	items := make([]tradecore.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, tradecore.Item{ID: id})
	}

	return items
}

func assertSet(t *testing.T, label string, set tradecore.ItemSet, want []string) {
	t.Helper()

	got := set.Sorted()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
}

func canonicalName(text string) string {
	candidate, _, err := otogi.ParseCommandCandidate(text)
	if err != nil {
		panic(err)
	}
	for _, command := range (&Module{}).Spec().Commands {
		if command.Name == candidate.Name {
			return command.Name
		}
		for _, alias := range command.Aliases {
			if alias == candidate.Name {
				return command.Name
			}
		}
	}

	return candidate.Name
}

func newTradeCommandEvent(conversationID string, actor otogi.Actor, text string) *otogi.Event {
	candidate, matched, err := otogi.ParseCommandCandidate(text)
	if err != nil {
		panic(err)
	}
	if !matched {
		panic("newTradeCommandEvent expects command text")
	}

	return &otogi.Event{
		ID:         "event-" + candidate.Name,
		Kind:       otogi.EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Source: otogi.EventSource{
			Platform: otogi.PlatformTelegram,
			ID:       "tg-main",
		},
		Conversation: otogi.Conversation{
			ID:    conversationID,
			Type:  otogi.ConversationTypeGroup,
			Title: "trading",
		},
		Actor: actor,
		Article: &otogi.Article{
			ID:   "msg-1",
			Text: text,
		},
		Command: &otogi.CommandInvocation{
			Name:            candidate.Name,
			Value:           strings.Join(candidate.Tokens, " "),
			SourceEventID:   "source-event-1",
			SourceEventKind: otogi.EventKindArticleCreated,
			RawInput:        text,
		},
	}
}

type recordingDispatcher struct {
	mu      sync.Mutex
	sent    []otogi.SendMessageRequest
	deleted []otogi.DeleteMessageRequest
	sendErr error
	delErr  error

	// sendDelay holds each send before recording it; sending is closed
	// when the first delayed send begins.
	sendDelay   time.Duration
	sending     chan struct{}
	sendingOnce sync.Once
}

func (d *recordingDispatcher) SendMessage(
	ctx context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	if d.sendDelay > 0 {
		d.sendingOnce.Do(func() {
			if d.sending != nil {
				close(d.sending)
			}
		})
		select {
		case <-time.After(d.sendDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sent = append(d.sent, request)
	if d.sendErr != nil {
		return nil, d.sendErr
	}

	return &otogi.OutboundMessage{ID: "sent", Target: request.Target}, nil
}

func (d *recordingDispatcher) DeleteMessage(_ context.Context, request otogi.DeleteMessageRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.deleted = append(d.deleted, request)

	return d.delErr
}

func (d *recordingDispatcher) sentTo(conversationID string) []otogi.SendMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	matched := make([]otogi.SendMessageRequest, 0)
	for _, request := range d.sent {
		if request.Target.Conversation.ID == conversationID {
			matched = append(matched, request)
		}
	}

	return matched
}

func (d *recordingDispatcher) deletions() []otogi.DeleteMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]otogi.DeleteMessageRequest(nil), d.deleted...)
}

type moduleRuntimeStub struct {
	registry otogi.ServiceRegistry
}

func (s moduleRuntimeStub) Services() otogi.ServiceRegistry {
	return s.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	otogi.InterestSet,
	otogi.SubscriptionSpec,
	otogi.EventHandler,
) (otogi.Subscription, error) {
	return nil, nil
}

type serviceRegistryStub struct {
	values map[string]any
}

func (serviceRegistryStub) Register(string, any) error {
	return nil
}

func (s serviceRegistryStub) Resolve(name string) (any, error) {
	value, ok := s.values[name]
	if !ok {
		return nil, otogi.ErrServiceNotFound
	}

	return value, nil
}
