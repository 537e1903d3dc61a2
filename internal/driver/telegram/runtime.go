package telegram

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

const (
	defaultRuntimeSessionFile  = ".cache/telegram/session.json"
	defaultRuntimePeerFileName = "peers.json"
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeAuthTimeout  = time.Minute
	defaultRuntimeUpdateBuffer = 256
)

// runtimeConfig is the driver's JSON config block.
type runtimeConfig struct {
	AppID             int    `json:"app_id"`
	AppHash           string `json:"app_hash"`
	BotToken          string `json:"bot_token"`
	SessionFile       string `json:"session_file"`
	PeerCacheFile     string `json:"peer_cache_file"`
	PeerFlushInterval string `json:"peer_flush_interval"`
	PublishTimeout    string `json:"publish_timeout"`
	AuthTimeout       string `json:"auth_timeout"`
	UpdateBuffer      int    `json:"update_buffer"`
}

type parsedRuntimeConfig struct {
	appID             int
	appHash           string
	botToken          string
	sessionFile       string
	peerCacheFile     string
	peerFlushInterval time.Duration
	publishTimeout    time.Duration
	authTimeout       time.Duration
	updateBuffer      int
}

// BuildRuntimeFromConfig wires the gotd client, update source, driver and
// outbound dispatcher for one configured Telegram bot.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (otogi.EventSource, otogi.Driver, otogi.SinkDispatcher, error) {
	fail := func(step string, err error) (otogi.EventSource, otogi.Driver, otogi.SinkDispatcher, error) {
		return otogi.EventSource{}, nil, nil, fmt.Errorf("%s: %w", step, err)
	}

	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return fail("parse telegram runtime config", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionStorage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return fail("new gotd session storage", err)
	}
	peers, err := OpenPeerCache(cfg.peerCacheFile)
	if err != nil {
		return fail("open telegram peer cache", err)
	}
	logger.Info("telegram peer cache loaded", "path", cfg.peerCacheFile, "peers", peers.Len())

	updateChannel := NewGotdUpdateChannel(cfg.updateBuffer)
	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updateChannel,
		SessionStorage: sessionStorage,
	})
	reportAsync := func(ctx context.Context, err error) {
		logger.ErrorContext(ctx, "telegram driver async error", "error", err)
	}

	bot := gotdBotClient{
		client: client,
		authenticate: func(ctx context.Context) error {
			return authenticateBot(ctx, logger, client.Auth(), cfg)
		},
	}
	source, err := NewGotdSource(bot, updateChannel, NewDefaultGotdUpdateMapper(WithPeerCache(peers)), reportAsync)
	if err != nil {
		return fail("new gotd source", err)
	}

	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(reportAsync),
		WithPeerPersistence(peers, cfg.peerFlushInterval),
	)
	if err != nil {
		return fail("new telegram driver", err)
	}

	ref := otogi.EventSource{Platform: DriverPlatform, ID: name}
	sink, err := NewOutboundDispatcher(
		client,
		peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(ref),
	)
	if err != nil {
		return fail("new telegram sink dispatcher", err)
	}

	return ref, driver, sink, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var file runtimeConfig
	if err := json.Unmarshal(raw, &file); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:        file.AppID,
		appHash:      strings.TrimSpace(file.AppHash),
		botToken:     strings.TrimSpace(file.BotToken),
		sessionFile:  cmp.Or(strings.TrimSpace(file.SessionFile), defaultRuntimeSessionFile),
		updateBuffer: file.UpdateBuffer,
	}
	if cfg.updateBuffer <= 0 {
		cfg.updateBuffer = defaultRuntimeUpdateBuffer
	}
	// Peers sit next to the session by default: both identify this bot.
	cfg.peerCacheFile = cmp.Or(
		strings.TrimSpace(file.PeerCacheFile),
		filepath.Join(filepath.Dir(cfg.sessionFile), defaultRuntimePeerFileName),
	)

	durations := []struct {
		field    string
		raw      string
		fallback time.Duration
		target   *time.Duration
	}{
		{"publish_timeout", file.PublishTimeout, defaultRuntimePublishDelay, &cfg.publishTimeout},
		{"auth_timeout", file.AuthTimeout, defaultRuntimeAuthTimeout, &cfg.authTimeout},
		{"peer_flush_interval", file.PeerFlushInterval, defaultPeerFlushInterval, &cfg.peerFlushInterval},
	}
	for _, duration := range durations {
		parsed, err := parsePositiveDuration(duration.field, duration.raw, duration.fallback)
		if err != nil {
			return parsedRuntimeConfig{}, err
		}
		*duration.target = parsed
	}

	switch {
	case cfg.appID <= 0:
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	case cfg.appHash == "":
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	case cfg.botToken == "":
		return parsedRuntimeConfig{}, fmt.Errorf("bot_token is required")
	}

	return cfg, nil
}

func parsePositiveDuration(field string, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("parse %s: %w", field, err)
	case parsed <= 0:
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return parsed, nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// gotdBotClient authenticates before handing the session to the update loop.
type gotdBotClient struct {
	client       *gotdtelegram.Client
	authenticate func(ctx context.Context) error
}

// Run executes client runtime and performs authentication before invoking fn.
func (c gotdBotClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if c.client == nil {
		return fmt.Errorf("run gotd bot client: nil client")
	}
	if fn == nil {
		return fmt.Errorf("run gotd bot client: nil run callback")
	}

	if err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("authenticate gotd client: %w", err)
		}
		if err := fn(runCtx); err != nil {
			return fmt.Errorf("run gotd client callback: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("run gotd bot client: %w", err)
	}

	return nil
}

// botAuthenticator is the subset of the gotd auth client used for bot login.
type botAuthenticator interface {
	Status(ctx context.Context) (*auth.Status, error)
	Bot(ctx context.Context, token string) (*tg.AuthAuthorization, error)
}

func authenticateBot(
	ctx context.Context,
	logger *slog.Logger,
	authenticator botAuthenticator,
	cfg parsedRuntimeConfig,
) error {
	authCtx, cancel := context.WithTimeout(ctx, cfg.authTimeout)
	defer cancel()

	status, err := authenticator.Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		logger.InfoContext(ctx, "telegram session restored from local storage", "session_file", cfg.sessionFile)
		return nil
	}

	if _, err := authenticator.Bot(authCtx, cfg.botToken); err != nil {
		return fmt.Errorf("authenticate bot: %w", err)
	}
	logger.InfoContext(ctx, "telegram authorized with bot token", "session_file", cfg.sessionFile)

	return nil
}
