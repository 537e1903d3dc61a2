package trade

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ex-otogi-trade/internal/trade/backend"
	"ex-otogi-trade/pkg/otogi"
)

const (
	defaultSweepTimeout = 30 * time.Second

	// StoreMemory keeps lists and the ledger in process memory.
	StoreMemory = backend.KindMemory
	// StoreSQLite persists lists and the ledger in one SQLite database file.
	StoreSQLite = backend.KindSQLite
	// StoreFile persists lists and the ledger as JSON documents in a directory.
	StoreFile = backend.KindFile
)

// Config configures trade module behavior.
type Config struct {
	// CatalogFile optionally names a YAML or JSON catalog; empty uses the built-in one.
	CatalogFile string
	// Store selects the persistence backend: memory, sqlite or file.
	Store string
	// StorePath is the database file or directory used by durable stores.
	StorePath string
	// Channels restricts commands to conversations.
	Channels Channels
	// Announce optionally receives a public post for every new match.
	Announce *otogi.OutboundTarget
	// DeleteNonCommands removes plain articles from the want and have channels.
	DeleteNonCommands bool
	// SweepInterval runs periodic sweeps; zero disables the timer.
	SweepInterval time.Duration
	// SweepTimeout bounds one sweep run.
	SweepTimeout time.Duration
}

// Channels maps command groups to conversation IDs.
//
// An empty ID leaves that group unrestricted.
type Channels struct {
	// Want hosts /addwant.
	Want string
	// Have hosts /addhave.
	Have string
	// Manage hosts /removewant, /removehave and /mylists.
	Manage string
}

type fileConfig struct {
	CatalogFile          string            `json:"catalog_file"`
	Store                string            `json:"store"`
	StorePath            string            `json:"store_path"`
	SweepInterval        string            `json:"sweep_interval"`
	SweepTimeout         string            `json:"sweep_timeout"`
	AnnounceConversation *fileConversation `json:"announce_conversation"`
	Channels             fileChannels      `json:"channels"`
	DeleteNonCommands    bool              `json:"delete_non_commands"`
}

type fileConversation struct {
	Platform string `json:"platform"`
	Sink     string `json:"sink"`
	ID       string `json:"id"`
	Type     string `json:"type"`
}

type fileChannels struct {
	Want   string `json:"want"`
	Have   string `json:"have"`
	Manage string `json:"manage"`
}

// DefaultConfig returns an unrestricted in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Store:        StoreMemory,
		SweepTimeout: defaultSweepTimeout,
	}
}

// ParseConfig decodes the trade section of the bot configuration.
//
// An empty payload yields DefaultConfig.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}

	var parsed fileConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Config{}, fmt.Errorf("parse trade config: %w", err)
	}

	cfg.CatalogFile = strings.TrimSpace(parsed.CatalogFile)
	if store := strings.ToLower(strings.TrimSpace(parsed.Store)); store != "" {
		cfg.Store = store
	}
	cfg.StorePath = strings.TrimSpace(parsed.StorePath)
	cfg.DeleteNonCommands = parsed.DeleteNonCommands
	cfg.Channels = Channels{
		Want:   strings.TrimSpace(parsed.Channels.Want),
		Have:   strings.TrimSpace(parsed.Channels.Have),
		Manage: strings.TrimSpace(parsed.Channels.Manage),
	}

	if rawInterval := strings.TrimSpace(parsed.SweepInterval); rawInterval != "" {
		interval, err := time.ParseDuration(rawInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse trade config sweep_interval: %w", err)
		}
		cfg.SweepInterval = interval
	}
	if rawTimeout := strings.TrimSpace(parsed.SweepTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse trade config sweep_timeout: %w", err)
		}
		cfg.SweepTimeout = timeout
	}

	if announce := parsed.AnnounceConversation; announce != nil {
		target := &otogi.OutboundTarget{
			Conversation: otogi.Conversation{
				ID:   strings.TrimSpace(announce.ID),
				Type: otogi.ConversationType(strings.TrimSpace(announce.Type)),
			},
		}
		if target.Conversation.Type == "" {
			target.Conversation.Type = otogi.ConversationTypeGroup
		}
		if platform, sink := strings.TrimSpace(announce.Platform), strings.TrimSpace(announce.Sink); platform != "" || sink != "" {
			target.Sink = &otogi.EventSource{Platform: otogi.Platform(platform), ID: sink}
		}
		cfg.Announce = target
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("parse trade config: %w", err)
	}

	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite, StoreFile:
		if c.StorePath == "" {
			return fmt.Errorf("store_path is required for %s store", c.Store)
		}
	default:
		return fmt.Errorf("unsupported store %q", c.Store)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must be >= 0")
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("sweep_timeout must be > 0")
	}
	if c.Announce != nil {
		if err := c.Announce.Validate(); err != nil {
			return fmt.Errorf("announce_conversation: %w", err)
		}
	}

	return nil
}

func (c Config) clone() Config {
	cloned := c
	if c.Announce != nil {
		announce := *c.Announce
		if c.Announce.Sink != nil {
			sink := *c.Announce.Sink
			announce.Sink = &sink
		}
		cloned.Announce = &announce
	}

	return cloned
}
