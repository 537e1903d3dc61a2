package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"ex-otogi-trade/internal/driver"
	"ex-otogi-trade/internal/driver/telegram"
	"ex-otogi-trade/internal/kernel"
	"ex-otogi-trade/modules/trade"
)

const (
	envConfigFile       = "OTOGI_CONFIG_FILE"
	envLogLevel         = "OTOGI_LOG_LEVEL"
	envTelegramAppID    = "OTOGI_TELEGRAM_APP_ID"
	envTelegramAppHash  = "OTOGI_TELEGRAM_APP_HASH"
	envTelegramBotToken = "OTOGI_TELEGRAM_BOT_TOKEN"
)

// configSearchPath is tried in order when OTOGI_CONFIG_FILE is unset.
var configSearchPath = []string{"config/bot.json", "bin/config/bot.json"}

type appConfig struct {
	logLevel slog.Level
	kernel   kernel.Limits
	drivers  []driver.Definition
	trade    trade.Config
}

// defaultAppConfig gives sends and store writes more room than the kernel
// defaults and runs two workers per subscription.
func defaultAppConfig() appConfig {
	limits := kernel.DefaultLimits()
	limits.ModuleHookTimeout = 3 * time.Second
	limits.HandlerTimeout = 5 * time.Second
	limits.SubscriptionWorkers = 2

	return appConfig{
		logLevel: slog.LevelInfo,
		kernel:   limits,
		drivers:  []driver.Definition{},
		trade:    trade.DefaultConfig(),
	}
}

// loadConfig layers the config file and then the environment over the
// defaults, and validates the result against the driver registry.
func loadConfig(registry *driver.Registry) (appConfig, error) {
	path, err := findConfigFile()
	if err != nil {
		return appConfig{}, err
	}

	cfg := defaultAppConfig()
	if err := cfg.applyFile(path); err != nil {
		return appConfig{}, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return appConfig{}, err
	}
	if err := cfg.validate(registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", path, err)
	}

	return cfg, nil
}

func findConfigFile() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(envConfigFile)); explicit != "" {
		return explicit, nil
	}

	for _, candidate := range configSearchPath {
		info, err := os.Stat(candidate)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		case info.IsDir():
			return "", fmt.Errorf("config file %s is a directory", candidate)
		}
		return candidate, nil
	}

	return "", fmt.Errorf(
		"config file not found; create one of %s or set %s",
		strings.Join(configSearchPath, ", "),
		envConfigFile,
	)
}

// fileConfig is the on-disk layout. The file is JSON with comments and
// trailing commas allowed.
type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	Drivers  []fileDriverEntry `json:"drivers"`
	Trade    json.RawMessage   `json:"trade"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

func (c *appConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	data, err = hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if raw := strings.TrimSpace(parsed.LogLevel); raw != "" {
		if c.logLevel, err = parseLogLevel(raw); err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
	}
	if err := parsed.Kernel.applyTo(&c.kernel); err != nil {
		return err
	}

	c.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		definition, err := entry.definition()
		if err != nil {
			return fmt.Errorf("parse drivers[%d].%w", index, err)
		}
		c.drivers = append(c.drivers, definition)
	}

	if c.trade, err = trade.ParseConfig(parsed.Trade); err != nil {
		return fmt.Errorf("parse trade: %w", err)
	}

	return nil
}

// applyTo overrides the limits that are set. Every value must be positive.
func (k fileKernelConfig) applyTo(limits *kernel.Limits) error {
	durations := map[string]struct {
		raw    string
		target *time.Duration
	}{
		"module_hook_timeout": {k.ModuleHookTimeout, &limits.ModuleHookTimeout},
		"shutdown_timeout":    {k.ShutdownTimeout, &limits.ShutdownTimeout},
		"handler_timeout":     {k.HandlerTimeout, &limits.HandlerTimeout},
	}
	for field, duration := range durations {
		raw := strings.TrimSpace(duration.raw)
		if raw == "" {
			continue
		}
		value, err := time.ParseDuration(raw)
		if err == nil && value <= 0 {
			err = errors.New("must be > 0")
		}
		if err != nil {
			return fmt.Errorf("parse kernel.%s: %w", field, err)
		}
		*duration.target = value
	}

	counts := map[string]struct {
		raw    *int
		target *int
	}{
		"subscription_buffer":  {k.SubscriptionBuffer, &limits.SubscriptionBuffer},
		"subscription_workers": {k.SubscriptionWorkers, &limits.SubscriptionWorkers},
	}
	for field, count := range counts {
		if count.raw == nil {
			continue
		}
		if *count.raw <= 0 {
			return fmt.Errorf("parse kernel.%s: must be > 0", field)
		}
		*count.target = *count.raw
	}

	return nil
}

// definition converts an entry; drivers are enabled unless said otherwise.
// Errors name the offending field relative to the entry.
func (e fileDriverEntry) definition() (driver.Definition, error) {
	if len(e.Config) == 0 {
		return driver.Definition{}, errors.New("config: required")
	}

	definition := driver.Definition{
		Name:    strings.TrimSpace(e.Name),
		Type:    strings.TrimSpace(e.Type),
		Enabled: e.Enabled == nil || *e.Enabled,
		Config:  append([]byte(nil), e.Config...),
	}

	return definition, nil
}

// applyEnv lets deployments keep secrets out of the config file. Telegram
// credentials apply to every telegram driver entry.
func (c *appConfig) applyEnv(getenv func(string) string) error {
	lookup := func(name string) string { return strings.TrimSpace(getenv(name)) }

	if raw := lookup(envLogLevel); raw != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envLogLevel, err)
		}
		c.logLevel = level
	}

	overrides := make(map[string]any)
	if raw := lookup(envTelegramAppID); raw != "" {
		appID, err := strconv.Atoi(raw)
		if err != nil || appID <= 0 {
			return fmt.Errorf("parse %s: must be a positive integer", envTelegramAppID)
		}
		overrides["app_id"] = appID
	}
	for key, name := range map[string]string{"app_hash": envTelegramAppHash, "bot_token": envTelegramBotToken} {
		if value := lookup(name); value != "" {
			overrides[key] = value
		}
	}
	if len(overrides) == 0 {
		return nil
	}

	for index := range c.drivers {
		definition := &c.drivers[index]
		if definition.Type != telegram.DriverType {
			continue
		}
		merged, err := mergeDriverConfig(definition.Config, overrides)
		if err != nil {
			return fmt.Errorf("apply telegram overrides to drivers[%s]: %w", definition.Name, err)
		}
		definition.Config = merged
	}

	return nil
}

// mergeDriverConfig replaces top-level keys of a driver's JSON object.
func mergeDriverConfig(raw []byte, overrides map[string]any) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode driver config: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, len(overrides))
	}
	for key, value := range overrides {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode override %s: %w", key, err)
		}
		fields[key] = encoded
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode driver config: %w", err)
	}

	return merged, nil
}

func (c *appConfig) validate(registry *driver.Registry) error {
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	names := make(map[string]bool, len(c.drivers))
	enabled := 0
	for _, definition := range c.drivers {
		switch {
		case definition.Name == "":
			return fmt.Errorf("drivers[].name is required")
		case definition.Type == "":
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		case names[definition.Name]:
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		names[definition.Name] = true
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}
	if err := c.trade.Validate(); err != nil {
		return fmt.Errorf("trade: %w", err)
	}

	return nil
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLogLevel(raw string) (slog.Level, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unsupported level %q", raw)
	}

	return level, nil
}
