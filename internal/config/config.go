// Package config loads curator settings from the TOML config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ActionSpec declares a server action endpoint. The URL is a path template
// with a single "{id}" token substituted with the target object id. When a
// followup URL is present, the action polls it until the configured response
// field reads true.
type ActionSpec struct {
	URL              string
	Method           string
	Confirm          bool
	FollowupURL      string
	FollowupInterval time.Duration
	DoneField        string
}

// Config captures everything curator needs to talk to the stacks server.
type Config struct {
	APIBind      string
	Container    string
	PollInterval time.Duration
	LedgerPath   string
	LedgerTTL    time.Duration
	Actions      map[string]ActionSpec
}

const (
	defaultConfigPath  = "~/.config/curator/config.toml"
	defaultLedgerPath  = "~/.local/share/curator/moves.json"
	defaultAPIBind     = "127.0.0.1:7060"
	defaultPollSeconds = 5
	defaultTTLDays     = 14
)

type rawAction struct {
	URL             string `toml:"url"`
	Method          string `toml:"method"`
	Confirm         bool   `toml:"confirm"`
	FollowupURL     string `toml:"followup_url"`
	FollowupSeconds int    `toml:"followup_seconds"`
	DoneField       string `toml:"done_field"`
}

type rawConfig struct {
	APIBind       string               `toml:"api_bind"`
	Container     string               `toml:"container"`
	PollSeconds   int                  `toml:"poll_seconds"`
	LedgerPath    string               `toml:"ledger_path"`
	LedgerTTLDays int                  `toml:"ledger_ttl_days"`
	Actions       map[string]rawAction `toml:"actions"`
}

// Load locates and parses the curator config, falling back to defaults when
// the file is missing. Actions are validated eagerly so a bad declaration
// fails at startup rather than mid-operation.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if bind := strings.TrimSpace(raw.APIBind); bind != "" {
		cfg.APIBind = bind
	}
	if container := strings.TrimSpace(raw.Container); container != "" {
		cfg.Container = container
	}
	if raw.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}
	if ledgerPath := strings.TrimSpace(raw.LedgerPath); ledgerPath != "" {
		cfg.LedgerPath = ledgerPath
	}
	if raw.LedgerTTLDays > 0 {
		cfg.LedgerTTL = time.Duration(raw.LedgerTTLDays) * 24 * time.Hour
	} else if raw.LedgerTTLDays < 0 {
		cfg.LedgerTTL = -1
	}
	cfg.LedgerPath = mustExpand(cfg.LedgerPath)

	for name, action := range raw.Actions {
		spec, err := buildAction(name, action)
		if err != nil {
			return Config{}, err
		}
		cfg.Actions[name] = spec
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		APIBind:      defaultAPIBind,
		PollInterval: defaultPollSeconds * time.Second,
		LedgerPath:   mustExpand(defaultLedgerPath),
		LedgerTTL:    defaultTTLDays * 24 * time.Hour,
		Actions:      map[string]ActionSpec{},
	}
}

func buildAction(name string, raw rawAction) (ActionSpec, error) {
	url := strings.TrimSpace(raw.URL)
	if url == "" {
		return ActionSpec{}, fmt.Errorf("action %q: url is required", name)
	}
	spec := ActionSpec{
		URL:         url,
		Method:      strings.ToUpper(strings.TrimSpace(raw.Method)),
		Confirm:     raw.Confirm,
		FollowupURL: strings.TrimSpace(raw.FollowupURL),
		DoneField:   strings.TrimSpace(raw.DoneField),
	}
	if spec.Method == "" {
		spec.Method = "POST"
	}
	if spec.FollowupURL != "" && spec.DoneField == "" {
		return ActionSpec{}, fmt.Errorf("action %q: followup_url requires done_field", name)
	}
	if raw.FollowupSeconds > 0 {
		spec.FollowupInterval = time.Duration(raw.FollowupSeconds) * time.Second
	}
	return spec, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
