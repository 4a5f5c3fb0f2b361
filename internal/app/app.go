// Package app wires configuration, the stacks client, the operation monitor,
// and the TUI together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/prefs"
	"github.com/curatorhq/curator/internal/stacks"
	"github.com/curatorhq/curator/internal/ui"
)

// Options configure the curator application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/curator/prefs.toml
	PollEvery  int    // seconds; zero uses the configured interval
	Container  string // overrides the configured starting container
}

// Run boots the curator TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Container != "" {
		cfg.Container = opts.Container
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		return fmt.Errorf("load prefs: %w", err)
	}

	client, err := stacks.NewClient(cfg.APIBind)
	if err != nil {
		return fmt.Errorf("init stacks client: %w", err)
	}

	ledger, err := monitor.NewFileLedger(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open move ledger: %w", err)
	}

	board := ui.NewBoard()
	notices := ui.NewNotices()

	engine, err := monitor.NewEngine(monitor.EngineConfig{
		Client:    client,
		Ledger:    ledger,
		Notifier:  notices,
		Display:   board,
		Interval:  cfg.PollInterval,
		LedgerTTL: cfg.LedgerTTL,
	})
	if err != nil {
		return fmt.Errorf("init reconciliation engine: %w", err)
	}

	engine.Activate(ctx)
	defer engine.Deactivate()

	uiOpts := ui.Options{
		Context:   ctx,
		Client:    client,
		Engine:    engine,
		Board:     board,
		Notices:   notices,
		Config:    cfg,
		PollTick:  cfg.PollInterval,
		ThemeName: userPrefs.Theme,
		PrefsPath: opts.PrefsPath,
		Prefs:     userPrefs,
	}
	return ui.Run(uiOpts)
}
