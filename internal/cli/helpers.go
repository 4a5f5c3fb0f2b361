package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/stacks"
)

// loadConfig reads the config file and applies flag overrides.
func loadConfig(app *App) (config.Config, error) {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if app.Container != "" {
		cfg.Container = app.Container
	}
	return cfg, nil
}

// newClient builds a stacks client for the configured server.
func newClient(cfg config.Config) (*stacks.Client, error) {
	client, err := stacks.NewClient(cfg.APIBind)
	if err != nil {
		return nil, fmt.Errorf("init stacks client: %w", err)
	}
	return client, nil
}

// printNotifier writes notifications to the command's output streams.
type printNotifier struct {
	out    io.Writer
	errOut io.Writer
}

func (n printNotifier) Notify(severity monitor.Severity, text string) {
	switch severity {
	case monitor.SeverityError:
		fmt.Fprintln(n.errOut, "error:", text)
	default:
		fmt.Fprintln(n.out, text)
	}
}

// doneFieldPredicate reads a boolean field from a followup response. A
// missing or non-boolean field is a malformed response and fails the poll.
func doneFieldPredicate(field string) monitor.DonePredicate {
	return func(response json.RawMessage) (bool, error) {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(response, &payload); err != nil {
			return false, fmt.Errorf("decode followup response: %w", err)
		}
		raw, ok := payload[field]
		if !ok {
			return false, fmt.Errorf("followup response missing field %q", field)
		}
		var done bool
		if err := json.Unmarshal(raw, &done); err != nil {
			return false, fmt.Errorf("followup field %q is not a boolean: %w", field, err)
		}
		return done, nil
	}
}
