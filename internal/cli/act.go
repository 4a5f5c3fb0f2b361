package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/stacks"
)

func newActCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "act <action> <id>",
		Short: "Run a configured server action against an object",
		Long: "Runs an action declared in the [actions] config table. Actions " +
			"with a followup URL poll the server until the configured field " +
			"reports completion.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			name, targetID := args[0], args[1]
			spec, ok := cfg.Actions[name]
			if !ok {
				return fmt.Errorf("unknown action %q (configured: %s)", name, actionNames(cfg))
			}

			action, err := buildAction(cmd, app, client, name, spec, targetID)
			if err != nil {
				return err
			}

			if err := action.Execute(cmd.Context()); err != nil {
				return err
			}
			if action.State() == monitor.ActionFailed {
				return fmt.Errorf("action %q failed", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&app.Yes, "yes", "y", false, "Skip confirmation prompts")

	return cmd
}

// buildAction converts a configured action spec into a one-shot operation.
func buildAction(cmd *cobra.Command, app *App, client *stacks.Client, name string, spec config.ActionSpec, targetID string) (*monitor.Action, error) {
	notifier := printNotifier{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}

	actionCfg := monitor.ActionConfig{
		TargetID: targetID,
		Work: func(ctx context.Context) (json.RawMessage, error) {
			return client.Do(ctx, stacks.RequestDescriptor{
				URLTemplate: spec.URL,
				Method:      spec.Method,
			}, targetID)
		},
		OnComplete: func(json.RawMessage) {
			notifier.Notify(monitor.SeveritySuccess, fmt.Sprintf("%s finished for %s", name, targetID))
		},
		Notifier: notifier,
	}

	if spec.Confirm && !app.Yes {
		actionCfg.Confirm = func() bool {
			return promptYesNo(cmd, fmt.Sprintf("Run %q on %s?", name, targetID))
		}
	}

	if spec.FollowupURL != "" {
		actionCfg.Followup = &monitor.Followup{
			Check: func(ctx context.Context) (json.RawMessage, error) {
				return client.Do(ctx, stacks.RequestDescriptor{
					URLTemplate: spec.FollowupURL,
					Method:      "GET",
				}, targetID)
			},
			Done:     doneFieldPredicate(spec.DoneField),
			Interval: spec.FollowupInterval,
		}
	}

	return monitor.NewAction(actionCfg)
}

func promptYesNo(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func actionNames(cfg config.Config) string {
	names := make([]string, 0, len(cfg.Actions))
	for name := range cfg.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
