// Package cli defines the curator command tree. The bare command starts the
// interactive console; subcommands cover scriptable one-shot operations.
package cli

import (
	"github.com/spf13/cobra"

	console "github.com/curatorhq/curator/internal/app"
)

// App carries flag state shared across commands.
type App struct {
	ConfigPath string
	PrefsPath  string
	Container  string
	PollEvery  int
	Yes        bool
}

// NewRootCmd builds the curator command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "curator",
		Short:        "Terminal console for the stacks repository server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return console.Run(cmd.Context(), console.Options{
				ConfigPath: app.ConfigPath,
				PrefsPath:  app.PrefsPath,
				PollEvery:  app.PollEvery,
				Container:  app.Container,
			})
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Path to config.toml (default ~/.config/curator/config.toml)")
	cmd.PersistentFlags().StringVar(&app.PrefsPath, "prefs", "", "Path to prefs.toml (default ~/.config/curator/prefs.toml)")
	cmd.PersistentFlags().StringVar(&app.Container, "container", "", "Starting container id (overrides config)")
	cmd.Flags().IntVar(&app.PollEvery, "poll", 0, "Job poll interval in seconds (overrides config)")

	cmd.AddCommand(newJobsCmd(app))
	cmd.AddCommand(newMoveCmd(app))
	cmd.AddCommand(newActCmd(app))

	return cmd
}
