package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/curatorhq/curator/internal/monitor"
)

func newMoveCmd(app *App) *cobra.Command {
	var (
		dest  string
		label string
	)

	cmd := &cobra.Command{
		Use:   "move --to <parent> [--label <text>] <id>...",
		Short: "Move objects into another container",
		Long: "Submits a server-side move job and records it in the local move " +
			"ledger. A running curator console picks up completion and shows the " +
			"finished notification, attributed to the given label.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			ids := args
			if label == "" {
				label = dest
			}

			jobID, err := client.SubmitMove(cmd.Context(), dest, ids)
			if err != nil {
				return fmt.Errorf("submit move: %w", err)
			}

			ledger, err := monitor.NewFileLedger(cfg.LedgerPath)
			if err != nil {
				return fmt.Errorf("open move ledger: %w", err)
			}
			if err := ledger.Record(jobID, label); err != nil {
				// The move is already submitted; a lost ledger entry only
				// suppresses the completion notification.
				log.Printf("record move in ledger: %v", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "move job %s: %d object(s) -> %s\n", jobID, len(ids), label)
			return nil
		},
	}

	cmd.Flags().StringVar(&dest, "to", "", "destination container id")
	cmd.Flags().StringVar(&label, "label", "", "destination name shown in the completion notification")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
