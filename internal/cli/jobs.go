package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/stacks"
)

func newJobsCmd(app *App) *cobra.Command {
	var showDetails bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List active and recently finished move jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			listing, err := client.ListJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			// Labels for jobs this machine submitted
			labels := map[string]string{}
			if ledger, err := monitor.NewFileLedger(cfg.LedgerPath); err == nil {
				for _, id := range append(append([]string{}, listing.Active...), listing.Complete...) {
					if label, ok := ledger.Lookup(id); ok {
						labels[id] = label
					}
				}
			}

			var details map[string]stacks.JobDetail
			if showDetails && len(listing.Complete) > 0 {
				details, err = client.JobDetails(cmd.Context(), listing.Complete)
				if err != nil {
					return fmt.Errorf("fetch job details: %w", err)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tSTATE\tDESTINATION\tOBJECTS\tFINISHED")
			for _, id := range listing.Active {
				fmt.Fprintf(w, "%s\tactive\t%s\t\t\n", id, labels[id])
			}
			for _, id := range listing.Complete {
				moved, finished := "", ""
				if detail, ok := details[id]; ok {
					moved = fmt.Sprintf("%d", len(detail.Moved))
					if ts := detail.ParsedFinishedAt(); !ts.IsZero() {
						finished = ts.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%s\tcomplete\t%s\t%s\t%s\n", id, labels[id], moved, finished)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showDetails, "details", false, "Fetch per-job detail for finished jobs")

	return cmd
}
