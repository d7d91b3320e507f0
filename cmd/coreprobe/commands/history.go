package commands

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/stores"
)

// runDetails is the JSON form of history --run.
type runDetails struct {
	Run          *stores.Run          `json:"run"`
	Cores        []*stores.Core       `json:"cores"`
	Intersection *stores.Intersection `json:"intersection,omitempty"`
}

func newHistoryCommand() *cobra.Command {
	var (
		runID   string
		problem string
		status  string
		limit   int
		remove  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List the runs recorded in the history database, most recent first, or
show the cores and intersection of a single run.`,
		Example: `  # List the last 20 runs
  coreprobe history

  # List failed runs of one problem
  coreprobe history --problem flags --status failed

  # Show one run in detail
  coreprobe history --run 3f2c9a1e-...

  # Delete a run and its cores
  coreprobe history --run 3f2c9a1e-... --delete`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if dbPath == "" {
				return errors.New("history requires --db")
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID == "" {
				if remove {
					return errors.New("--delete requires --run")
				}
				runs, err := store.ListRuns(ctx, stores.RunFilter{
					Problem: problem,
					Status:  stores.RunStatus(status),
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, runs)
				}
				printRuns(cmd, runs)
				return nil
			}

			if remove {
				if err := store.DeleteRun(ctx, runID); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Deleted run %s\n", runID)
				return nil
			}

			details := runDetails{}
			details.Run, err = store.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			details.Cores, err = store.ListCores(ctx, runID)
			if err != nil {
				return err
			}
			details.Intersection, err = store.GetIntersection(ctx, runID)
			if err != nil && !errors.Is(err, stores.ErrNotFound) {
				return err
			}

			if jsonOutput {
				return printJSON(out, details)
			}
			printRunDetails(cmd, details)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show a single run")
	cmd.Flags().StringVar(&problem, "problem", "", "only runs of this problem")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (running, completed, failed, canceled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs listed (0 for all)")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the run given by --run")

	return cmd
}

func printRuns(cmd *cobra.Command, runs []*stores.Run) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPROBLEM\tSTRATEGY\tSTATUS\tCORES\tCHECKS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			r.ID, r.Problem, r.Strategy, r.Status, r.CoreCount,
			r.ActualChecks, r.TotalChecks,
			r.StartedAt.Local().Format(time.DateTime), duration)
	}
	_ = tw.Flush()
}

func printRunDetails(cmd *cobra.Command, d runDetails) {
	out := cmd.OutOrStdout()
	r := d.Run

	fmt.Fprintf(out, "Run:      %s\n", r.ID)
	fmt.Fprintf(out, "Problem:  %s\n", r.Problem)
	if r.Source != "" {
		fmt.Fprintf(out, "Source:   %s\n", r.Source)
	}
	fmt.Fprintf(out, "Strategy: %s\n", r.Strategy)
	fmt.Fprintf(out, "Status:   %s\n", r.Status)
	fmt.Fprintf(out, "Universe: %s\n", strings.Join(r.Universe, " "))
	fmt.Fprintf(out, "Checks:   %d (%d evaluated)\n", r.TotalChecks, r.ActualChecks)
	fmt.Fprintf(out, "Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.CompletedAt != nil {
		fmt.Fprintf(out, "Duration: %s\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *r.Error)
	}

	fmt.Fprintf(out, "\nCores (%d):\n", len(d.Cores))
	for _, c := range d.Cores {
		fmt.Fprintf(out, "  %d. {%s}  after %d checks, %s\n",
			c.Seq, strings.Join(c.Elements, " "), c.TotalChecks, c.Elapsed.Round(time.Microsecond))
	}
	if d.Intersection != nil {
		fmt.Fprintf(out, "\nIntersection: {%s}\n", strings.Join(d.Intersection.Elements, " "))
	}
}
