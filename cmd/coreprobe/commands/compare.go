package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/runner"
)

// errDisagree is returned when the strategies found different cores.
var errDisagree = errors.New("strategies found different cores")

func newCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <problem>",
		Short: "Run both strategies on a problem and compare them",
		Long: `Run the punch and the exhaustive strategy on the same problem, one after
the other, and report their check counts side by side.

The command fails when the strategies disagree on the cores, which
points at a predicate that is not monotone.`,
		Example: `  # Cross-check a small problem
  coreprobe compare flags

  # Cross-check without recording history
  coreprobe compare flags --db ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			problems, err := loadProblems(ctx, args)
			if err != nil {
				return err
			}
			problem := problems[0]

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			opts := []runner.Option{runner.WithTelemetry(tel)}
			if store != nil {
				defer store.Close()
				opts = append(opts, runner.WithStore(store))
			}

			cmp, err := runner.New(opts...).Compare(ctx, problem)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, cmp); err != nil {
					return err
				}
			} else {
				printComparison(cmd, problem, cmp)
			}

			if !cmp.Agree {
				return errDisagree
			}
			return nil
		},
	}

	return cmd
}

func printComparison(cmd *cobra.Command, problem *config.Problem, cmp *runner.Comparison) {
	out := cmd.OutOrStdout()
	render := rendererFor(renderers([]*config.Problem{problem}), problem.Name)

	fmt.Fprintf(out, "%s (%d elements)\n\n", problem.Name, len(problem.Universe))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tCORES\tCHECKS\tEVALUATED\tCACHED\tDURATION")
	for _, res := range []*runner.Result{cmp.Punch, cmp.Exhaustive} {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			res.Strategy, len(res.Cores), res.Stats.TotalChecks, res.Stats.ActualChecks,
			res.Stats.CacheHits(), res.Duration)
	}
	_ = tw.Flush()
	fmt.Fprintln(out)

	if cmp.Agree {
		fmt.Fprintln(out, "✓ strategies agree")
		for i, core := range cmp.Punch.Cores {
			fmt.Fprintf(out, "  core %d: %s\n", i+1, render(core))
		}
		return
	}

	fmt.Fprintln(out, "✗ strategies disagree")
	for _, core := range cmp.Missing {
		fmt.Fprintf(out, "  only exhaustive: %s\n", core)
	}
	for _, core := range cmp.Extra {
		fmt.Fprintf(out, "  only punch: %s\n", core)
	}
}
