package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/engine"
	"github.com/coreprobe/coreprobe/pkg/runner"
)

func newRunCommand() *cobra.Command {
	var (
		strategy string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "run [problem...]",
		Short: "Enumerate the minimal cores of problems",
		Long: `Enumerate every minimal core of one or more problems.

Each run:
  - Builds the problem's predicate
  - Checks the whole universe, then enumerates cores
  - Reports the cores and the elements common to all of them
  - Records the run in the history database

Without arguments every problem in the problem files is run.`,
		Example: `  # Run every problem in coreprobe.yaml
  coreprobe run

  # Run one problem from a directory of problem files
  coreprobe run flags -f ./problems

  # Force the exhaustive strategy and print JSON
  coreprobe run flags --strategy exhaustive --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var override engine.Strategy
			if strategy != "" {
				s, err := engine.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				override = s
			}

			problems, err := loadProblems(ctx, args)
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				return fmt.Errorf("no problems defined in %v", problemFiles)
			}
			if override != "" {
				for _, p := range problems {
					p.Strategy = string(override)
				}
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			opts := []runner.Option{runner.WithTelemetry(tel), runner.WithParallelism(parallel)}
			if store != nil {
				defer store.Close()
				opts = append(opts, runner.WithStore(store))
			}

			results, runErr := runner.New(opts...).RunAll(ctx, problems)

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, results); err != nil {
					return err
				}
			} else {
				renders := renderers(problems)
				for _, res := range results {
					printResult(out, res, rendererFor(renders, res.Problem))
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "override the strategy (punch, exhaustive)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "problems enumerated at once")

	return cmd
}
