package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/runner"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [problem...]",
		Short: "Re-run problems whenever their files change",
		Long: `Watch the problem files, and the predicate files they reference, and
re-run the selected problems after every change.

Invalid edits are reported and skipped; the previous results stay on
screen until the files parse again. Stop with Ctrl+C.`,
		Example: `  # Re-run the flags problem while editing its predicate
  coreprobe watch flags

  # Watch a directory with a longer debounce
  coreprobe watch -f ./problems --debounce 2s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			log := logger()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			opts := []runner.Option{runner.WithTelemetry(tel)}
			if store != nil {
				defer store.Close()
				opts = append(opts, runner.WithStore(store))
			}
			r := runner.New(opts...)

			runSelected := func(parsed *config.ParsedProblems) error {
				if err := parsed.Err(); err != nil {
					fmt.Fprintf(out, "✗ %v\n", err)
					return nil
				}
				problems, err := selectProblems(parsed, args)
				if err != nil {
					return err
				}
				for _, p := range problems {
					if err := tel.Events.PublishProblemReloaded(p.Name, p.Source); err != nil {
						log.Warn().Err(err).Msg("Failed to publish reload event")
					}
				}

				results, err := r.RunAll(ctx, problems)
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
				if err != nil {
					log.Warn().Err(err).Msg("Some runs failed")
				}
				return nil
			}

			loader := config.NewLoader(log)
			parsed, err := loader.Load(ctx, problemFiles...)
			if err != nil {
				return err
			}
			if err := runSelected(parsed); err != nil {
				return err
			}

			watcher := config.NewWatcher(loader, log)
			watcher.SetDebounce(debounce)
			if err := watcher.Watch(ctx, problemFiles, runSelected); err != nil {
				return err
			}
			defer watcher.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait for changes to settle before re-running")

	return cmd
}
