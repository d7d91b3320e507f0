package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/predicates"
)

// validationReport is the JSON form of validate's output.
type validationReport struct {
	Files    []string                 `json:"files"`
	Problems []string                 `json:"problems"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var noBuild bool

	cmd := &cobra.Command{
		Use:   "validate [problem...]",
		Short: "Validate problem files",
		Long: `Validate problem files against the problem schema.

This command checks:
  - YAML, JSON and CUE syntax
  - Schema conformance (CUE schema and field validation)
  - Cross-references such as partitions naming universe elements
  - That each predicate compiles (Starlark, Rego, WASM) or resolves (commands)`,
		Example: `  # Validate coreprobe.yaml
  coreprobe validate

  # Validate a directory without building predicates
  coreprobe validate -f ./problems --no-build`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parsed, err := config.NewLoader(logger()).Load(ctx, problemFiles...)
			if err != nil {
				return err
			}

			report := validationReport{
				Files:  parsed.SourceFiles,
				Errors: parsed.Errors,
			}

			selected, err := selectProblems(parsed, args)
			if err != nil {
				return err
			}
			for _, p := range selected {
				if noBuild {
					report.Problems = append(report.Problems, p.Name)
					continue
				}
				adapter, err := predicates.Build(ctx, p, logger())
				if err != nil {
					report.Errors = append(report.Errors, config.ValidationError{
						File:     p.Source,
						Path:     p.Name + ".predicate",
						Message:  err.Error(),
						Severity: "error",
					})
					continue
				}
				_ = adapter.Close()
				report.Problems = append(report.Problems, p.Name)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, e := range report.Errors {
					fmt.Fprintf(out, "✗ %s\n", e.String())
				}
				for _, name := range report.Problems {
					fmt.Fprintf(out, "✓ %s\n", name)
				}
			}

			if len(report.Errors) > 0 {
				return fmt.Errorf("%d validation error(s)", len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBuild, "no-build", false, "skip compiling predicates")

	return cmd
}
