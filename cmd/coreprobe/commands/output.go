package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/engine"
	"github.com/coreprobe/coreprobe/pkg/runner"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderers maps problem names to their subset renderer.
func renderers(problems []*config.Problem) map[string]engine.Renderer[string] {
	out := make(map[string]engine.Renderer[string], len(problems))
	for _, p := range problems {
		// templates were checked when the problems were loaded
		if render, err := p.Renderer(); err == nil && render != nil {
			out[p.Name] = render
		}
	}
	return out
}

func rendererFor(renders map[string]engine.Renderer[string], problem string) engine.Renderer[string] {
	if render, ok := renders[problem]; ok {
		return render
	}
	return engine.DefaultRenderer[string]
}

func printResult(w io.Writer, res *runner.Result, render engine.Renderer[string]) {
	fmt.Fprintf(w, "%s [%s] %s  run %s\n", res.Problem, res.Strategy, res.Status, res.RunID)
	for i, core := range res.Cores {
		fmt.Fprintf(w, "  core %d: %s\n", i+1, render(core))
	}
	if res.HasIntersection {
		fmt.Fprintf(w, "  intersection: %s\n", render(res.Intersection))
	}
	fmt.Fprintf(w, "  %d cores, %d checks (%d evaluated, %d cached) in %s\n",
		len(res.Cores), res.Stats.TotalChecks, res.Stats.ActualChecks, res.Stats.CacheHits(), res.Duration)
	if res.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", res.Error)
	}
}
