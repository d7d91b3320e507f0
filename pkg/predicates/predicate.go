// Package predicates hosts caller-written subset predicates. Each adapter
// turns a script, policy, WASM module or external command into an
// engine.Predicate over element names.
package predicates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreprobe/coreprobe/pkg/engine"
)

// Adapter is a predicate backed by some external resource.
type Adapter interface {
	engine.Predicate[string]

	// Kind returns the adapter kind (starlark, rego, wasm, command, ssh).
	Kind() string

	// Close releases the resources held by the adapter.
	Close() error
}

// AdapterError is returned when an adapter fails to produce a verdict.
type AdapterError struct {
	// Adapter is the adapter kind.
	Adapter string

	// Op is the operation that failed (e.g. "load", "check").
	Op string

	// ExitCode is the exit status of command and ssh predicates, or -1.
	ExitCode int

	// Stderr is the captured standard error, if any.
	Stderr string

	// Err is the underlying error.
	Err error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s predicate %s", e.Adapter, e.Op)
	if e.ExitCode > 1 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// timeoutAdapter bounds every check with its own deadline.
type timeoutAdapter struct {
	Adapter
	timeout time.Duration
}

// WithCheckTimeout bounds each Check of a by timeout. A zero timeout
// returns a unchanged.
func WithCheckTimeout(a Adapter, timeout time.Duration) Adapter {
	if timeout <= 0 {
		return a
	}
	return &timeoutAdapter{Adapter: a, timeout: timeout}
}

func (t *timeoutAdapter) Check(ctx context.Context, subset []string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Adapter.Check(ctx, subset)
}

// encodeSubset renders subset as a JSON array. An empty subset is [] rather
// than null.
func encodeSubset(subset []string) []byte {
	if subset == nil {
		subset = []string{}
	}
	data, _ := json.Marshal(subset)
	return data
}

// encodeLines renders subset one name per line, the stdin protocol of
// command and ssh predicates.
func encodeLines(subset []string) []byte {
	if len(subset) == 0 {
		return nil
	}
	return []byte(strings.Join(subset, "\n") + "\n")
}

// exitVerdict maps the exit status of a command predicate to a verdict:
// 0 holds, 1 does not, anything else is a failure.
func exitVerdict(kind string, code int, stderr string) (bool, error) {
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &AdapterError{
			Adapter:  kind,
			Op:       "check",
			ExitCode: code,
			Stderr:   stderr,
			Err:      fmt.Errorf("unexpected exit status %d", code),
		}
	}
}
