package predicates

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkPredicate evaluates a Starlark script that defines
//
//	def check(subset):
//	    return ...
//
// The script sees the predeclared names universe (a tuple of every element
// name), args (the problem's predicate args) and struct.
type StarlarkPredicate struct {
	filename string
	check    starlark.Callable
	logger   zerolog.Logger
}

var _ Adapter = (*StarlarkPredicate)(nil)

// NewStarlarkPredicate executes src once and keeps its check function.
// Globals are frozen afterwards so checks cannot leak state between calls.
func NewStarlarkPredicate(filename, src string, universe []string, args map[string]interface{}, logger zerolog.Logger) (*StarlarkPredicate, error) {
	logger = logger.With().Str("component", "starlark-predicate").Str("file", filename).Logger()

	names := make(starlark.Tuple, len(universe))
	for i, name := range universe {
		names[i] = starlark.String(name)
	}

	argsVal, err := toStarlarkValue(args)
	if err != nil {
		return nil, &AdapterError{Adapter: "starlark", Op: "load", ExitCode: -1, Err: fmt.Errorf("args: %w", err)}
	}

	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"universe": names,
		"args":     argsVal,
	}

	thread := &starlark.Thread{
		Name:  "coreprobe-load",
		Print: printer(logger),
	}

	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return nil, &AdapterError{Adapter: "starlark", Op: "load", ExitCode: -1, Err: err}
	}
	globals.Freeze()
	predeclared.Freeze()

	fn, ok := globals["check"].(starlark.Callable)
	if !ok {
		return nil, &AdapterError{
			Adapter:  "starlark",
			Op:       "load",
			ExitCode: -1,
			Err:      fmt.Errorf("script must define a check(subset) function"),
		}
	}

	return &StarlarkPredicate{
		filename: filename,
		check:    fn,
		logger:   logger,
	}, nil
}

// Kind implements Adapter.
func (p *StarlarkPredicate) Kind() string { return "starlark" }

// Close implements Adapter.
func (p *StarlarkPredicate) Close() error { return nil }

// Check calls check(subset) on a fresh thread. The thread is cancelled when
// ctx is done.
func (p *StarlarkPredicate) Check(ctx context.Context, subset []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &AdapterError{Adapter: "starlark", Op: "check", ExitCode: -1, Err: err}
	}

	thread := &starlark.Thread{
		Name:  "coreprobe-check",
		Print: printer(p.logger),
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	elems := make([]starlark.Value, len(subset))
	for i, name := range subset {
		elems[i] = starlark.String(name)
	}

	result, err := starlark.Call(thread, p.check, starlark.Tuple{starlark.NewList(elems)}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return false, &AdapterError{Adapter: "starlark", Op: "check", ExitCode: -1, Err: err}
	}

	verdict, ok := result.(starlark.Bool)
	if !ok {
		return false, &AdapterError{
			Adapter:  "starlark",
			Op:       "check",
			ExitCode: -1,
			Err:      fmt.Errorf("check must return a bool, got %s", result.Type()),
		}
	}
	return bool(verdict), nil
}

func printer(logger zerolog.Logger) func(*starlark.Thread, string) {
	return func(_ *starlark.Thread, msg string) {
		logger.Debug().Str("output", msg).Msg("Starlark print")
	}
}

// toStarlarkValue converts a decoded YAML/JSON value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		// sorted so iteration order in scripts is stable
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
