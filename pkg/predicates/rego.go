package predicates

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// RegoPredicate evaluates a Rego policy. The query defaults to the check
// rule of the module's package and receives the input
//
//	{"subset": [...], "universe": [...], "args": {...}}
//
// An undefined result means the subset does not satisfy the predicate.
type RegoPredicate struct {
	query    rego.PreparedEvalQuery
	queryStr string
	universe []string
	args     map[string]interface{}
	logger   zerolog.Logger
}

var _ Adapter = (*RegoPredicate)(nil)

// NewRegoPredicate parses and prepares the policy once.
func NewRegoPredicate(ctx context.Context, filename, src, query string, universe []string, args map[string]interface{}, logger zerolog.Logger) (*RegoPredicate, error) {
	module, err := ast.ParseModule(filename, src)
	if err != nil {
		return nil, &AdapterError{Adapter: "rego", Op: "load", ExitCode: -1, Err: fmt.Errorf("failed to parse policy: %w", err)}
	}
	if module == nil {
		return nil, &AdapterError{Adapter: "rego", Op: "load", ExitCode: -1, Err: fmt.Errorf("policy is empty")}
	}

	if query == "" {
		query = module.Package.Path.String() + ".check"
	}

	r := rego.New(
		rego.Module(filename, src),
		rego.Query(query),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, &AdapterError{Adapter: "rego", Op: "load", ExitCode: -1, Err: fmt.Errorf("failed to prepare query: %w", err)}
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	logger = logger.With().Str("component", "rego-predicate").Str("query", query).Logger()
	logger.Debug().Str("file", filename).Msg("Policy compiled successfully")

	return &RegoPredicate{
		query:    prepared,
		queryStr: query,
		universe: append([]string(nil), universe...),
		args:     args,
		logger:   logger,
	}, nil
}

// Kind implements Adapter.
func (p *RegoPredicate) Kind() string { return "rego" }

// Close implements Adapter.
func (p *RegoPredicate) Close() error { return nil }

// Query returns the evaluated query.
func (p *RegoPredicate) Query() string { return p.queryStr }

// Check evaluates the prepared query against subset.
func (p *RegoPredicate) Check(ctx context.Context, subset []string) (bool, error) {
	if subset == nil {
		subset = []string{}
	}
	input := map[string]interface{}{
		"subset":   subset,
		"universe": p.universe,
		"args":     p.args,
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return false, &AdapterError{Adapter: "rego", Op: "check", ExitCode: -1, Err: err}
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	if len(results) > 1 {
		return false, &AdapterError{
			Adapter:  "rego",
			Op:       "check",
			ExitCode: -1,
			Err:      fmt.Errorf("query %s produced %d results, want one", p.queryStr, len(results)),
		}
	}

	verdict, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, &AdapterError{
			Adapter:  "rego",
			Op:       "check",
			ExitCode: -1,
			Err:      fmt.Errorf("query %s must produce a boolean, got %T", p.queryStr, results[0].Expressions[0].Value),
		}
	}
	return verdict, nil
}
