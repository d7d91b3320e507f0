// Package runner turns loaded problems into core enumeration runs.
//
// For each run it builds the predicate adapter, the oracle, the minimizer
// and the strategy's engine, attaches the telemetry and history observers,
// and applies the problem's run timeout. RunAll enumerates several problems
// concurrently; Compare runs both strategies on one problem and reports
// whether they agree.
//
//	r := runner.New(runner.WithTelemetry(tel), runner.WithStore(store))
//	res, err := r.Run(ctx, problem)
package runner
