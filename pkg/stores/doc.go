// Package stores keeps the history of enumeration runs in SQLite: one row
// per run plus the cores it found and their intersection. Schema changes are
// applied with embedded golang-migrate migrations.
//
// A Recorder plugs the store into a run as an engine observer:
//
//	rec := stores.NewRecorder(ctx, store, runID, logger)
//	eng := engine.NewPunchEngine(oracle, minimizer, engine.WithObserver[string](rec))
package stores
