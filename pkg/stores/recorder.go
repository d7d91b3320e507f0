package stores

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreprobe/coreprobe/pkg/engine"
)

// Recorder is an engine observer that writes cores and the intersection of
// one run to a Store. The run row itself is created and completed by the
// caller. Write failures are logged and kept; they never affect the run.
type Recorder struct {
	store  Store
	ctx    context.Context
	runID  string
	logger zerolog.Logger

	mu  sync.Mutex
	seq int
	err error
}

var _ engine.Observer[string] = (*Recorder)(nil)

// NewRecorder creates a recorder for runID. Writes outlive the cancellation
// of ctx so a timed-out run still keeps what it found.
func NewRecorder(ctx context.Context, store Store, runID string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		ctx:    context.WithoutCancel(ctx),
		runID:  runID,
		logger: logger.With().Str("component", "run-recorder").Str("run_id", runID).Logger(),
	}
}

// Begin implements engine.Observer.
func (r *Recorder) Begin() {}

// CoreFound implements engine.Observer.
func (r *Recorder) CoreFound(core []string, stats engine.Stats, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.keep(r.store.AddCore(r.ctx, &Core{
		RunID:        r.runID,
		Seq:          r.seq,
		Elements:     append([]string{}, core...),
		TotalChecks:  stats.TotalChecks,
		ActualChecks: stats.ActualChecks,
		Elapsed:      elapsed,
	}))
}

// CoresIntersectionFound implements engine.Observer.
func (r *Recorder) CoresIntersectionFound(intersection []string, stats engine.Stats, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keep(r.store.SetIntersection(r.ctx, &Intersection{
		RunID:        r.runID,
		Elements:     append([]string{}, intersection...),
		TotalChecks:  stats.TotalChecks,
		ActualChecks: stats.ActualChecks,
		Elapsed:      elapsed,
	}))
}

// End implements engine.Observer.
func (r *Recorder) End(engine.Stats, time.Duration) {}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(err error) {
	if err == nil {
		return
	}
	r.logger.Error().Err(err).Msg("Failed to record run progress")
	if r.err == nil {
		r.err = err
	}
}
