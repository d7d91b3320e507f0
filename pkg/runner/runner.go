package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/engine"
	"github.com/coreprobe/coreprobe/pkg/predicates"
	"github.com/coreprobe/coreprobe/pkg/stores"
	"github.com/coreprobe/coreprobe/pkg/telemetry"
)

// Minimizer names accepted in problem files.
const (
	MinimizerDDMin     = "ddmin"
	MinimizerPartition = "partition"
)

// BuildFunc creates the predicate adapter of a problem.
type BuildFunc func(ctx context.Context, problem *config.Problem, logger zerolog.Logger) (predicates.Adapter, error)

// Result is the outcome of one enumeration run. Cores and Intersection are
// filled in even when the run stopped early.
type Result struct {
	RunID           string        `json:"run_id"`
	Problem         string        `json:"problem"`
	Strategy        string        `json:"strategy"`
	Minimizer       string        `json:"minimizer,omitempty"`
	Universe        int           `json:"universe"`
	Cores           [][]string    `json:"cores"`
	Intersection    []string      `json:"intersection"`
	HasIntersection bool          `json:"has_intersection"`
	Stats           engine.Stats  `json:"stats"`
	Duration        time.Duration `json:"duration"`
	Status          string        `json:"status"`
	Error           string        `json:"error,omitempty"`

	// Err is the error that ended the run, if any.
	Err error `json:"-"`
}

// Runner turns problems into enumeration runs.
type Runner struct {
	tel         *telemetry.Telemetry
	store       stores.Store
	logger      zerolog.Logger
	build       BuildFunc
	observer    engine.Observer[string]
	parallelism int
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithTelemetry instruments runs and predicates with tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Runner) {
		r.tel = tel
	}
}

// WithStore records every run, its cores and its intersection in store.
func WithStore(store stores.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLogger sets the logger used when no telemetry is configured.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithObserver attaches an extra observer to every run.
func WithObserver(obs engine.Observer[string]) Option {
	return func(r *Runner) {
		r.observer = obs
	}
}

// WithBuilder replaces predicates.Build.
func WithBuilder(build BuildFunc) Option {
	return func(r *Runner) {
		if build != nil {
			r.build = build
		}
	}
}

// WithParallelism bounds how many problems RunAll enumerates at once.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		r.parallelism = n
	}
}

// New creates a runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:      zerolog.Nop(),
		build:       predicates.Build,
		parallelism: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism <= 0 {
		r.parallelism = 1
	}
	return r
}

// Run enumerates the cores of problem with its configured strategy.
func (r *Runner) Run(ctx context.Context, problem *config.Problem) (*Result, error) {
	strategy, err := engine.ParseStrategy(problem.Strategy)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", problem.Name, err)
	}
	return r.RunWithStrategy(ctx, problem, strategy)
}

// RunWithStrategy enumerates the cores of problem with strategy, ignoring the
// strategy set in the problem. The returned result is non-nil whenever the
// run started, also when err is not.
func (r *Runner) RunWithStrategy(ctx context.Context, problem *config.Problem, strategy engine.Strategy) (*Result, error) {
	render, err := problem.Renderer()
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", problem.Name, err)
	}
	if render == nil {
		render = engine.DefaultRenderer[string]
	}

	if r.tel != nil {
		ctx = r.tel.WithContext(ctx)
	} else {
		ctx = telemetry.WrapLogger(r.logger).WithContext(ctx)
	}

	runID := uuid.New().String()
	ctx, scope := telemetry.WithRunContext(ctx, runID, problem.Name, string(strategy), len(problem.Universe))
	logger := scope.Logger.Zerolog()

	result := &Result{
		RunID:     runID,
		Problem:   problem.Name,
		Strategy:  string(strategy),
		Universe:  len(problem.Universe),
		Cores:     [][]string{},
		Minimizer: minimizerName(problem, strategy),
	}

	adapter, err := r.build(ctx, problem, logger)
	if err != nil {
		result.fail(scope.End(0, err), err)
		return result, err
	}
	defer func() {
		if cerr := adapter.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close predicate")
		}
	}()

	var pred engine.Predicate[string] = adapter
	if r.tel != nil {
		pred = r.tel.InstrumentPredicate(adapter.Kind(), adapter)
	}

	ord := engine.KeyOrdering(func(name string) string { return name })
	oracle := engine.NewOracle(pred, ord)

	observers := engine.MultiObserver[string]{scope.Observer(render)}
	if r.observer != nil {
		observers = append(observers, r.observer)
	}

	var recorder *stores.Recorder
	if r.store != nil {
		if err := r.store.CreateRun(ctx, &stores.Run{
			ID:        runID,
			Problem:   problem.Name,
			Strategy:  string(strategy),
			Source:    problem.Source,
			Universe:  problem.Universe,
			Labels:    problem.Labels,
			StartedAt: r.now(),
		}); err != nil {
			err = fmt.Errorf("failed to record run: %w", err)
			result.fail(scope.End(0, err), err)
			return result, err
		}
		recorder = stores.NewRecorder(ctx, r.store, runID, logger)
		observers = append(observers, recorder)
	}

	enumerator, err := engine.NewEnumerator(strategy, oracle, r.minimizer(problem, oracle),
		engine.WithObserver[string](observers),
		engine.WithLogger[string](logger),
		engine.WithRenderer[string](render),
	)
	if err != nil {
		result.fail(scope.End(0, err), err)
		r.complete(ctx, result, logger)
		return result, err
	}

	runCtx := ctx
	if timeout := problem.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := r.now()
	err = enumerator.ComputeAllCores(runCtx, problem.Universe)
	result.Duration = r.now().Sub(start)

	registry := enumerator.Registry()
	result.Cores = append(result.Cores, registry.Cores()...)
	result.Intersection, result.HasIntersection = registry.Intersection()
	if result.Intersection == nil {
		result.Intersection = []string{}
	}
	result.Stats = enumerator.Stats()

	status := scope.End(registry.Len(), err)
	if err != nil {
		result.fail(status, err)
	} else {
		result.Status = status
	}
	r.complete(ctx, result, logger)
	if recorder != nil && recorder.Err() != nil {
		logger.Warn().Err(recorder.Err()).Msg("Run history is incomplete")
	}
	return result, err
}

// minimizer picks the punch engine's minimizer. The partition minimizer is
// built from a dependency graph that connects the members of each
// configured partition.
func (r *Runner) minimizer(problem *config.Problem, oracle *engine.Oracle[string]) engine.Minimizer[string] {
	ddmin := engine.NewDDMin(oracle)
	if problem.Minimizer != MinimizerPartition {
		return ddmin
	}

	graph := engine.NewDependencyGraph(func(name string) string { return name })
	for _, name := range problem.Universe {
		graph.AddElement(name)
	}
	for _, group := range problem.Partitions {
		graph.ConnectGroup(group)
	}
	return engine.NewPartitionMinimizer(oracle, graph, ddmin)
}

func minimizerName(problem *config.Problem, strategy engine.Strategy) string {
	if strategy != engine.StrategyPunch {
		return ""
	}
	if problem.Minimizer == "" {
		return MinimizerDDMin
	}
	return problem.Minimizer
}

// complete writes the outcome to the store. A failed write is logged; the
// enumeration result stands on its own.
func (r *Runner) complete(ctx context.Context, result *Result, logger zerolog.Logger) {
	if r.store == nil {
		return
	}
	outcome := stores.RunOutcome{
		Status:       stores.RunStatus(result.Status),
		CoreCount:    len(result.Cores),
		TotalChecks:  result.Stats.TotalChecks,
		ActualChecks: result.Stats.ActualChecks,
	}
	if result.Error != "" {
		msg := result.Error
		outcome.Error = &msg
	}
	if err := r.store.CompleteRun(context.WithoutCancel(ctx), result.RunID, outcome); err != nil {
		logger.Error().Err(err).Msg("Failed to record run outcome")
	}
}

func (res *Result) fail(status string, err error) {
	res.Status = status
	res.Err = err
	res.Error = err.Error()
}

// RunAll enumerates several problems concurrently. A failing problem does not
// stop the others; every result is returned in input order together with the
// joined errors.
func (r *Runner) RunAll(ctx context.Context, problems []*config.Problem) ([]*Result, error) {
	results := make([]*Result, len(problems))
	errs := make([]error, len(problems))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, problem := range problems {
		g.Go(func() error {
			res, err := r.Run(ctx, problem)
			if res == nil {
				res = &Result{Problem: problem.Name, Cores: [][]string{}, Intersection: []string{}}
				if err != nil {
					res.fail(telemetry.RunStatusFailed, err)
				}
			}
			results[i] = res
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// Comparison holds one run per strategy over the same problem.
type Comparison struct {
	Problem    string    `json:"problem"`
	Punch      *Result   `json:"punch"`
	Exhaustive *Result   `json:"exhaustive"`
	Agree      bool      `json:"agree"`
	Missing    []string  `json:"missing,omitempty"`
	Extra      []string  `json:"extra,omitempty"`
	Compared   time.Time `json:"compared_at"`
}

// Compare runs the punch and exhaustive engines on problem one after the
// other. Agree reports whether both found the same cores; Missing lists cores
// only the exhaustive engine found, Extra those only punch found.
func (r *Runner) Compare(ctx context.Context, problem *config.Problem) (cmp *Comparison, err error) {
	if r.tel != nil {
		ctx = r.tel.WithContext(ctx)
	} else {
		ctx = telemetry.WrapLogger(r.logger).WithContext(ctx)
	}
	op := telemetry.StartOperation(ctx, "runner.compare", telemetry.AttrProblem.String(problem.Name))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	cmp = &Comparison{Problem: problem.Name, Compared: r.now()}

	cmp.Punch, err = r.RunWithStrategy(ctx, problem, engine.StrategyPunch)
	if err != nil {
		return cmp, fmt.Errorf("punch: %w", err)
	}
	cmp.Exhaustive, err = r.RunWithStrategy(ctx, problem, engine.StrategyExhaustive)
	if err != nil {
		return cmp, fmt.Errorf("exhaustive: %w", err)
	}

	render, _ := problem.Renderer()
	if render == nil {
		render = engine.DefaultRenderer[string]
	}
	punch := coreKeys(cmp.Punch.Cores)
	exhaustive := coreKeys(cmp.Exhaustive.Cores)
	for key, core := range exhaustive {
		if _, ok := punch[key]; !ok {
			cmp.Missing = append(cmp.Missing, render(core))
		}
	}
	for key, core := range punch {
		if _, ok := exhaustive[key]; !ok {
			cmp.Extra = append(cmp.Extra, render(core))
		}
	}
	sort.Strings(cmp.Missing)
	sort.Strings(cmp.Extra)
	cmp.Agree = len(cmp.Missing) == 0 && len(cmp.Extra) == 0

	log := op.Logger.WithProblem(problem.Name)
	if cmp.Agree {
		log.Infof("Strategies agree on %d cores in %s", len(cmp.Punch.Cores), op.Timer.Duration())
	} else {
		log.Warnf("Strategies disagree: %d cores missing from punch, %d extra", len(cmp.Missing), len(cmp.Extra))
	}
	return cmp, nil
}

// coreKeys indexes cores by their canonical element list.
func coreKeys(cores [][]string) map[string][]string {
	keys := make(map[string][]string, len(cores))
	for _, core := range cores {
		sorted := append([]string{}, core...)
		sort.Strings(sorted)
		keys[strings.Join(sorted, "\x00")] = core
	}
	return keys
}
