package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SceneLister returns the scenes of a dataset that fall inside the query's
// date window and intersect at least one of its regions.
type SceneLister interface {
	ListScenes(ctx context.Context, q domain.SceneQuery) ([]domain.Scene, error)
}

// Loader writes one variable's export to a destination.
type Loader interface {
	Load(ctx context.Context, exp domain.Export) error
}

// Options tunes concurrency and timeouts.
type Options struct {
	// Concurrency is the number of variables processed at once.
	Concurrency int
	// SampleConcurrency bounds in-flight sampler calls per variable.
	SampleConcurrency int
	// Timeout bounds a single variable pipeline. Zero means no timeout.
	Timeout time.Duration
}

// Pipeline runs the sample, assemble, pivot, merge and export chain for every
// requested variable of a dataset.
type Pipeline struct {
	lister  SceneLister
	sampler domain.Sampler
	loaders []Loader
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
	ready   atomic.Bool

	mu   sync.Mutex
	last *RunSummary
}

// RunSummary describes the most recent run.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Dataset    string            `json:"dataset"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Variables  []VariableSummary `json:"variables"`
}

// VariableSummary is the outcome of one variable pipeline.
type VariableSummary struct {
	Name     string `json:"name"`
	TallRows int    `json:"tall_rows"`
	WideRows int    `json:"wide_rows"`
	Columns  int    `json:"columns"`
	Error    string `json:"error,omitempty"`
}

// New creates a Pipeline with the given collaborators and observability.
func New(lister SceneLister, sampler domain.Sampler, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SampleConcurrency < 1 {
		opts.SampleConcurrency = 1
	}
	return &Pipeline{
		lister:  lister,
		sampler: sampler,
		loaders: loaders,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// CheckReadiness returns nil while the latest run has exported every variable,
// or an error describing why the job is not ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no export run has completed yet")
	}
	return nil
}

// LastRun returns a copy of the most recent run summary, or false before the
// first run has finished.
func (p *Pipeline) LastRun() (RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return RunSummary{}, false
	}
	s := *p.last
	s.Variables = append([]VariableSummary(nil), p.last.Variables...)
	return s, true
}

// Run lists scenes once and runs one pipeline per variable. Variables are
// independent: a failing variable does not cancel the others, and every
// failure is reported in the joined error. Exports are returned in the order
// of vars, omitting failed variables.
func (p *Pipeline) Run(ctx context.Context, q domain.SceneQuery, vars []domain.Variable) ([]domain.Export, error) {
	runID := uuid.NewString()
	startedAt := time.Now()
	logger := p.logger.With("run_id", runID, "dataset", q.Dataset.Name)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if len(q.Regions) == 0 {
		p.ready.Store(false)
		return nil, errors.New("no regions to sample")
	}

	scenes, err := p.lister.ListScenes(ctx, q)
	if err != nil {
		p.ready.Store(false)
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	p.metrics.ScenesListed.WithLabelValues(q.Dataset.Name).Add(float64(len(scenes)))
	logger.Info("run started",
		"scenes", len(scenes),
		"regions", len(q.Regions),
		"variables", len(vars),
	)

	exports := make([]*domain.Export, len(vars))
	errs := make([]error, len(vars))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, v := range vars {
		g.Go(func() error {
			exp, err := p.runVariable(ctx, runID, q, scenes, v)
			if err != nil {
				p.metrics.PipelineErrors.WithLabelValues(v.Name).Inc()
				logger.Error("variable failed", "variable", v.Name, "error", err)
				errs[i] = fmt.Errorf("variable %s: %w", v.Name, err)
				return nil
			}
			exports[i] = &exp
			return nil
		})
	}
	_ = g.Wait() // errors are collected per variable

	out := make([]domain.Export, 0, len(vars))
	summary := RunSummary{
		RunID:      runID,
		Dataset:    q.Dataset.Name,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Variables:  make([]VariableSummary, len(vars)),
	}
	for i, exp := range exports {
		vs := VariableSummary{Name: vars[i].Name}
		if exp != nil {
			out = append(out, *exp)
			vs.TallRows, vs.WideRows, vs.Columns = len(exp.Tall), len(exp.Wide), len(exp.Columns)
		}
		if errs[i] != nil {
			vs.Error = errs[i].Error()
		}
		summary.Variables[i] = vs
	}
	p.mu.Lock()
	p.last = &summary
	p.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		p.ready.Store(false)
		return out, err
	}
	p.ready.Store(true)
	logger.Info("run complete", "exports", len(out))
	return out, nil
}

func (p *Pipeline) runVariable(ctx context.Context, runID string, q domain.SceneQuery, scenes []domain.Scene, v domain.Variable) (domain.Export, error) {
	start := time.Now()
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	obs, err := domain.SampleZonal(ctx, p.sampler, q.Dataset, v, scenes, q.Regions, p.opts.SampleConcurrency)
	if err != nil {
		return domain.Export{}, err
	}
	p.countObservations(v.Name, obs)

	exp := Transform(runID, q.Dataset, v, obs)

	for _, l := range p.loaders {
		if err := l.Load(ctx, exp); err != nil {
			return domain.Export{}, fmt.Errorf("load: %w", err)
		}
	}

	p.metrics.RowsExported.WithLabelValues(v.Name, domain.TableTall).Add(float64(len(exp.Tall)))
	p.metrics.RowsExported.WithLabelValues(v.Name, domain.TableWide).Add(float64(len(exp.Wide)))
	p.metrics.VariableDuration.WithLabelValues(v.Name).Observe(time.Since(start).Seconds())

	p.logger.Info("variable exported",
		"run_id", runID,
		"variable", v.Name,
		"description", v.Description,
		"observations", len(obs),
		"tall_rows", len(exp.Tall),
		"wide_rows", len(exp.Wide),
		"columns", len(exp.Columns),
	)
	return exp, nil
}

func (p *Pipeline) countObservations(variable string, obs []domain.Observation) {
	var sentinels int
	for _, o := range obs {
		if o.Missing() {
			sentinels++
		}
	}
	p.metrics.Observations.WithLabelValues(variable, "value").Add(float64(len(obs) - sentinels))
	p.metrics.Observations.WithLabelValues(variable, "sentinel").Add(float64(sentinels))
}
