// Package bench orchestrates a sweep run: it generates the dataset, builds
// every store in parallel, measures every store and strategy in parallel,
// then ranks and prints the results.
package bench

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/sweep/internal/config"
	"github.com/arkilian/sweep/internal/dataset"
	"github.com/arkilian/sweep/internal/grid"
	"github.com/arkilian/sweep/internal/measure"
	"github.com/arkilian/sweep/internal/report"
	"github.com/arkilian/sweep/internal/source"
	"github.com/arkilian/sweep/internal/storage"
	"github.com/arkilian/sweep/internal/store"
)

// Bench runs one sweep.
type Bench struct {
	cfg     *config.Config
	runID   string
	workers int
	mirror  storage.ObjectStorage
}

// New creates a Bench with the given configuration.
func New(cfg *config.Config) (*Bench, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Bench{cfg: cfg, runID: uuid.NewString(), workers: workers}, nil
}

// Run is a shorthand for New followed by Bench.Run.
func Run(ctx context.Context, cfg *config.Config, w io.Writer) error {
	b, err := New(cfg)
	if err != nil {
		return err
	}
	return b.Run(ctx, w)
}

// RunID returns the identifier printed in the report header.
func (b *Bench) RunID() string {
	return b.runID
}

func (b *Bench) logf(format string, args ...interface{}) {
	log.Printf("bench[%s]: "+format, append([]interface{}{b.runID[:8]}, args...)...)
}

// Run executes the sweep and writes the ranked report to w. The first error
// from any task aborts the run; no report is written in that case.
func (b *Bench) Run(ctx context.Context, w io.Writer) error {
	ds, err := b.loadDataset()
	if err != nil {
		return err
	}
	targets := ds.JumpTargets(ds.Seed(), ds.EntryCount())

	if err := b.initMirror(ctx); err != nil {
		return err
	}

	stores, err := b.buildAll(ctx, ds)
	defer closeAll(stores)
	if err != nil {
		return err
	}

	results, err := b.measureAll(ctx, ds, targets, stores)
	if err != nil {
		return err
	}

	key := b.cfg.SortKey()
	report.Rank(results, key)
	return report.Print(w, report.Header{
		RunID:          b.runID,
		Dataset:        ds.Source(),
		Fingerprint:    ds.Fingerprint(),
		Entries:        ds.Len(),
		Jumps:          len(targets),
		MaxCardinality: ds.MaxCardinality(),
		SortKey:        key,
	}, results)
}

func (b *Bench) loadDataset() (*dataset.Dataset, error) {
	start := time.Now()
	var (
		ds  *dataset.Dataset
		err error
	)
	if b.cfg.Dataset.File != "" {
		ds, err = dataset.Load(b.cfg.Dataset.File, b.cfg.Dataset.Seed, b.cfg.Dataset.MaxCardinality)
	} else {
		ds, err = dataset.Generate(dataset.Options{
			Seed:           b.cfg.Dataset.Seed,
			Count:          b.cfg.Dataset.EntryCount,
			Mode:           b.cfg.KeyMode(),
			MaxCardinality: b.cfg.Dataset.MaxCardinality,
		})
	}
	if err != nil {
		return nil, err
	}
	b.logf("%d unique keys from %s in %v", ds.Len(), ds.Source(), time.Since(start))
	return ds, nil
}

// initMirror connects the artifact mirror and prefetches every sorted file
// it already holds.
func (b *Bench) initMirror(ctx context.Context) error {
	var err error
	switch b.cfg.Storage.Type {
	case "none":
		return nil
	case "local":
		b.mirror, err = storage.NewLocalStorage(b.cfg.Storage.Path)
	case "s3":
		b.mirror, err = storage.NewS3Storage(ctx, b.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       b.cfg.Storage.S3.Region,
			Endpoint:     b.cfg.Storage.S3.Endpoint,
			UsePathStyle: b.cfg.Storage.S3.UsePathStyle,
			Prefix:       b.cfg.Storage.S3.Prefix,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", b.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize mirror: %w", err)
	}
	b.logf("mirror initialized: type=%s", b.cfg.Storage.Type)

	if !b.wants(store.BackendSortedFile) {
		return nil
	}
	params := b.cfg.Parameters()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	res, err := storage.NewPrefetcher(b.mirror, b.workers, b.cfg.Folder).Fetch(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to prefetch artifacts: %w", err)
	}
	b.logf("prefetch: %d present, %d downloaded, %d to build", res.Present, res.Downloaded, res.Missing)
	return nil
}

func (b *Bench) wants(backend store.Backend) bool {
	backends, _ := b.cfg.BackendSet()
	for _, have := range backends {
		if have == backend {
			return true
		}
	}
	return false
}

// built collects the opened stores of a run.
type built struct {
	sorted []*store.SortedFileStore
	bolt   *store.BoltStore
	sqlite *store.SQLiteStore
}

func closeAll(s *built) {
	if s == nil {
		return
	}
	for _, st := range s.sorted {
		if st != nil {
			st.Close()
		}
	}
	if s.bolt != nil {
		s.bolt.Close()
	}
	if s.sqlite != nil {
		s.sqlite.Close()
	}
}

// buildAll builds the sorted files in parallel, then the baselines one after
// the other. The returned stores must be closed even on error.
func (b *Bench) buildAll(ctx context.Context, ds *dataset.Dataset) (*built, error) {
	builder := &store.Builder{Folder: b.cfg.Folder, Mirror: b.mirror}
	out := &built{}

	if b.wants(store.BackendSortedFile) {
		params := b.cfg.Parameters()
		out.sorted = make([]*store.SortedFileStore, len(params))
		progress := NewProgress("built", "stores", len(params), b.cfg.Verbose)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.workers)
		for i, p := range params {
			g.Go(func() error {
				s, err := builder.Build(gctx, ds, store.SortedFile{Params: p})
				if err != nil {
					return fmt.Errorf("build %s: %w", p.Name(), err)
				}
				out.sorted[i] = s.(*store.SortedFileStore)
				progress.Inc()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}
		b.logf("%d sorted files ready (%d reused)", len(params), reusedCount(out.sorted))
	}

	if b.wants(store.BackendBolt) {
		s, err := builder.Build(ctx, ds, store.Bolt{MapSize: b.cfg.BoltMapSize})
		if err != nil {
			return out, fmt.Errorf("build %s: %w", store.BoltFileName, err)
		}
		out.bolt = s.(*store.BoltStore)
		b.logf("bolt baseline ready (reused=%t)", out.bolt.Reused())
	}

	if b.wants(store.BackendSQLite) {
		s, err := builder.Build(ctx, ds, store.SQLite{})
		if err != nil {
			return out, fmt.Errorf("build %s: %w", store.SQLiteFileName, err)
		}
		out.sqlite = s.(*store.SQLiteStore)
		b.logf("sqlite baseline ready (reused=%t)", out.sqlite.Reused())
	}

	return out, nil
}

func reusedCount(stores []*store.SortedFileStore) int {
	n := 0
	for _, s := range stores {
		if s.Reused() {
			n++
		}
	}
	return n
}

// task is one measurement: a store and the way its cursor is opened.
type task struct {
	result report.Result
	open   func() (store.Cursor, error)
}

// measureAll runs one measurement per sorted file and strategy and one per
// baseline, in parallel.
func (b *Bench) measureAll(ctx context.Context, ds *dataset.Dataset, targets []int, s *built) ([]report.Result, error) {
	strategies, err := b.cfg.Strategies()
	if err != nil {
		return nil, err
	}
	bufOpts := b.cfg.BufferOptions()

	var tasks []task
	for _, st := range s.sorted {
		params := st.Target().(store.SortedFile).Params
		for _, strategy := range strategies {
			tasks = append(tasks, task{
				result: sortedResult(st, params, strategy),
				open: func() (store.Cursor, error) {
					return st.OpenCursor(strategy, bufOpts)
				},
			})
		}
	}
	if s.bolt != nil {
		tasks = append(tasks, task{result: baselineResult(s.bolt), open: s.bolt.OpenCursor})
	}
	if s.sqlite != nil {
		tasks = append(tasks, task{result: baselineResult(s.sqlite), open: s.sqlite.OpenCursor})
	}

	runner := measure.Runner{MaxCardinality: uint64(ds.MaxCardinality())}
	results := make([]report.Result, len(tasks))
	progress := NewProgress("measured", "tasks", len(tasks), b.cfg.Verbose)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := t.open()
			if err != nil {
				return fmt.Errorf("open %s: %w", t.result.Label(), err)
			}
			d, err := runner.Measure(c, ds.Keys(), targets)
			c.Close()
			if err != nil {
				return fmt.Errorf("measure %s (%s): %w", t.result.Artifact, t.result.Label(), err)
			}
			results[i] = t.result
			results[i].Iter = d.Iter
			results[i].Jump = d.Jump
			progress.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sortedResult(st *store.SortedFileStore, p grid.Parameters, strategy source.Strategy) report.Result {
	return report.Result{
		Backend:      store.BackendSortedFile.String(),
		Strategy:     strategy.String(),
		Params:       &p,
		Artifact:     p.Name(),
		ArtifactSize: st.Size(),
	}
}

func baselineResult(st store.Store) report.Result {
	return report.Result{
		Backend:      st.Target().Backend().String(),
		Artifact:     st.Target().Name(),
		ArtifactSize: st.Size(),
	}
}
