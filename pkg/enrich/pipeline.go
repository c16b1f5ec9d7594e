package enrich

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/npmscout/pkg/cache"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/observability"
)

const tracerName = "github.com/matzehuels/npmscout/pkg/enrich"

// DefaultWorkers is the size of the enrichment worker pool.
const DefaultWorkers = 20

// Options configures a [Pipeline].
type Options struct {
	Workers int // Concurrent enrichment tasks (default 20)

	// Refresh skips the cache lookup. Results are still written back.
	Refresh bool

	// PreserveOrder returns packages in input order. By default they are in
	// completion order, cache hits first.
	PreserveOrder bool

	Keyer  cache.Keyer // Derives cache keys (default [cache.DefaultKeyer])
	Hooks  observability.Hooks
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Keyer == nil {
		o.Keyer = cache.NewDefaultKeyer()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	o.Hooks = o.Hooks.OrNoop()
	return o
}

// Pipeline enriches search results through a cache-aware worker pool.
type Pipeline struct {
	source Source
	store  *cache.Store
	opts   Options
	group  *singleflight.Group
	tracer trace.Tracer
}

// NewPipeline creates a pipeline. A nil store disables caching.
func NewPipeline(source Source, store *cache.Store, opts Options) *Pipeline {
	if store == nil {
		store = cache.NewStore(nil, 0)
	}
	return &Pipeline{
		source: source,
		store:  store,
		opts:   opts.withDefaults(),
		group:  &singleflight.Group{},
		tracer: otel.Tracer(tracerName),
	}
}

// Derive returns a pipeline with Refresh and PreserveOrder replaced. It shares
// p's source, cache and in-flight requests.
func (p *Pipeline) Derive(refresh, preserveOrder bool) *Pipeline {
	d := *p
	d.opts.Refresh = refresh
	d.opts.PreserveOrder = preserveOrder
	return &d
}

// Batch is the outcome of [Pipeline.Run]. len(Packages) always equals the
// number of inputs.
type Batch struct {
	Packages []model.EnrichedPackage

	Cached             int // Served from the cache
	Enriched           int // Fetched from the sources
	Failed             int // Replaced by the unenriched fallback record
	CacheWriteFailures int // Enriched but not written back
}

// Partial reports whether some packages fell back to their search record.
func (b *Batch) Partial() bool { return b.Failed > 0 }

type task struct {
	idx int
	in  model.SearchResult
	key string
}

type outcome struct {
	idx     int
	pkg     model.EnrichedPackage
	outcome string
}

// Run enriches results. Cache hits short-circuit; misses go to the worker
// pool. A failed task yields [model.FromSearchResult] of its input and is
// logged; Run itself never fails. Once ctx is done, remaining tasks fall back
// without issuing requests.
func (p *Pipeline) Run(ctx context.Context, results []model.SearchResult) *Batch {
	ctx, span := p.tracer.Start(ctx, "enrich.Run", trace.WithAttributes(
		attribute.Int("enrich.inputs", len(results)),
	))
	defer span.End()

	start := time.Now()
	p.opts.Hooks.Enrich.OnBatchStart(ctx, len(results))

	batch := &Batch{Packages: make([]model.EnrichedPackage, 0, len(results))}
	done := make([]outcome, 0, len(results))
	var misses []task

	for i, r := range results {
		key := p.opts.Keyer.PackageKey(r.Name, r.LatestVersion)
		if !p.opts.Refresh {
			var cached model.EnrichedPackage
			if p.store.GetJSON(ctx, key, &cached) {
				p.opts.Hooks.Enrich.OnPackage(ctx, r.Name, observability.OutcomeCached, 0)
				done = append(done, outcome{idx: i, pkg: cached, outcome: observability.OutcomeCached})
				continue
			}
		}
		misses = append(misses, task{idx: i, in: r, key: key})
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		jobs    = make(chan task)
		workers = min(p.opts.Workers, len(misses))
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				o, wrote := p.process(ctx, t)
				mu.Lock()
				done = append(done, o)
				if o.outcome == observability.OutcomeEnriched && !wrote {
					batch.CacheWriteFailures++
				}
				mu.Unlock()
			}
		}()
	}
	for _, t := range misses {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	if p.opts.PreserveOrder {
		slices.SortFunc(done, func(a, b outcome) int { return a.idx - b.idx })
	}
	for _, o := range done {
		batch.Packages = append(batch.Packages, o.pkg)
		switch o.outcome {
		case observability.OutcomeCached:
			batch.Cached++
		case observability.OutcomeEnriched:
			batch.Enriched++
		default:
			batch.Failed++
		}
	}

	p.opts.Hooks.Enrich.OnBatchComplete(ctx, batch.Cached, batch.Enriched, batch.Failed, time.Since(start))
	span.SetAttributes(
		attribute.Int("enrich.cached", batch.Cached),
		attribute.Int("enrich.enriched", batch.Enriched),
		attribute.Int("enrich.failed", batch.Failed),
	)
	p.opts.Logger.Debug("enrichment complete",
		"cached", batch.Cached,
		"enriched", batch.Enriched,
		"failed", batch.Failed,
		"cache_write_failures", batch.CacheWriteFailures)
	return batch
}

// Lookup enriches a single package by name. Unlike [Pipeline.Run] it returns
// the enrichment error instead of a fallback record.
func (p *Pipeline) Lookup(ctx context.Context, name string) (*model.EnrichedPackage, error) {
	name = integrations.NormalizePkgName(name)
	if err := npmerrors.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}
	key := p.opts.Keyer.PackageKey(name, "")
	if !p.opts.Refresh {
		var cached model.EnrichedPackage
		if p.store.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}
	pkg, _, err := p.fetch(ctx, task{in: model.SearchResult{Name: name}, key: key})
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// process runs one task and reports whether the result reached the cache.
func (p *Pipeline) process(ctx context.Context, t task) (outcome, bool) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		p.opts.Hooks.Enrich.OnPackage(ctx, t.in.Name, observability.OutcomeFallback, 0)
		return outcome{idx: t.idx, pkg: model.FromSearchResult(t.in), outcome: observability.OutcomeFallback}, false
	}

	pkg, wrote, err := p.fetch(ctx, t)
	if err != nil {
		p.opts.Logger.Warn("enrichment failed", "package", t.in.Name, "err", err)
		p.opts.Hooks.Enrich.OnPackage(ctx, t.in.Name, observability.OutcomeFallback, time.Since(start))
		return outcome{idx: t.idx, pkg: model.FromSearchResult(t.in), outcome: observability.OutcomeFallback}, false
	}
	p.opts.Hooks.Enrich.OnPackage(ctx, t.in.Name, observability.OutcomeEnriched, time.Since(start))
	return outcome{idx: t.idx, pkg: pkg, outcome: observability.OutcomeEnriched}, wrote
}

type fetched struct {
	pkg   model.EnrichedPackage
	wrote bool
}

// fetch enriches t, collapsing concurrent calls for the same key, and writes
// the result back to the cache.
func (p *Pipeline) fetch(ctx context.Context, t task) (model.EnrichedPackage, bool, error) {
	// The shared fetch outlives any one caller. Each caller gives up on its
	// own context.
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(t.key, func() (any, error) {
		pkg, err := p.source.Enrich(shared, t.in)
		if err != nil {
			return nil, err
		}
		return fetched{pkg: *pkg, wrote: p.store.PutJSON(shared, t.key, pkg)}, nil
	})
	select {
	case <-ctx.Done():
		return model.EnrichedPackage{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.EnrichedPackage{}, false, r.Err
		}
		f := r.Val.(fetched)
		return f.pkg, f.wrote, nil
	}
}
