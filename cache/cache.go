package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/clustercache/internal/future"
	"github.com/IvanBrykalov/clustercache/internal/util"
)

var (
	// ErrNoFetcher is returned by FetchCluster when Options.Fetcher is nil.
	ErrNoFetcher = errors.New("cache: no Fetcher provided")
	// ErrEmptyResponse is returned when a Fetcher reports success without a response.
	ErrEmptyResponse = errors.New("cache: fetcher returned no response")
)

// cache is the partial-field cluster cache.
// All methods are safe for concurrent use by multiple goroutines.
type cache struct {
	store *store
	opt   Options
	log   zerolog.Logger
	trc   trace.Tracer

	hits      util.PaddedCounter
	misses    util.PaddedCounter
	fetches   util.PaddedCounter
	coalesced util.PaddedCounter
	clears    util.PaddedCounter
}

// New constructs a cache with the provided Options. Each cache owns its own
// store; nothing is shared between instances.
func New(opt Options) Cache {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.AnnotationSlots <= 0 {
		opt.AnnotationSlots = 1
	}
	if opt.ExpressionSlots <= 0 {
		opt.ExpressionSlots = 1
	}

	log := zerolog.Nop()
	if opt.Logger != nil {
		log = opt.Logger.With().Str("component", "clustercache").Logger()
	}
	trc := opt.Tracer
	if trc == nil {
		trc = noop.NewTracerProvider().Tracer("clustercache")
	}

	return &cache{
		store: newStore(opt.Shards, newEntryFunc(opt)),
		opt:   opt,
		log:   log,
		trc:   trc,
	}
}

// FetchCluster plans, fetches what is missing, waits for in-flight requests
// it depends on, and merges everything into one response.
func (c *cache) FetchCluster(ctx context.Context, p Params) (*Response, error) {
	if c.opt.Fetcher == nil {
		return nil, ErrNoFetcher
	}

	ctx, span := c.trc.Start(ctx, "clustercache.FetchCluster", trace.WithAttributes(
		attribute.String("clustercache.study", p.StudyAccession),
		attribute.String("clustercache.cluster", p.Cluster),
		attribute.String("clustercache.subsample", p.Subsample),
	))
	defer span.End()

	// PLANNING
	own := future.New[*Response]()
	rp := c.plan(&p, own)
	c.record(&rp)

	// FETCHING: exactly one network request carrying only the missing fields.
	if len(rp.fields) > 0 {
		c.fetches.Add(1)
		c.opt.Metrics.Fetch()
		fields := rp.fields
		fetchCtx := context.WithoutCancel(ctx)
		go func() {
			own.Resolve(c.fetch(fetchCtx, p, fields))
		}()
	} else {
		own.Resolve(c.fromCache(&p, &rp), nil)
	}

	c.log.Debug().
		Str("key", rp.key).
		Strs("fields", fieldNames(rp.fields)).
		Int("awaiting", len(rp.awaits)).
		Bool("cached", rp.cached).
		Msg("planned cluster request")
	span.SetAttributes(
		attribute.StringSlice("clustercache.fields", fieldNames(rp.fields)),
		attribute.Int("clustercache.awaiting", len(rp.awaits)),
		attribute.Bool("clustercache.all_from_cache", len(rp.fields) == 0),
	)

	// AWAITING_CACHED: the caller's own request goes last so its result is
	// merged last and wins over any other request touching the same field.
	awaits := append(rp.awaits, own)
	results, err := awaitAll(ctx, awaits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// The caller gave up; the request keeps running for its peers.
			return nil, err
		}
		// FAILED: no partial recovery. The original error goes back as is.
		c.log.Warn().Err(err).Str("study", p.StudyAccession).Str("cluster", p.Cluster).
			Msg("cluster request failed, clearing cache")
		c.reset(ClearFailure)
		return nil, err
	}

	// MERGING, in await-list order.
	var merged *Response
	bf := backfill{data: rp.data, annot: rp.props.AnnotParams}
	for i, res := range results {
		if !rp.cached {
			r := *res
			merged = &r
			continue
		}
		merged = c.merge(&p, res, awaits[i])
		bf.collect(&p, merged)
	}
	if rp.cached {
		bf.fill(&p, merged)
	}
	c.opt.Metrics.Size(c.store.Len())
	return merged, nil
}

// Clear discards every entry.
func (c *cache) Clear() {
	c.reset(ClearExplicit)
}

// Len returns the number of indexed embedding keys.
func (c *cache) Len() int { return c.store.Len() }

// Stats returns a snapshot of the counters.
func (c *cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Fetches:   c.fetches.Load(),
		Coalesced: c.coalesced.Load(),
		Clears:    c.clears.Load(),
	}
}

// ---- helpers ----

func (c *cache) reset(reason ClearReason) {
	c.store.clear()
	c.clears.Add(1)
	c.opt.Metrics.Clear(reason)
	c.opt.Metrics.Size(0)
}

// record feeds the plan into the counters and Metrics.
func (c *cache) record(rp *requestPlan) {
	for _, f := range rp.hits {
		c.hits.Add(1)
		c.opt.Metrics.Hit(f)
	}
	for _, f := range rp.fields {
		c.misses.Add(1)
		c.opt.Metrics.Miss(f)
	}
	for range rp.awaits {
		c.coalesced.Add(1)
		c.opt.Metrics.Coalesced()
	}
}

// fetch runs the network request and attaches its envelope to the response.
func (c *cache) fetch(ctx context.Context, p Params, fields []Field) (*Response, error) {
	res, timing, err := c.opt.Fetcher.FetchCluster(ctx, p, fields)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrEmptyResponse
	}
	res.Timing = timing
	return res, nil
}

// fromCache builds the response for a request that needs no network call
// from the values captured while planning. The merge fills in whatever was
// still pending then.
func (c *cache) fromCache(p *Params, rp *requestPlan) *Response {
	url := ""
	if b, ok := c.opt.Fetcher.(URLBuilder); ok {
		url = b.ClusterURL(*p, nil)
	}
	return &Response{
		Props:            rp.props,
		Data:             rp.data,
		AllDataFromCache: true,
		Timing: Timing{
			URL:           url,
			RequestStart:  c.now(),
			Backend:       StepNotNeeded,
			Parse:         StepNotNeeded,
			IsClientCache: true,
		},
	}
}

func (c *cache) now() time.Time {
	if c.opt.Clock != nil {
		return time.Unix(0, c.opt.Clock.NowUnixNano())
	}
	return time.Now()
}

// awaitAll waits for every future concurrently and returns the results in
// list order. The first failure cancels the remaining waits (not the
// requests themselves) and is returned unchanged.
func awaitAll(ctx context.Context, fs []pending) ([]*Response, error) {
	results := make([]*Response, len(fs))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fs {
		g.Go(func() error {
			r, err := f.Await(gctx)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
