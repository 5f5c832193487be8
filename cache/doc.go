// Package cache provides a partial-field response cache for per-cell
// cluster (embedding) plotting data: coordinates, cell names, one annotation
// and gene expression values.
//
// A scatter view typically changes one dimension at a time, for example the
// active annotation while keeping the same embedding. Re-fetching arrays of
// hundreds of thousands of coordinates each time is wasteful, so the cache
// requests only the fields it does not already hold and merges the rest in.
//
// Design
//
//   - Store: one entry per embedding key (study, embedding, subsample).
//     Entries are created lazily and never evicted; the owner calls Clear
//     when its context changes. An entry may be reachable under two keys when
//     the server resolves the default embedding to a concrete name.
//
//   - Fields: each entry holds cells+coordinates, annotation values keyed by
//     (name, scope), expression values keyed by (sorted genes, consensus), and
//     the non-bulk response attributes. By default one annotation and one
//     expression value are retained per entry; Options can raise that limit
//     (policy.LRU or policy.TwoQ).
//
//   - Planning: annotated/correlated scatter plots and subsampled requests
//     bypass the store. Otherwise missing fields are fetched, fields already
//     in flight for another caller are awaited, and user-scope annotations
//     are always fetched.
//
//   - Coalescing: the pending request is registered in the entry before the
//     network call starts, so a concurrent caller needing the same fields
//     waits for it instead of issuing a duplicate.
//
//   - Merge: results are merged in the order they were queued, the caller's
//     own request last. Arrays are shared by reference, never copied: do not
//     modify a returned slice in place.
//
//   - Failure: any failed request (own or awaited) clears the whole cache and
//     the original error is returned unwrapped. There is no retry here.
//
// Basic usage
//
//	client, err := remote.New("https://portal.example/single_cell/api/v1", remote.Options{})
//	if err != nil {
//	    return err
//	}
//	c := cache.New(cache.Options{Fetcher: client})
//	res, err := c.FetchCluster(ctx, cache.Params{
//	    StudyAccession: "SCP1",
//	    Cluster:        "UMAP",
//	    Annotation:     cache.Annotation{Name: "cell_type", Type: "group", Scope: "study"},
//	    Subsample:      cache.SubsampleAll,
//	})
//	// Same embedding, different annotation: only the annotation travels.
//	res, err = c.FetchCluster(ctx, cache.Params{
//	    StudyAccession: "SCP1",
//	    Cluster:        "UMAP",
//	    Annotation:     cache.Annotation{Name: "sample", Type: "group", Scope: "study"},
//	    Subsample:      cache.SubsampleAll,
//	})
//
// Exporting metrics
//
//	m := prom.New(nil, "clustercache", "viewer", nil) // implements Metrics
//	c := cache.New(cache.Options{Fetcher: f, Metrics: m})
package cache
