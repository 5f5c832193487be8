package cache

import "context"

// Cache is a partial-field response cache in front of the embedding API.
// All methods are safe for concurrent use by multiple goroutines.
type Cache interface {
	// FetchCluster returns the cluster response for p, requesting only the
	// fields that are neither cached nor already in flight. Concurrent
	// callers needing the same fields share one network request.
	//
	// On any fetch failure, including a failure of another caller's request
	// this call was waiting on, the whole cache is cleared and the original
	// error is returned unwrapped.
	FetchCluster(ctx context.Context, p Params) (*Response, error)

	// Clear discards every entry. Requests already in flight still resolve
	// for their callers but are no longer indexed.
	Clear()

	// Len returns the number of embedding keys currently indexed (aliases
	// count separately).
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats
}

// Fetcher is the remote embedding API. The returned Response carries only
// the requested fields plus the always-present non-bulk attributes.
type Fetcher interface {
	FetchCluster(ctx context.Context, p Params, fields []Field) (*Response, Timing, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, p Params, fields []Field) (*Response, Timing, error)

// FetchCluster calls f.
func (f FetcherFunc) FetchCluster(ctx context.Context, p Params, fields []Field) (*Response, Timing, error) {
	return f(ctx, p, fields)
}

// URLBuilder is implemented by Fetchers that can name the URL of a request.
// The cache uses it to fill in the envelope of responses served from cache.
type URLBuilder interface {
	ClusterURL(p Params, fields []Field) string
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits      uint64 // fields served from resolved cache slots
	Misses    uint64 // fields requested over the network
	Fetches   uint64 // network requests issued
	Coalesced uint64 // in-flight requests of other callers awaited
	Clears    uint64 // explicit and failure-driven clears
}
