package cache

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/IvanBrykalov/clustercache/policy"
)

// ClearReason explains why the store was reset.
type ClearReason int

const (
	// ClearExplicit — the owner called Clear (e.g. the view changed study).
	ClearExplicit ClearReason = iota
	// ClearFailure — a network or peer fetch failed.
	ClearFailure
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit(f Field)
	Miss(f Field)
	Fetch()
	Coalesced()
	Clear(reason ClearReason)
	Size(keys int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Zero values are safe; defaults are applied
// in New():
//   - Retention ""         => policy.LRU
//   - AnnotationSlots <= 0 => 1 (one annotation value per embedding)
//   - ExpressionSlots <= 0 => 1 (one expression value per embedding)
//   - Shards <= 0          => auto, rounded up to a power of two
//   - nil Metrics          => NoopMetrics
//   - nil Logger           => zerolog.Nop()
//   - nil Tracer           => noop tracer
type Options struct {
	// Fetcher talks to the embedding API. Required.
	Fetcher Fetcher

	// Retention selects which keyed annotation/expression values an entry
	// keeps once a slot limit is reached.
	Retention policy.Kind
	// AnnotationSlots and ExpressionSlots bound how many keyed values each
	// embedding retains. 1 means every new key discards the previous value.
	AnnotationSlots int
	ExpressionSlots int

	// Shards splits the embedding-key index across independently locked maps.
	Shards int

	// Observability
	Metrics Metrics
	Logger  *zerolog.Logger
	Tracer  trace.Tracer

	// Clock stamps synthetic envelopes. Nil => time.Now().
	Clock Clock
}
