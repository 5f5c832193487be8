package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/IvanBrykalov/clustercache/internal/future"
	"github.com/IvanBrykalov/clustercache/policy"
	"github.com/IvanBrykalov/clustercache/policy/lru"
	"github.com/IvanBrykalov/clustercache/policy/twoq"
)

// pending is an in-flight cluster request that resolves to its raw response.
type pending = *future.Future[*Response]

type slotState uint8

const (
	slotEmpty slotState = iota
	slotPending
	slotReady
)

// slot holds either a pending future or a resolved value, never both.
// The state tag is authoritative; a resolved value is never probed for
// future-like fields.
type slot[T any] struct {
	state   slotState
	pending pending
	value   T
}

func pendingSlot[T any](f pending) *slot[T] { return &slot[T]{state: slotPending, pending: f} }

func readySlot[T any](v T) *slot[T] { return &slot[T]{state: slotReady, value: v} }

func (s *slot[T]) isPending() bool { return s != nil && s.state == slotPending }

func (s *slot[T]) isReady() bool { return s != nil && s.state == slotReady }

// cellsAndCoords are the per-embedding arrays that do not depend on the
// annotation or genes.
type cellsAndCoords struct {
	X, Y, Z []float64
	Cells   []string
}

// annotationValues keeps the annotation the values belong to, so a response
// served from cache reports the right annotParams.
type annotationValues struct {
	Params Annotation
	Values []any
}

// entry is the cached state of one embedding. It may be indexed under more
// than one embedding key (see store.alias). Every read-modify-write of its
// fields happens under mu.
type entry struct {
	mu sync.Mutex

	props       Props
	coords      slot[cellsAndCoords]
	annotations policy.Retention[string, *slot[annotationValues]]
	expression  policy.Retention[string, *slot[[]float64]]
}

// newEntryFunc returns a constructor for empty entries honoring the
// retention options.
func newEntryFunc(opt Options) func() *entry {
	return func() *entry {
		return &entry{
			annotations: newRetention[*slot[annotationValues]](opt.Retention, opt.AnnotationSlots),
			expression:  newRetention[*slot[[]float64]](opt.Retention, opt.ExpressionSlots),
		}
	}
}

func newRetention[V any](kind policy.Kind, size int) policy.Retention[string, V] {
	if size < 1 {
		size = 1
	}
	if kind == policy.TwoQ {
		return twoq.New[string, V](size)
	}
	return lru.New[string, V](size)
}

// ---- keys ----

const keySep = "--"

// embeddingKey collapses (study, embedding, subsample) into one opaque key.
func embeddingKey(study, cluster, subsample string) string {
	return study + keySep + cluster + keySep + subsample
}

// annotationKey identifies annotation values by name and scope.
func annotationKey(a Annotation) string {
	return a.Name + keySep + a.Scope
}

// expressionKey identifies expression values by gene set and consensus.
// Gene order does not matter.
func expressionKey(genes []string, consensus string) string {
	sorted := make([]string, len(genes))
	copy(sorted, genes)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + keySep + consensus
}
