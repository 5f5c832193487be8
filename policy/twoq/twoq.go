// Package twoq implements the 2Q retention policy on top of
// hashicorp/golang-lru's TwoQueueCache.
//
// 2Q keeps keys seen once (recent) apart from keys seen repeatedly
// (frequent), so a user flicking through many annotations once does not push
// out the one they keep coming back to.
package twoq

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/IvanBrykalov/clustercache/policy"
)

// MinSize is the smallest usable 2Q capacity; the ghost queue is sized at
// half of it and must hold at least one key.
const MinSize = 2

type retention[K comparable, V any] struct {
	q *lru.TwoQueueCache[K, V]
}

// New returns a 2Q Retention holding at most size keys (clamped to MinSize).
func New[K comparable, V any](size int) policy.Retention[K, V] {
	if size < MinSize {
		size = MinSize
	}
	q, err := lru.New2Q[K, V](size)
	if err != nil {
		panic(err)
	}
	return &retention[K, V]{q: q}
}

func (r *retention[K, V]) Get(k K) (V, bool) { return r.q.Get(k) }

func (r *retention[K, V]) Put(k K, v V) { r.q.Add(k, v) }

func (r *retention[K, V]) Remove(k K) { r.q.Remove(k) }

func (r *retention[K, V]) Len() int { return r.q.Len() }

var _ policy.Retention[string, int] = (*retention[string, int])(nil)
