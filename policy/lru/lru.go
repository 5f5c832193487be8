// Package lru implements the LRU retention policy on top of
// hashicorp/golang-lru's non-locking simplelru.
package lru

import (
	"github.com/IvanBrykalov/clustercache/policy"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type retention[K comparable, V any] struct {
	l *simplelru.LRU[K, V]
}

// New returns an LRU Retention holding at most size keys.
// size < 1 is treated as 1.
func New[K comparable, V any](size int) policy.Retention[K, V] {
	if size < 1 {
		size = 1
	}
	l, err := simplelru.NewLRU[K, V](size, nil)
	if err != nil {
		// only returned for size <= 0
		panic(err)
	}
	return &retention[K, V]{l: l}
}

func (r *retention[K, V]) Get(k K) (V, bool) { return r.l.Get(k) }

func (r *retention[K, V]) Put(k K, v V) { r.l.Add(k, v) }

func (r *retention[K, V]) Remove(k K) { r.l.Remove(k) }

func (r *retention[K, V]) Len() int { return r.l.Len() }

var _ policy.Retention[string, int] = (*retention[string, int])(nil)
