// Package policy defines retention policies for the keyed value slots of a
// cache entry (annotation values and expression values).
//
// An entry keeps at most Capacity keyed values per field. With Capacity 1
// every Put of a new key discards the previous one, which is the default
// behaviour of the cluster cache.
package policy

import "fmt"

// Kind names a retention policy.
type Kind string

const (
	// LRU drops the least recently used key once Capacity is reached.
	LRU Kind = "lru"
	// TwoQ separates keys seen once from keys seen repeatedly (scan resistant).
	TwoQ Kind = "2q"
)

// ParseKind maps a configuration string to a Kind. Empty selects LRU.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", LRU:
		return LRU, nil
	case TwoQ:
		return TwoQ, nil
	default:
		return "", fmt.Errorf("policy: unknown retention policy %q (use lru or 2q)", s)
	}
}

// Retention is a bounded set of keyed values owned by one cache entry.
//
// Concurrency: implementations need not be safe for concurrent use; the
// owning entry serializes access under its own lock.
type Retention[K comparable, V any] interface {
	// Get returns the value for k and marks it as recently used.
	Get(k K) (V, bool)
	// Put inserts or replaces k, dropping other keys if Capacity is exceeded.
	Put(k K, v V)
	// Remove deletes k if present.
	Remove(k K)
	// Len returns the number of retained keys.
	Len() int
}
