package cache

import (
	"sync"

	"github.com/IvanBrykalov/clustercache/internal/util"
)

// storeShard is an independently locked slice of the embedding-key index.
type storeShard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

// store maps embedding keys to entries. Entries are created lazily and are
// never evicted; only clear drops them.
//
// The shard lock guards the key->entry map only. Entry contents are guarded
// by entry.mu, and the two locks are never held together.
type store struct {
	shards   []*storeShard
	newEntry func() *entry
}

func newStore(shards int, newEntry func() *entry) *store {
	switch {
	case shards <= 0:
		shards = util.ReasonableShardCount()
	case shards > util.MaxShards:
		shards = util.MaxShards
	case !util.IsPowerOfTwo(uint64(shards)):
		shards = int(util.NextPow2(uint64(shards)))
	}

	s := &store{shards: make([]*storeShard, shards), newEntry: newEntry}
	for i := range s.shards {
		s.shards[i] = &storeShard{m: make(map[string]*entry)}
	}
	return s
}

func (s *store) shardFor(key string) *storeShard {
	return s.shards[util.ShardIndex(util.Fnv64a(key), len(s.shards))]
}

// findOrCreate returns the entry for key, inserting an empty one if absent.
func (s *store) findOrCreate(key string) *entry {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// double-check after upgrading the lock
	if e, ok := sh.m[key]; ok {
		return e
	}
	e = s.newEntry()
	sh.m[key] = e
	return e
}

// alias indexes an existing entry under a second key, replacing whatever
// that key pointed at.
func (s *store) alias(key string, e *entry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = e
	sh.mu.Unlock()
}

// clear drops every key. Shards are reset one after another; a concurrent
// findOrCreate may land in an already-cleared shard, which is harmless.
func (s *store) clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.m = make(map[string]*entry)
		sh.mu.Unlock()
	}
}

// Len returns the number of indexed keys across all shards.
func (s *store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.m)
		sh.mu.RUnlock()
	}
	return total
}
