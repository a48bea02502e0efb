package enumerate

import "sync"

const shardCount = 64

// shardedSet is a string set partitioned by key hash. Insertion is the
// only mutating operation; the first writer wins and later duplicates
// are reported, not errors.
type shardedSet struct {
	shards [shardCount]shard
}

type shard struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func newShardedSet() *shardedSet {
	s := &shardedSet{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]struct{})
	}
	return s
}

// fnv1a, inlined to keep the hot path allocation-free.
func fnv1a(key string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}

// Insert adds key and reports whether it was absent.
func (s *shardedSet) Insert(key string) bool {
	sh := &s.shards[fnv1a(key)%shardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[key]; ok {
		return false
	}
	sh.m[key] = struct{}{}
	return true
}

// Remove deletes key. Only the writer that inserted a key may remove
// it, so a removed key was never observed by other workers.
func (s *shardedSet) Remove(key string) {
	sh := &s.shards[fnv1a(key)%shardCount]
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Len returns the total number of keys.
func (s *shardedSet) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		total += len(s.shards[i].m)
		s.shards[i].mu.Unlock()
	}
	return total
}

// Keys snapshots the set.
func (s *shardedSet) Keys() []string {
	out := make([]string, 0, s.Len())
	for i := range s.shards {
		s.shards[i].mu.Lock()
		for k := range s.shards[i].m {
			out = append(out, k)
		}
		s.shards[i].mu.Unlock()
	}
	return out
}
