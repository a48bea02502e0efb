package results

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/gossipctl/internal/enumerate"
)

// Store is an in-memory table of completed runs keyed by protocol and
// agent count, letting analysis phases share results in one process.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*enumerate.Result
}

// NewStore creates an empty result store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*enumerate.Result)}
}

func key(protocol string, n int) string {
	return fmt.Sprintf("%s/%d", protocol, n)
}

// Put records a run, replacing any earlier run of the same (protocol, n).
func (s *Store) Put(res *enumerate.Result) error {
	if res == nil {
		return fmt.Errorf("results: nil result")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[key(res.Protocol, res.N)] = res
	return nil
}

// Get returns the stored run for (protocol, n).
func (s *Store) Get(protocol string, n int) (*enumerate.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.runs[key(protocol, n)]
	return res, ok
}

// List returns all stored runs ordered by n then protocol name.
func (s *Store) List() []*enumerate.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*enumerate.Result, 0, len(s.runs))
	for _, res := range s.runs {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N < out[j].N
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}
