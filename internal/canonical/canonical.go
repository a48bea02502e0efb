package canonical

import (
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/danmuck/gossipctl/internal/model"
	"github.com/danmuck/gossipctl/internal/protocol"
)

// DefaultMaxAgents caps the permutation search. Past this the per-state
// cost (362,880 candidates at n=9 in the worst case) dominates a run.
const DefaultMaxAgents = 9

// DefaultCacheSize is the ARC cache capacity for canonicalization results.
const DefaultCacheSize = 1 << 16

// ErrLimit reports a state beyond the configured agent bound.
var ErrLimit = errors.New("agent count beyond canonicalizer bound")

// Key is the comparable encoding of a canonical state: the lex-min mask
// tuple over all simultaneous agent/secret relabelings, under an order
// that compares per-agent knowledge-set sizes before mask values.
type Key string

// TraceKey is the canonical fingerprint of a history trace, minimized
// jointly with its state.
type TraceKey string

// N recovers the agent count from a key.
func (k Key) N() int {
	return len(k) / 2
}

// State decodes the canonical representative the key encodes.
func (k Key) State() (model.State, error) {
	n := k.N()
	if n < 2 || len(k)%2 != 0 {
		return model.State{}, fmt.Errorf("%w: malformed key of %d bytes", model.ErrConfig, len(k))
	}
	masks := make([]model.Mask, n)
	for i := 0; i < n; i++ {
		masks[i] = model.Mask(k[2*i])<<8 | model.Mask(k[2*i+1])
	}
	return model.FromMasks(masks)
}

// Canon computes canonical forms under the full relabeling group. A
// permutation acts on agent positions and secret indices at once, so
// only agents with equal knowledge-set cardinality can map to each
// other; candidates are enumerated per cardinality group rather than
// over all n! relabelings.
type Canon struct {
	maxAgents int
	cache     *lru.ARCCache
}

// New builds a canonicalizer with the given agent bound and cache size.
func New(maxAgents, cacheSize int) (*Canon, error) {
	if maxAgents < 2 || maxAgents > model.MaxAgents {
		return nil, fmt.Errorf("%w: maxAgents=%d must be in [2,%d]", model.ErrConfig, maxAgents, model.MaxAgents)
	}
	cache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("canonical cache: %w", err)
	}
	return &Canon{maxAgents: maxAgents, cache: cache}, nil
}

// MustDefault returns a canonicalizer with default bounds; it only
// fails on programmer error.
func MustDefault() *Canon {
	c, err := New(DefaultMaxAgents, DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

// MaxAgents returns the configured bound.
func (c *Canon) MaxAgents() int {
	return c.maxAgents
}

type cached struct {
	key      Key
	traceKey TraceKey
}

// Canonicalize maps st to the canonical representative of its
// relabeling orbit. Total over valid states within the agent bound.
func (c *Canon) Canonicalize(st model.State) (Key, error) {
	key, _, err := c.run(st, protocol.Trace{}, false)
	return key, err
}

// CanonicalizeTraced canonicalizes (state, trace) jointly: the state
// key is the same as Canonicalize's, and among the relabelings that
// realize it the minimal permuted trace becomes the fingerprint. Two
// paths whose (state, trace) pairs are relabelings of each other
// collapse to the same pair of keys.
func (c *Canon) CanonicalizeTraced(st model.State, tr protocol.Trace) (Key, TraceKey, error) {
	return c.run(st, tr, true)
}

func (c *Canon) run(st model.State, tr protocol.Trace, traced bool) (Key, TraceKey, error) {
	n := st.N()
	if n > c.maxAgents {
		return "", "", fmt.Errorf("%w: n=%d > %d", ErrLimit, n, c.maxAgents)
	}

	cacheKey := st.Encode()
	if traced {
		cacheKey += tr.Encode()
	}
	if v, ok := c.cache.Get(cacheKey); ok {
		hit := v.(cached)
		return hit.key, hit.traceKey, nil
	}

	best, bestTrace := minimize(st, tr, traced)

	out := cached{key: encodeMasks(best)}
	if traced {
		out.traceKey = TraceKey(bestTrace.Encode())
	}
	c.cache.Add(cacheKey, out)
	return out.key, out.traceKey, nil
}

// minimize scans the block-respecting relabelings. Forcing the
// canonical row order to list cardinalities nondecreasing makes the
// per-group enumeration exact: any relabeling producing an unsorted
// cardinality sequence compares greater and can never win.
func minimize(st model.State, tr protocol.Trace, traced bool) ([]model.Mask, protocol.Trace) {
	n := st.N()
	groups := cardinalityGroups(st)
	groupPerms := make([][][]int, len(groups))
	for g, members := range groups {
		groupPerms[g] = permutations(members)
	}

	perm := make([]int, n)
	candidate := make([]model.Mask, n)
	var best []model.Mask
	var bestTrace protocol.Trace

	var walk func(g, base int)
	walk = func(g, base int) {
		if g == len(groups) {
			applyPerm(st, perm, candidate)
			cmp := compareMasks(candidate, best)
			if best == nil || cmp < 0 {
				best = append(best[:0], candidate...)
				if traced {
					bestTrace = tr.Permute(perm, n)
				}
				return
			}
			if traced && cmp == 0 {
				pt := tr.Permute(perm, n)
				if lessTrace(pt, bestTrace) {
					bestTrace = pt
				}
			}
			return
		}
		for _, p := range groupPerms[g] {
			// agent p[k] occupies canonical position base+k
			for k, agent := range p {
				perm[agent] = base + k
			}
			walk(g+1, base+len(p))
		}
	}
	walk(0, 0)
	return best, bestTrace
}

// cardinalityGroups partitions agent indices by knowledge-set size,
// smallest sets first.
func cardinalityGroups(st model.State) [][]int {
	n := st.N()
	byCard := make(map[int][]int)
	cards := make([]int, 0, n)
	for i := 0; i < n; i++ {
		card := st.Mask(i).Count()
		if _, ok := byCard[card]; !ok {
			cards = append(cards, card)
		}
		byCard[card] = append(byCard[card], i)
	}
	sort.Ints(cards)
	groups := make([][]int, 0, len(cards))
	for _, card := range cards {
		groups = append(groups, byCard[card])
	}
	return groups
}

func applyPerm(st model.State, perm []int, out []model.Mask) {
	for i := 0; i < st.N(); i++ {
		out[perm[i]] = model.PermuteMask(st.Mask(i), perm)
	}
}

func compareMasks(a, b []model.Mask) int {
	if b == nil {
		return -1
	}
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func lessTrace(a, b protocol.Trace) bool {
	if a.Tokens != b.Tokens {
		return a.Tokens < b.Tokens
	}
	return a.Pairs < b.Pairs
}

func encodeMasks(masks []model.Mask) Key {
	buf := make([]byte, 0, 2*len(masks))
	for _, m := range masks {
		buf = append(buf, byte(m>>8), byte(m))
	}
	return Key(buf)
}

// permutations returns every ordering of items. Sizes here are small:
// a cardinality group rarely exceeds a handful of agents.
func permutations(items []int) [][]int {
	if len(items) == 1 {
		return [][]int{{items[0]}}
	}
	var out [][]int
	for i := range items {
		rest := make([]int, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, tail := range permutations(rest) {
			p := make([]int, 0, len(items))
			p = append(p, items[i])
			p = append(p, tail...)
			out = append(out, p)
		}
	}
	return out
}
