package model

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// MaxAgents bounds n. Knowledge vectors are 16-bit masks, but the
// called-pair fingerprint threaded through history-dependent protocols
// is a single uint64, which holds 55 pair bits at n=11.
const MaxAgents = 11

var (
	ErrConfig      = errors.New("invalid configuration")
	ErrInvalidCall = errors.New("invalid call")
)

// Mask is a secret set over agents [0,n), one bit per secret.
type Mask uint16

// Count returns the number of secrets in the set.
func (m Mask) Count() int {
	return bits.OnesCount16(uint16(m))
}

// Has reports whether secret s is in the set.
func (m Mask) Has(s int) bool {
	return m&(1<<uint(s)) != 0
}

// Call is an ordered pair of agents; the caller initiates the exchange.
type Call struct {
	Caller int
	Callee int
}

func (c Call) String() string {
	return fmt.Sprintf("(%d,%d)", c.Caller, c.Callee)
}

// State is the ordered tuple of knowledge vectors for n agents.
// Operations return fresh values; a State is never mutated in place.
type State struct {
	n    int
	know []Mask
}

// Initial returns the configuration where agent k knows exactly secret k.
func Initial(n int) (State, error) {
	if n < 2 || n > MaxAgents {
		return State{}, fmt.Errorf("%w: n=%d must be in [2,%d]", ErrConfig, n, MaxAgents)
	}
	know := make([]Mask, n)
	for i := range know {
		know[i] = 1 << uint(i)
	}
	return State{n: n, know: know}, nil
}

// FromMasks builds a state from explicit knowledge vectors. Each agent
// must know its own secret and no mask may reference secrets >= n.
func FromMasks(masks []Mask) (State, error) {
	n := len(masks)
	if n < 2 || n > MaxAgents {
		return State{}, fmt.Errorf("%w: %d agents must be in [2,%d]", ErrConfig, n, MaxAgents)
	}
	full := fullMask(n)
	know := make([]Mask, n)
	for i, m := range masks {
		if m&^full != 0 {
			return State{}, fmt.Errorf("%w: agent %d mask references secrets outside [0,%d)", ErrConfig, i, n)
		}
		if !m.Has(i) {
			return State{}, fmt.Errorf("%w: agent %d does not know its own secret", ErrConfig, i)
		}
		know[i] = m
	}
	return State{n: n, know: know}, nil
}

// N returns the agent count.
func (s State) N() int {
	return s.n
}

// Mask returns agent i's knowledge vector.
func (s State) Mask(i int) Mask {
	return s.know[i]
}

// FullMask is the set of all n secrets.
func (s State) FullMask() Mask {
	return fullMask(s.n)
}

func fullMask(n int) Mask {
	return Mask(1<<uint(n)) - 1
}

// Apply unions both participants' knowledge vectors and leaves every
// other agent untouched. The receiver is not modified.
func (s State) Apply(c Call) (State, error) {
	if c.Caller == c.Callee {
		return State{}, fmt.Errorf("%w: caller and callee are both %d", ErrInvalidCall, c.Caller)
	}
	if c.Caller < 0 || c.Caller >= s.n || c.Callee < 0 || c.Callee >= s.n {
		return State{}, fmt.Errorf("%w: %s out of range for n=%d", ErrInvalidCall, c, s.n)
	}
	united := s.know[c.Caller] | s.know[c.Callee]
	know := make([]Mask, s.n)
	copy(know, s.know)
	know[c.Caller] = united
	know[c.Callee] = united
	return State{n: s.n, know: know}, nil
}

// Terminal reports whether every agent knows every secret.
func (s State) Terminal() bool {
	full := s.FullMask()
	for _, m := range s.know {
		if m != full {
			return false
		}
	}
	return true
}

// Permute applies the relabeling perm simultaneously to agent positions
// and to secret indices. perm must be a permutation of [0,n).
func (s State) Permute(perm []int) State {
	know := make([]Mask, s.n)
	for i, m := range s.know {
		know[perm[i]] = PermuteMask(m, perm)
	}
	return State{n: s.n, know: know}
}

// PermuteMask relabels every secret in m through perm.
func PermuteMask(m Mask, perm []int) Mask {
	var out Mask
	for s := 0; m != 0; s++ {
		if m&1 != 0 {
			out |= 1 << uint(perm[s])
		}
		m >>= 1
	}
	return out
}

// Encode returns a compact comparable encoding of the state, two bytes
// per agent in index order.
func (s State) Encode() string {
	var b strings.Builder
	b.Grow(2 * s.n)
	for _, m := range s.know {
		b.WriteByte(byte(m >> 8))
		b.WriteByte(byte(m))
	}
	return b.String()
}

func (s State) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, m := range s.know {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('{')
		first := true
		for sec := 0; sec < s.n; sec++ {
			if m.Has(sec) {
				if !first {
					b.WriteByte(',')
				}
				fmt.Fprintf(&b, "%d", sec)
				first = false
			}
		}
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}
