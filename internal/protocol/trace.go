package protocol

import (
	"strings"

	"github.com/danmuck/gossipctl/internal/model"
)

// Trace is the per-path history token carried alongside a state during
// exploration: which agents still hold a token and which unordered
// pairs have already spoken. Workers each carry their own Trace value;
// nothing here is shared or mutated in place.
type Trace struct {
	Tokens model.Mask
	Pairs  uint64
}

// PairBit returns the bit index of the unordered pair {i,j} in a
// pair fingerprint for n agents. Pairs are numbered (0,1),(0,2),...,
// (0,n-1),(1,2),... in ascending order.
func PairBit(n, i, j int) uint {
	if i > j {
		i, j = j, i
	}
	return uint(i*n - i*(i+1)/2 + (j - i - 1))
}

// called reports whether the pair {i,j} has spoken on this path.
func (t Trace) called(n, i, j int) bool {
	return t.Pairs&(1<<PairBit(n, i, j)) != 0
}

// record marks the pair {i,j} as having spoken.
func (t Trace) record(n, i, j int) Trace {
	t.Pairs |= 1 << PairBit(n, i, j)
	return t
}

// Permute relabels the trace through perm, acting on token holders and
// on both endpoints of every recorded pair.
func (t Trace) Permute(perm []int, n int) Trace {
	out := Trace{Tokens: model.PermuteMask(t.Tokens, perm)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if t.called(n, i, j) {
				out = out.record(n, perm[i], perm[j])
			}
		}
	}
	return out
}

// Encode returns a compact comparable encoding: two token bytes then
// eight pair bytes, big-endian.
func (t Trace) Encode() string {
	var b strings.Builder
	b.Grow(10)
	b.WriteByte(byte(t.Tokens >> 8))
	b.WriteByte(byte(t.Tokens))
	for shift := 56; shift >= 0; shift -= 8 {
		b.WriteByte(byte(t.Pairs >> uint(shift)))
	}
	return b.String()
}
