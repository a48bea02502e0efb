package inclusion

import (
	"errors"
	"fmt"

	"github.com/danmuck/gossipctl/internal/enumerate"
)

// Relation places one reachable set against another.
type Relation int

const (
	Equal Relation = iota
	ProperSubset
	ProperSuperset
	Incomparable
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "equal"
	case ProperSubset:
		return "proper-subset"
	case ProperSuperset:
		return "proper-superset"
	case Incomparable:
		return "incomparable"
	default:
		return fmt.Sprintf("relation(%d)", int(r))
	}
}

var (
	ErrMismatchedN = errors.New("reachable sets computed for different n")
	ErrPartialSet  = errors.New("reachable set is partial")
	ErrNilResult   = errors.New("nil result")
)

// Compare decides how a's reachable set relates to b's. Both must be
// complete runs at the same n; partial sets would turn a missing state
// into a bogus verdict.
func Compare(a, b *enumerate.Result) (Relation, error) {
	if a == nil || b == nil {
		return Incomparable, ErrNilResult
	}
	if a.N != b.N {
		return Incomparable, fmt.Errorf("%w: %d vs %d", ErrMismatchedN, a.N, b.N)
	}
	if !a.Complete {
		return Incomparable, fmt.Errorf("%w: %s at n=%d", ErrPartialSet, a.Protocol, a.N)
	}
	if !b.Complete {
		return Incomparable, fmt.Errorf("%w: %s at n=%d", ErrPartialSet, b.Protocol, b.N)
	}

	shared := 0
	for key := range a.States {
		if _, ok := b.States[key]; ok {
			shared++
		}
	}
	aOnly := len(a.States) - shared
	bOnly := len(b.States) - shared

	switch {
	case aOnly == 0 && bOnly == 0:
		return Equal, nil
	case aOnly == 0:
		return ProperSubset, nil
	case bOnly == 0:
		return ProperSuperset, nil
	default:
		return Incomparable, nil
	}
}
