package expect

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/danmuck/gossipctl/internal/model"
	"github.com/danmuck/gossipctl/internal/protocol"
)

// DefaultMaxSteps caps a single random run; a legal sequence that has
// not gossiped by then counts as the cap.
const DefaultMaxSteps = 1000

// Run performs one random legal call sequence until every agent is an
// expert, no call is legal, or maxSteps is hit. It returns the number
// of calls used.
func Run(rule protocol.Rule, n, maxSteps int, rng *rand.Rand) (int, error) {
	st, err := model.Initial(n)
	if err != nil {
		return 0, err
	}
	tr := rule.InitialTrace(n)

	for step := 0; step < maxSteps; step++ {
		if st.Terminal() {
			return step, nil
		}
		calls := protocol.EligibleCalls(rule, st, tr)
		if len(calls) == 0 {
			return step, nil
		}
		c := calls[rng.Intn(len(calls))]
		next, err := st.Apply(c)
		if err != nil {
			return 0, fmt.Errorf("random run: %w", err)
		}
		tr = rule.Advance(tr, st, c)
		st = next
	}
	return maxSteps, nil
}

// Length estimates the expected call-sequence length by Monte-Carlo
// sampling. The seed fixes the sample, keeping reported numbers
// reproducible across runs.
func Length(rule protocol.Rule, n, runs int, seed int64) (mean, stddev float64, err error) {
	if runs < 1 {
		return 0, 0, fmt.Errorf("%w: runs=%d must be positive", model.ErrConfig, runs)
	}
	rng := rand.New(rand.NewSource(seed))

	lengths := make([]float64, runs)
	total := 0.0
	for i := 0; i < runs; i++ {
		steps, err := Run(rule, n, DefaultMaxSteps, rng)
		if err != nil {
			return 0, 0, err
		}
		lengths[i] = float64(steps)
		total += lengths[i]
	}
	mean = total / float64(runs)

	if runs > 1 {
		sum := 0.0
		for _, l := range lengths {
			d := l - mean
			sum += d * d
		}
		stddev = math.Sqrt(sum / float64(runs-1))
	}
	return mean, stddev, nil
}
