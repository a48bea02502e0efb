package protocol

import "github.com/danmuck/gossipctl/internal/model"

// EligibleCalls returns the calls the rule permits from (st, tr), in
// ascending (caller, callee) order. The fixed order keeps exploration
// and simulation deterministic.
func EligibleCalls(rule Rule, st model.State, tr Trace) []model.Call {
	n := st.N()
	var calls []model.Call
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			c := model.Call{Caller: i, Callee: j}
			if rule.Eligible(st, tr, c) {
				calls = append(calls, c)
			}
		}
	}
	return calls
}
