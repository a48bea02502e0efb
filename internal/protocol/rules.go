package protocol

import "github.com/danmuck/gossipctl/internal/model"

// Rule is a named legality predicate over (state, trace, call) plus the
// trace bookkeeping that calls under the rule perform. Implementations
// must be pure value transformations, and must be equivariant: relabeling
// state, trace, and call through the same permutation must not change
// eligibility. The search engine relies on that to deduplicate
// relabeling-symmetric states.
type Rule interface {
	Name() string
	// HistoryFree reports whether Eligible ignores the trace, letting
	// the search key its frontier by state alone.
	HistoryFree() bool
	InitialTrace(n int) Trace
	Eligible(st model.State, tr Trace, c model.Call) bool
	Advance(tr Trace, st model.State, c model.Call) Trace
	// Fingerprint projects a trace down to the components Eligible
	// reads. The search keys its frontier on the projection, so two
	// paths differing only in ignored history collapse.
	Fingerprint(tr Trace) Trace
}

// Protocol names accepted by the default registry.
const (
	ANY = "ANY"
	CO  = "CO"
	LNS = "LNS"
	TOK = "TOK"
	SPI = "SPI"
	ATK = "ATK"
)

// recordPair is the bookkeeping every rule shares: the unordered pair
// is remembered regardless of which token dynamics apply.
func recordPair(tr Trace, st model.State, c model.Call) Trace {
	return tr.record(st.N(), c.Caller, c.Callee)
}

// anyRule permits every call.
type anyRule struct{}

func (anyRule) Name() string { return ANY }
func (anyRule) HistoryFree() bool { return true }
func (anyRule) InitialTrace(int) Trace { return Trace{} }

func (anyRule) Eligible(model.State, Trace, model.Call) bool { return true }

func (anyRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	return recordPair(tr, st, c)
}

func (anyRule) Fingerprint(Trace) Trace { return Trace{} }

// coRule lets every unordered pair speak at most once.
type coRule struct{}

func (coRule) Name() string { return CO }
func (coRule) HistoryFree() bool { return false }
func (coRule) InitialTrace(int) Trace { return Trace{} }

func (coRule) Eligible(st model.State, tr Trace, c model.Call) bool {
	return !tr.called(st.N(), c.Caller, c.Callee)
}

func (coRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	return recordPair(tr, st, c)
}

func (coRule) Fingerprint(tr Trace) Trace { return Trace{Pairs: tr.Pairs} }

// lnsRule ("learn new secrets") permits a call only while the caller
// does not yet know the callee's own secret.
type lnsRule struct{}

func (lnsRule) Name() string { return LNS }
func (lnsRule) HistoryFree() bool { return true }
func (lnsRule) InitialTrace(int) Trace { return Trace{} }

func (lnsRule) Eligible(st model.State, _ Trace, c model.Call) bool {
	return !st.Mask(c.Caller).Has(c.Callee)
}

func (lnsRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	return recordPair(tr, st, c)
}

func (lnsRule) Fingerprint(Trace) Trace { return Trace{} }

// tokRule requires the caller to hold a token; the token moves to the
// callee on the call. Every agent starts with one.
type tokRule struct{}

func (tokRule) Name() string { return TOK }
func (tokRule) HistoryFree() bool { return false }

func (tokRule) InitialTrace(n int) Trace {
	return Trace{Tokens: model.Mask(1<<uint(n)) - 1}
}

func (tokRule) Eligible(_ model.State, tr Trace, c model.Call) bool {
	return tr.Tokens.Has(c.Caller)
}

func (tokRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	if tr.Tokens.Has(c.Caller) {
		tr.Tokens &^= 1 << uint(c.Caller)
		tr.Tokens |= 1 << uint(c.Callee)
	}
	return recordPair(tr, st, c)
}

func (tokRule) Fingerprint(tr Trace) Trace { return Trace{Tokens: tr.Tokens} }

// spiRule requires the caller to hold a token; the callee's token is
// destroyed on the call. Every agent starts with one.
type spiRule struct{}

func (spiRule) Name() string { return SPI }
func (spiRule) HistoryFree() bool { return false }

func (spiRule) InitialTrace(n int) Trace {
	return Trace{Tokens: model.Mask(1<<uint(n)) - 1}
}

func (spiRule) Eligible(_ model.State, tr Trace, c model.Call) bool {
	return tr.Tokens.Has(c.Caller)
}

func (spiRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	tr.Tokens &^= 1 << uint(c.Callee)
	return recordPair(tr, st, c)
}

func (spiRule) Fingerprint(tr Trace) Trace { return Trace{Tokens: tr.Tokens} }

// atkRule is the proposed ambidextrous-token variant of TOK: a call is
// permitted when either endpoint holds a token, with TOK's transfer
// dynamics unchanged. Every TOK-legal call is ATK-legal under identical
// bookkeeping, so TOK's reachable set should embed into ATK's; the
// inclusion analyzer checks that rather than assuming it.
type atkRule struct{}

func (atkRule) Name() string { return ATK }
func (atkRule) HistoryFree() bool { return false }

func (atkRule) InitialTrace(n int) Trace {
	return Trace{Tokens: model.Mask(1<<uint(n)) - 1}
}

func (atkRule) Eligible(_ model.State, tr Trace, c model.Call) bool {
	return tr.Tokens.Has(c.Caller) || tr.Tokens.Has(c.Callee)
}

func (atkRule) Advance(tr Trace, st model.State, c model.Call) Trace {
	if tr.Tokens.Has(c.Caller) {
		tr.Tokens &^= 1 << uint(c.Caller)
		tr.Tokens |= 1 << uint(c.Callee)
	}
	return recordPair(tr, st, c)
}

func (atkRule) Fingerprint(tr Trace) Trace { return Trace{Tokens: tr.Tokens} }
