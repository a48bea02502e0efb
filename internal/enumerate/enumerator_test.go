package enumerate

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/gossipctl/internal/canonical"
	"github.com/danmuck/gossipctl/internal/fixtures"
	"github.com/danmuck/gossipctl/internal/model"
	"github.com/danmuck/gossipctl/internal/protocol"
	"github.com/danmuck/gossipctl/internal/testutil/testlog"
)

func runProto(t *testing.T, name string, n int, limits Limits) *Result {
	t.Helper()
	res, err := Run(context.Background(), protocol.Default(), name, n,
		canonical.MustDefault(), zerolog.Nop(), limits)
	require.NoError(t, err)
	return res
}

func TestN2AnyEndToEnd(t *testing.T) {
	testlog.Start(t)

	res := runProto(t, protocol.ANY, 2, Limits{Workers: 1})
	require.Equal(t, 2, res.Count())
	require.True(t, res.Complete)
	require.True(t, res.AllRunsGossip)
	require.Equal(t, []int{1, 1}, res.LayerSizes)

	// both the identity distribution and the fully gossiped state must
	// be members
	canon := canonical.MustDefault()
	initial, err := model.Initial(2)
	require.NoError(t, err)
	initialKey, err := canon.Canonicalize(initial)
	require.NoError(t, err)
	require.Contains(t, res.States, initialKey)

	full, err := model.FromMasks([]model.Mask{0b11, 0b11})
	require.NoError(t, err)
	fullKey, err := canon.Canonicalize(full)
	require.NoError(t, err)
	require.Contains(t, res.States, fullKey)
}

func TestN3AnyMatchesReference(t *testing.T) {
	testlog.Start(t)

	table, err := fixtures.Default()
	require.NoError(t, err)
	want, ok := table.Expected(protocol.ANY, 3)
	require.True(t, ok)

	res := runProto(t, protocol.ANY, 3, Limits{})
	require.Equal(t, want, res.Count())
	require.True(t, res.Complete)
	require.True(t, res.AllRunsGossip)
}

func TestReferenceCountRegression(t *testing.T) {
	testlog.Start(t)

	table, err := fixtures.Default()
	require.NoError(t, err)

	for _, n := range table.Ns() {
		for _, name := range []string{protocol.ANY, protocol.CO, protocol.LNS, protocol.TOK, protocol.SPI} {
			want, ok := table.Expected(name, n)
			require.True(t, ok, "%s n=%d missing from fixture table", name, n)

			res := runProto(t, name, n, Limits{})
			require.True(t, res.Complete, "%s n=%d tripped a limit", name, n)
			require.Equal(t, want, res.Count(), "%s n=%d", name, n)
		}
	}
}

func TestInitialStateAlwaysMember(t *testing.T) {
	testlog.Start(t)

	canon := canonical.MustDefault()
	initial, err := model.Initial(3)
	require.NoError(t, err)
	initialKey, err := canon.Canonicalize(initial)
	require.NoError(t, err)

	for _, name := range protocol.Default().Names() {
		res := runProto(t, name, 3, Limits{})
		require.Contains(t, res.States, initialKey, "protocol %s", name)
	}
}

func TestAnyIsMaximal(t *testing.T) {
	testlog.Start(t)

	for _, n := range []int{3, 4} {
		any := runProto(t, protocol.ANY, n, Limits{})
		for _, name := range protocol.Default().Names() {
			if name == protocol.ANY {
				continue
			}
			res := runProto(t, name, n, Limits{})
			for key := range res.States {
				require.Contains(t, any.States, key,
					"%s at n=%d reaches a state ANY does not", name, n)
			}
		}
	}
}

func TestSerialAndParallelAgree(t *testing.T) {
	testlog.Start(t)

	for _, name := range []string{protocol.ANY, protocol.CO, protocol.TOK, protocol.SPI} {
		serial := runProto(t, name, 4, Limits{Workers: 1})
		parallel := runProto(t, name, 4, Limits{Workers: 4})

		require.Equal(t, serial.Count(), parallel.Count(), "%s", name)
		require.Equal(t, serial.Transitions, parallel.Transitions, "%s", name)
		require.Equal(t, serial.LayerSizes, parallel.LayerSizes, "%s", name)
		require.Equal(t, serial.AllRunsGossip, parallel.AllRunsGossip, "%s", name)

		keys := func(r *Result) []string {
			out := make([]string, 0, len(r.States))
			for k := range r.States {
				out = append(out, string(k))
			}
			sort.Strings(out)
			return out
		}
		require.Equal(t, keys(serial), keys(parallel), "%s", name)
	}
}

func TestStateBudgetYieldsPartialResult(t *testing.T) {
	testlog.Start(t)

	res := runProto(t, protocol.ANY, 4, Limits{MaxStates: 3, Workers: 1})
	require.False(t, res.Complete)
	require.Equal(t, 3, res.Count())
}

func TestStateBudgetAtExhaustionStaysComplete(t *testing.T) {
	testlog.Start(t)

	table, err := fixtures.Default()
	require.NoError(t, err)
	total, ok := table.Expected(protocol.ANY, 4)
	require.True(t, ok)

	// budget equal to the reachable count: the frontier drains naturally
	// and no state is ever refused
	exact := runProto(t, protocol.ANY, 4, Limits{MaxStates: total, Workers: 1})
	require.True(t, exact.Complete)
	require.Equal(t, total, exact.Count())

	// one below: the final state is refused and the run is partial
	under := runProto(t, protocol.ANY, 4, Limits{MaxStates: total - 1, Workers: 1})
	require.False(t, under.Complete)
	require.Equal(t, total-1, under.Count())
}

// oneShot lets every agent participate in at most one call, so at
// n >= 3 every run stalls before full gossip. Fresh agents are tracked
// in the token mask, keeping the rule equivariant.
type oneShot struct{}

func (oneShot) Name() string { return "ONESHOT" }
func (oneShot) HistoryFree() bool { return false }

func (oneShot) InitialTrace(n int) protocol.Trace {
	return protocol.Trace{Tokens: model.Mask(1<<uint(n)) - 1}
}

func (oneShot) Eligible(_ model.State, tr protocol.Trace, c model.Call) bool {
	return tr.Tokens.Has(c.Caller) && tr.Tokens.Has(c.Callee)
}

func (oneShot) Advance(tr protocol.Trace, _ model.State, c model.Call) protocol.Trace {
	tr.Tokens &^= 1 << uint(c.Caller)
	tr.Tokens &^= 1 << uint(c.Callee)
	return tr
}

func (oneShot) Fingerprint(tr protocol.Trace) protocol.Trace {
	return protocol.Trace{Tokens: tr.Tokens}
}

func TestNonTerminalDeadEndFlipsVerdict(t *testing.T) {
	testlog.Start(t)

	reg := protocol.NewRegistry()
	require.NoError(t, reg.Register(oneShot{}))

	res, err := Run(context.Background(), reg, "ONESHOT", 3,
		canonical.MustDefault(), zerolog.Nop(), Limits{Workers: 1})
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.False(t, res.AllRunsGossip, "the one-call state is a non-terminal dead end")

	// only the identity distribution and the single-call distribution
	// are reachable
	require.Equal(t, 2, res.Count())
}

func TestDurationBudgetYieldsPartialResult(t *testing.T) {
	testlog.Start(t)

	res := runProto(t, protocol.ANY, 6, Limits{MaxDuration: time.Nanosecond})
	require.False(t, res.Complete)
	require.GreaterOrEqual(t, res.Count(), 1)
}

func TestCancellationDiscardsRun(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, protocol.Default(), protocol.ANY, 4,
		canonical.MustDefault(), zerolog.Nop(), Limits{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnknownProtocolSurfaces(t *testing.T) {
	testlog.Start(t)

	_, err := Run(context.Background(), protocol.Default(), "NOPE", 3,
		canonical.MustDefault(), zerolog.Nop(), Limits{})
	require.ErrorIs(t, err, protocol.ErrUnknownRule)
}

func TestInvalidNSurfacesConfigError(t *testing.T) {
	testlog.Start(t)

	_, err := Run(context.Background(), protocol.Default(), protocol.ANY, 1,
		canonical.MustDefault(), zerolog.Nop(), Limits{})
	require.True(t, errors.Is(err, model.ErrConfig), "got %v", err)
}

func TestCanonicalizerBoundSurfaces(t *testing.T) {
	testlog.Start(t)

	canon, err := canonical.New(3, 128)
	require.NoError(t, err)
	_, err = Run(context.Background(), protocol.Default(), protocol.ANY, 4,
		canon, zerolog.Nop(), Limits{})
	require.ErrorIs(t, err, canonical.ErrLimit)
}

func TestShardedSetFirstWriterWins(t *testing.T) {
	testlog.Start(t)

	s := newShardedSet()
	require.True(t, s.Insert("a"))
	require.False(t, s.Insert("a"))
	require.True(t, s.Insert("b"))
	require.Equal(t, 2, s.Len())

	keys := s.Keys()
	sort.Strings(keys)
	require.Equal(t, []string{"a", "b"}, keys)
}
