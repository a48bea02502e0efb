package enumerate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/gossipctl/internal/canonical"
	"github.com/danmuck/gossipctl/internal/model"
	"github.com/danmuck/gossipctl/internal/observability"
	"github.com/danmuck/gossipctl/internal/protocol"
)

const batchSize = 256

// Limits bounds a run. Zero values mean unbounded states/duration and
// one worker per CPU.
type Limits struct {
	MaxStates   int
	MaxDuration time.Duration
	Workers     int
}

// Result is the frozen outcome of a run. States holds every canonical
// knowledge state discovered; Complete is false when a limit tripped
// before exhaustion, in which case States is a lower bound.
// AllRunsGossip reports that every expanded dead end was the fully
// gossiped state.
type Result struct {
	Protocol      string
	N             int
	States        map[canonical.Key]struct{}
	Complete      bool
	AllRunsGossip bool
	Transitions   int
	LayerSizes    []int
}

// Count returns the number of canonical states discovered.
func (r *Result) Count() int {
	return len(r.States)
}

// Enumerator explores all knowledge states reachable under one rule,
// collapsing relabeling-symmetric duplicates through the canonicalizer.
type Enumerator struct {
	canon  *canonical.Canon
	rule   protocol.Rule
	log    zerolog.Logger
	limits Limits
}

// New builds an enumerator for the given rule.
func New(canon *canonical.Canon, rule protocol.Rule, logger zerolog.Logger, limits Limits) *Enumerator {
	return &Enumerator{canon: canon, rule: rule, log: logger, limits: limits}
}

// Run resolves name in reg and enumerates its reachable set at n.
func Run(ctx context.Context, reg *protocol.Registry, name string, n int,
	canon *canonical.Canon, logger zerolog.Logger, limits Limits) (*Result, error) {
	rule, err := reg.Resolve(name)
	if err != nil {
		return nil, err
	}
	return New(canon, rule, logger, limits).Run(ctx, n)
}

// entry is one frontier item: a concrete state plus the history trace
// of the path that reached it. For history-free rules the trace is
// ignored when keying.
type entry struct {
	st model.State
	tr protocol.Trace
}

type search struct {
	e           *Enumerator
	historyFree bool
	deadline    time.Time

	states  *shardedSet // canonical state keys: the reported set
	seen    *shardedSet // expansion identity: state key or state+trace key
	nStates atomic.Int64

	limitHit  atomic.Bool
	allGossip atomic.Bool

	errOnce sync.Once
	err     atomic.Pointer[error]
}

func (s *search) fail(err error) {
	s.errOnce.Do(func() { s.err.Store(&err) })
}

func (s *search) failed() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// keys canonicalizes an entry into (reported state key, expansion key).
func (s *search) keys(ent entry) (canonical.Key, string, error) {
	if s.historyFree {
		key, err := s.e.canon.Canonicalize(ent.st)
		return key, string(key), err
	}
	key, trKey, err := s.e.canon.CanonicalizeTraced(ent.st, s.e.rule.Fingerprint(ent.tr))
	return key, string(key) + string(trKey), err
}

// admit inserts an entry's keys, returning whether the entry itself is
// new and whether its state was unseen. A state that would push the
// count past MaxStates is rolled back, so a search that drains its
// frontier with exactly MaxStates states still counts as complete.
func (s *search) admit(key canonical.Key, entryKey string) (newEntry, newState bool) {
	if !s.seen.Insert(entryKey) {
		return false, false
	}
	if !s.states.Insert(string(key)) {
		return true, false
	}
	total := s.nStates.Add(1)
	if max := s.e.limits.MaxStates; max > 0 && total > int64(max) {
		s.states.Remove(string(key))
		s.nStates.Add(-1)
		s.limitHit.Store(true)
		return false, false
	}
	return true, true
}

func (s *search) stopped() bool {
	if s.limitHit.Load() {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.limitHit.Store(true)
		return true
	}
	return false
}

// expand enumerates one entry's eligible calls, deduplicates successor
// keys per parent, and returns the entries that were globally new.
func (s *search) expand(ent entry) ([]entry, int, int) {
	rule := s.e.rule

	calls := protocol.EligibleCalls(rule, ent.st, ent.tr)
	if len(calls) == 0 {
		if !ent.st.Terminal() {
			s.allGossip.Store(false)
		}
		return nil, 0, 0
	}

	var next []entry
	transitions := 0
	newStates := 0
	local := make(map[string]struct{}, len(calls))

	for _, c := range calls {
		if s.stopped() {
			break
		}
		succ, err := ent.st.Apply(c)
		if err != nil {
			// eligible calls are generated in range; failure here is a
			// rule implementation bug
			s.fail(fmt.Errorf("expand call %s: %w", c, err))
			return next, transitions, newStates
		}
		tr := rule.Advance(ent.tr, ent.st, c)

		key, entryKey, err := s.keys(entry{st: succ, tr: tr})
		if err != nil {
			s.fail(err)
			return next, transitions, newStates
		}
		if _, ok := local[entryKey]; ok {
			continue
		}
		local[entryKey] = struct{}{}
		transitions++

		newEntry, newState := s.admit(key, entryKey)
		if newState {
			newStates++
		}
		if newEntry {
			next = append(next, entry{st: succ, tr: tr})
		}
	}
	return next, transitions, newStates
}

// Run explores the reachable set at n. Cancellation discards partial
// progress; only a tripped state or time budget yields a result marked
// incomplete.
func (e *Enumerator) Run(ctx context.Context, n int) (*Result, error) {
	st0, err := model.Initial(n)
	if err != nil {
		return nil, err
	}

	s := &search{
		e:           e,
		historyFree: e.rule.HistoryFree(),
		states:      newShardedSet(),
		seen:        newShardedSet(),
	}
	s.allGossip.Store(true)
	if e.limits.MaxDuration > 0 {
		s.deadline = time.Now().Add(e.limits.MaxDuration)
	}

	root := entry{st: st0, tr: e.rule.InitialTrace(n)}
	rootKey, rootEntryKey, err := s.keys(root)
	if err != nil {
		return nil, err
	}
	s.admit(rootKey, rootEntryKey)

	workers := e.limits.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	transitions := 0
	layerSizes := []int{1}
	frontier := []entry{root}

	for depth := 0; len(frontier) > 0 && !s.stopped(); depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		levelStart := time.Now()

		batches := make(chan []entry)
		var wg sync.WaitGroup
		var mu sync.Mutex
		var next []entry
		levelTransitions := 0
		levelNew := 0

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for batch := range batches {
					if ctx.Err() != nil || s.stopped() || s.failed() != nil {
						continue
					}
					var localNext []entry
					localTransitions := 0
					localNew := 0
					for _, ent := range batch {
						out, tr, ns := s.expand(ent)
						localNext = append(localNext, out...)
						localTransitions += tr
						localNew += ns
					}
					mu.Lock()
					next = append(next, localNext...)
					levelTransitions += localTransitions
					levelNew += localNew
					mu.Unlock()
				}
			}()
		}
		for i := 0; i < len(frontier); i += batchSize {
			end := i + batchSize
			if end > len(frontier) {
				end = len(frontier)
			}
			batches <- frontier[i:end]
		}
		close(batches)
		wg.Wait()

		if err := s.failed(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		transitions += levelTransitions
		if levelNew > 0 || len(next) > 0 {
			layerSizes = append(layerSizes, levelNew)
		}
		frontier = next

		elapsed := time.Since(levelStart)
		observability.RecordLevel(e.rule.Name(), n, levelNew, levelTransitions, elapsed)
		e.log.Debug().
			Str("protocol", e.rule.Name()).
			Int("n", n).
			Int("depth", depth).
			Int("frontier", len(frontier)).
			Int64("states", s.nStates.Load()).
			Dur("elapsed", elapsed).
			Msg("level expanded")
	}

	states := make(map[canonical.Key]struct{}, s.states.Len())
	for _, k := range s.states.Keys() {
		states[canonical.Key(k)] = struct{}{}
	}
	res := &Result{
		Protocol:      e.rule.Name(),
		N:             n,
		States:        states,
		Complete:      !s.limitHit.Load(),
		AllRunsGossip: s.allGossip.Load(),
		Transitions:   transitions,
		LayerSizes:    layerSizes,
	}
	e.log.Info().
		Str("protocol", res.Protocol).
		Int("n", n).
		Int("states", res.Count()).
		Int("transitions", res.Transitions).
		Bool("complete", res.Complete).
		Bool("all_runs_gossip", res.AllRunsGossip).
		Msg("enumeration finished")
	return res, nil
}
