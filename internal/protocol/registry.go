package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrRuleExists  = errors.New("rule already registered")
	ErrRuleNil     = errors.New("rule is nil")
	ErrInvalidName = errors.New("invalid rule name")
	ErrUnknownRule = errors.New("unknown rule")
)

// Registry stores legality rules by name. New variants register here;
// the search engine never needs to change for them.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Rule)}
}

// Default returns a registry preloaded with the five baseline rules and
// the proposed ATK variant.
func Default() *Registry {
	r := NewRegistry()
	for _, rule := range []Rule{anyRule{}, coRule{}, lnsRule{}, tokRule{}, spiRule{}, atkRule{}} {
		if err := r.Register(rule); err != nil {
			panic(fmt.Sprintf("builtin rule %s: %v", rule.Name(), err))
		}
	}
	return r
}

// Register adds a rule under its name.
func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return ErrRuleNil
	}
	name := strings.TrimSpace(rule.Name())
	if name == "" || name != strings.ToUpper(name) {
		return fmt.Errorf("%w: %q (expect non-empty upper case)", ErrInvalidName, rule.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %s", ErrRuleExists, name)
	}
	r.items[name] = rule
	return nil
}

// Resolve returns the rule registered under name.
func (r *Registry) Resolve(name string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.items[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return rule, nil
}

// Names returns registered rule names in deterministic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
