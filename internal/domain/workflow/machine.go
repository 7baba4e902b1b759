package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a configured transition may be taken
type GuardFunc func(ctx context.Context) bool

// Machine tracks a receipt's current state and validates transitions
// against the configured table.
type Machine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger has any configured transition
	// from the current state (guards are not evaluated)
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the target state of the first
	// transition whose guard passes. ErrStateConflict if the trigger is
	// not configured for the current state; ErrGuardRejected if every
	// guard refuses.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists the triggers configured for the current
	// state, sorted for deterministic output
	PermittedTriggers() []Trigger
}

// Builder assembles a transition table and produces Machine instances
type Builder struct {
	table map[State]map[Trigger][]edge
}

type edge struct {
	to    State
	guard GuardFunc
}

// NewBuilder creates an empty transition-table builder
func NewBuilder() *Builder {
	return &Builder{table: make(map[State]map[Trigger][]edge)}
}

// Permit allows trigger to move from one state to another unconditionally
func (b *Builder) Permit(from State, trigger Trigger, to State) *Builder {
	return b.PermitIf(from, trigger, to, nil)
}

// PermitIf allows the transition only while guard evaluates true. Edges
// for the same (state, trigger) pair are tried in registration order.
func (b *Builder) PermitIf(from State, trigger Trigger, to State, guard GuardFunc) *Builder {
	if !IsValidState(from) {
		panic(fmt.Sprintf("workflow: invalid source state %q", from))
	}
	if !IsValidState(to) {
		panic(fmt.Sprintf("workflow: invalid target state %q", to))
	}
	if IsHardTerminal(from) {
		panic(fmt.Sprintf("workflow: state %q is terminal, no outgoing edges allowed", from))
	}

	if b.table[from] == nil {
		b.table[from] = make(map[Trigger][]edge)
	}
	b.table[from][trigger] = append(b.table[from][trigger], edge{to: to, guard: guard})
	return b
}

// Build creates a machine positioned at initial. The machine holds its
// own copy of the table, so the builder may be reused or discarded.
func (b *Builder) Build(initial State) Machine {
	if !IsValidState(initial) {
		panic(fmt.Sprintf("workflow: invalid initial state %q", initial))
	}

	table := make(map[State]map[Trigger][]edge, len(b.table))
	for from, triggers := range b.table {
		tc := make(map[Trigger][]edge, len(triggers))
		for trigger, edges := range triggers {
			tc[trigger] = append([]edge(nil), edges...)
		}
		table[from] = tc
	}

	return &machine{current: initial, table: table}
}

type machine struct {
	current State
	table   map[State]map[Trigger][]edge
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.table[m.current][trigger]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	edges := m.table[m.current][trigger]
	if len(edges) == 0 {
		return fmt.Errorf("%w: %s from %s", ErrStateConflict, trigger, m.current)
	}

	for _, e := range edges {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardRejected, trigger, m.current)
}

func (m *machine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.table[m.current]))
	for trigger := range m.table[m.current] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
