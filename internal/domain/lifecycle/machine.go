package lifecycle

import (
	"fmt"
)

// Effect is what the engine must do to the store for a transition.
type Effect string

const (
	EffectInsert    Effect = "INSERT"    // create a record
	EffectOverwrite Effect = "OVERWRITE" // replace fields with the imported invoice
	EffectRefresh   Effect = "REFRESH"   // copy load fields if they differ
	EffectNone      Effect = "NONE"      // leave the record alone
)

type transition struct {
	to     State
	effect Effect
}

// Builder collects the permitted transitions of a lifecycle.
type Builder struct {
	transitions map[State]map[Trigger]transition
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger]transition)}
}

// Permit allows trigger to move from -> to with the given store effect.
// A later Permit for the same pair replaces the earlier one.
func (b *Builder) Permit(from State, trigger Trigger, to State, effect Effect) *Builder {
	if !from.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", from))
	}
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	if b.transitions[from] == nil {
		b.transitions[from] = make(map[Trigger]transition)
	}
	b.transitions[from][trigger] = transition{to: to, effect: effect}
	return b
}

// Build freezes the configured transitions into a Machine. Later changes
// to the builder do not affect machines already built.
func (b *Builder) Build() *Machine {
	table := make(map[State]map[Trigger]transition, len(b.transitions))
	for from, byTrigger := range b.transitions {
		cp := make(map[Trigger]transition, len(byTrigger))
		for trig, t := range byTrigger {
			cp[trig] = t
		}
		table[from] = cp
	}
	return &Machine{table: table}
}

// Machine is an immutable transition table, safe for concurrent use.
type Machine struct {
	table map[State]map[Trigger]transition
}

// Fire returns the target state and store effect of trigger in state from.
func (m *Machine) Fire(from State, trigger Trigger) (State, Effect, error) {
	t, ok := m.table[from][trigger]
	if !ok {
		return from, EffectNone, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, from)
	}
	return t.to, t.effect, nil
}

// RecordMachine is the audit record lifecycle. An invoiced record is never
// downgraded; load sync leaves it untouched.
func RecordMachine() *Machine {
	return NewBuilder().
		Permit(StateAbsent, TriggerImport, StateInvoiced, EffectInsert).
		Permit(StateAbsent, TriggerLoadSync, StatePending, EffectInsert).
		Permit(StatePending, TriggerImport, StateInvoiced, EffectOverwrite).
		Permit(StatePending, TriggerLoadSync, StatePending, EffectRefresh).
		Permit(StateInvoiced, TriggerImport, StateInvoiced, EffectOverwrite).
		Permit(StateInvoiced, TriggerLoadSync, StateInvoiced, EffectNone).
		Build()
}
