package models

import (
	"fmt"
	"time"
)

// StrategyPhase represents the lifecycle phase of the running strangle.
type StrategyPhase string

const (
	// PhaseActive is the initial phase: both legs sold, no hedge placed.
	PhaseActive StrategyPhase = "active"
	// PhaseHedged means at least one protective hedge has been recorded.
	PhaseHedged StrategyPhase = "hedged"
	// PhaseExited is terminal: the loss cap was hit and the strategy is done.
	PhaseExited StrategyPhase = "exited"
)

// PhaseTransition defines one valid phase transition.
type PhaseTransition struct {
	From        StrategyPhase
	To          StrategyPhase
	Condition   string
	Description string
}

// ValidPhaseTransitions enumerates every transition the engine may perform.
var ValidPhaseTransitions = []PhaseTransition{
	{PhaseActive, PhaseHedged, "hedge_triggered", "VWAP below and live loss positive, hedge legs bought"},
	{PhaseHedged, PhaseHedged, "hedge_triggered", "Additional hedge recorded while already hedged"},
	{PhaseActive, PhaseExited, "loss_cap_reached", "Total strategy loss reached the exit cap"},
	{PhaseHedged, PhaseExited, "loss_cap_reached", "Total strategy loss reached the exit cap"},
}

// PhaseMachine tracks the strategy phase and validates transitions.
// PhaseExited is terminal: no transition leaves it.
type PhaseMachine struct {
	current        StrategyPhase
	previous       StrategyPhase
	transitionTime time.Time
	hedgeCount     int
}

// NewPhaseMachine creates a machine in the active phase.
func NewPhaseMachine() *PhaseMachine {
	return NewPhaseMachineFromState(PhaseActive)
}

// NewPhaseMachineFromState rebuilds a machine from a persisted phase.
// An empty or unknown phase falls back to active.
func NewPhaseMachineFromState(phase StrategyPhase) *PhaseMachine {
	switch phase {
	case PhaseActive, PhaseHedged, PhaseExited:
	default:
		phase = PhaseActive
	}
	return &PhaseMachine{
		current:        phase,
		previous:       phase,
		transitionTime: time.Now().UTC(),
	}
}

// Current returns the current phase.
func (m *PhaseMachine) Current() StrategyPhase { return m.current }

// Previous returns the phase before the last transition.
func (m *PhaseMachine) Previous() StrategyPhase { return m.previous }

// IsTerminal reports whether the strategy has exited.
func (m *PhaseMachine) IsTerminal() bool { return m.current == PhaseExited }

// CanHedge reports whether a hedge may still be recorded. The exit check
// runs before hedge evaluation each cycle, so a terminal machine never
// accepts another hedge.
func (m *PhaseMachine) CanHedge() bool { return m.current != PhaseExited }

// HedgeCount returns how many hedge transitions have fired.
func (m *PhaseMachine) HedgeCount() int { return m.hedgeCount }

// Transition moves to a new phase if the transition is defined.
func (m *PhaseMachine) Transition(to StrategyPhase, condition string) error {
	for _, t := range ValidPhaseTransitions {
		if t.From != m.current || t.To != to || t.Condition != condition {
			continue
		}
		m.previous = m.current
		m.current = to
		m.transitionTime = time.Now().UTC()
		if condition == "hedge_triggered" {
			m.hedgeCount++
		}
		return nil
	}
	return fmt.Errorf("invalid phase transition from %s to %s with condition %q",
		m.current, to, condition)
}

// Description returns a human-readable summary of the current phase.
func (m *PhaseMachine) Description() string {
	switch m.current {
	case PhaseActive:
		return "Strangle active, collecting premium, no hedge placed"
	case PhaseHedged:
		return fmt.Sprintf("Hedged (%d hedge entries recorded)", m.hedgeCount)
	case PhaseExited:
		return "Exited: loss cap reached, strategy terminal"
	default:
		return "Unknown phase"
	}
}
