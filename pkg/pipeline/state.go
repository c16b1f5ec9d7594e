package pipeline

import (
	"fmt"
	"slices"
	"time"
)

// Phase is a step of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseCooldown  Phase = "cooldown"
	PhaseEnriching Phase = "enriching"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseFetching, PhaseDone, PhaseFailed},
	PhaseFetching:  {PhaseFetching, PhaseCooldown, PhaseEnriching, PhaseDone, PhaseFailed},
	PhaseCooldown:  {PhaseFetching, PhaseFailed},
	PhaseEnriching: {PhaseDone, PhaseFailed},
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// CanTransition reports whether a run may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	return slices.Contains(transitions[p], next)
}

// State is published to [Runner.OnState] on every transition.
type State struct {
	RunID string
	Phase Phase

	Burst     int           // Current burst (Fetching) or bursts finished (Cooldown)
	Bursts    int           // Planned bursts
	Remaining time.Duration // Cooldown left
	Err       error         // Set for Failed
}

func (s State) String() string {
	switch s.Phase {
	case PhaseFetching:
		return fmt.Sprintf("fetching(%d/%d)", s.Burst, s.Bursts)
	case PhaseCooldown:
		return fmt.Sprintf("cooldown(%s)", s.Remaining)
	case PhaseFailed:
		return fmt.Sprintf("failed: %v", s.Err)
	default:
		return string(s.Phase)
	}
}
