package system

import "time"

// Phase orders systems. The step phases run once per fixed simulation step,
// in order; PhaseInput runs outside the step, when the loop has caught up.
type Phase int

const (
	PhaseCommands   Phase = iota // apply scene commands emitted last step
	PhaseUpdate                  // motion
	PhaseTransforms              // propagate world transforms
	PhaseCleanup                 // destroy queued entities, flush model requests
	PhaseInput                   // turn platform input into scene commands

	stepPhases = PhaseCleanup + 1
)

func (p Phase) String() string {
	switch p {
	case PhaseCommands:
		return "commands"
	case PhaseUpdate:
		return "update"
	case PhaseTransforms:
		return "transforms"
	case PhaseCleanup:
		return "cleanup"
	case PhaseInput:
		return "input"
	}
	return "unknown"
}

// InStep reports whether p runs as part of every fixed step.
func (p Phase) InStep() bool { return p >= PhaseCommands && p < stepPhases }

type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
