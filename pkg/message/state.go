package message

// State is the lifecycle of a part. Text parts use StateStreaming and
// StateDone, tool parts walk input-streaming → input-available →
// output-available | output-error.
type State string

const (
	StateStreaming State = "streaming"
	StateDone      State = "done"

	StateInputStreaming  State = "input-streaming"
	StateInputAvailable  State = "input-available"
	StateOutputAvailable State = "output-available"
	StateOutputError     State = "output-error"
)

func (s State) rank() int {
	switch s {
	case StateInputStreaming:
		return 1
	case StateInputAvailable:
		return 2
	case StateOutputAvailable, StateOutputError:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateOutputAvailable || s == StateOutputError
}

// IsToolState reports whether s belongs to the tool invocation lifecycle.
func (s State) IsToolState() bool {
	return s.rank() > 0
}

// CanTransition reports whether a tool part may move from one state to
// another. A walk moves one step at a time: input-available cannot be
// skipped and terminal states are final. The empty state stands for a
// part that does not exist yet; such a part may begin with either input
// state.
func CanTransition(from, to State) bool {
	if !to.IsToolState() {
		return false
	}
	if from == "" {
		return to == StateInputStreaming || to == StateInputAvailable
	}
	return to.rank() == from.rank()+1
}
