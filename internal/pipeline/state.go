package pipeline

// State is a step of a pipeline run. Runs only ever move forward.
type State int

const (
	StateIdle State = iota
	StateCorrecting
	StateResizing
	StateMaterializingAsset
	StateInvoking
	StateDecoding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCorrecting:
		return "Correcting"
	case StateResizing:
		return "Resizing"
	case StateMaterializingAsset:
		return "MaterializingAsset"
	case StateInvoking:
		return "Invoking"
	case StateDecoding:
		return "Decoding"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Stages is the number of working states between Idle and a terminal state.
const Stages = int(StateDecoding - StateIdle)
