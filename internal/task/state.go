package task

// State is the lifecycle position of a task.
type State string

const (
	StateQueued       State = "queued"
	StateDownloading  State = "downloading"
	StateDeciding     State = "deciding"
	StateTranscribing State = "transcribing"
	StateFormatting   State = "formatting"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Progress bands, in percent.
const (
	downloadStart   = 0
	downloadEnd     = 50
	transcribeStart = 50
	transcribeEnd   = 95
	complete        = 100
)

var forward = map[State][]State{
	StateQueued:       {StateDownloading},
	StateDownloading:  {StateDeciding},
	StateDeciding:     {StateTranscribing, StateFormatting},
	StateTranscribing: {StateFormatting},
	StateFormatting:   {StateDone},
}

// Terminal reports whether s ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Label is the human-readable state name.
func (s State) Label() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateDownloading:
		return "Downloading"
	case StateDeciding:
		return "Deciding"
	case StateTranscribing:
		return "Transcribing"
	case StateFormatting:
		return "Formatting"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// canTransition reports whether from -> to is a legal step. Failed and
// Cancelled are reachable from any non-terminal state; every other state is
// entered at most once.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}
