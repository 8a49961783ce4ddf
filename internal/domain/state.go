package domain

// HandleState is the client-side lifecycle of one torrent handle.
type HandleState string

const (
	StateUnstarted          HandleState = "unstarted"
	StateNegotiating        HandleState = "negotiating"
	StateAdding             HandleState = "adding"
	StateUploading          HandleState = "uploading"
	StateWaitingForMetadata HandleState = "waiting_for_metadata"
	StateReady              HandleState = "ready"
	StatePreloading         HandleState = "preloading"
	StatePlaying            HandleState = "playing"
	StateFailed             HandleState = "failed"
)

var validTransitions = map[HandleState][]HandleState{
	StateUnstarted:          {StateNegotiating, StateAdding, StateUploading, StateReady},
	StateNegotiating:        {StateUnstarted, StateAdding, StateUploading},
	StateAdding:             {StateWaitingForMetadata, StateReady},
	StateUploading:          {StateWaitingForMetadata, StateReady},
	StateWaitingForMetadata: {StateReady, StatePreloading},
	StateReady:              {StatePreloading, StatePlaying, StateWaitingForMetadata},
	StatePreloading:         {StatePlaying, StateReady},
	StatePlaying:            {StatePreloading},
}

// CanTransition reports whether a handle may move between two states.
// StateFailed is reachable from anywhere and is terminal.
func CanTransition(from, to HandleState) bool {
	if to == StateFailed {
		return from != StateFailed
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
