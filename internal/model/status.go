package model

// SessionStatus represents the lifecycle state of a download session
type SessionStatus string

const (
	// StatusReady means metadata was captured and no job has run yet
	StatusReady SessionStatus = "ready"

	// StatusDownloading means a job is scheduled or in progress
	StatusDownloading SessionStatus = "downloading"

	// StatusCompleted means the last job produced a scanned artifact
	StatusCompleted SessionStatus = "completed"

	// StatusError means the last job failed or its artifact was rejected
	StatusError SessionStatus = "error"
)

// String returns the string representation of SessionStatus
func (s SessionStatus) String() string {
	return string(s)
}

// IsActive returns true if a job currently owns the session
func (s SessionStatus) IsActive() bool {
	return s == StatusDownloading
}

// CanStart reports whether a new job may be launched from this state.
// Completed and Error allow re-triggering (retry or different format).
func (s SessionStatus) CanStart() bool {
	switch s {
	case StatusReady, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// IsValid returns true for the four known states
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusReady, StatusDownloading, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// transitions lists the permitted edges of the session state machine.
// Self-loops are always allowed (progress updates keep the state unchanged).
var transitions = map[SessionStatus][]SessionStatus{
	StatusReady:       {StatusDownloading},
	StatusDownloading: {StatusCompleted, StatusError},
	StatusCompleted:   {StatusDownloading},
	StatusError:       {StatusDownloading},
}

// CanTransition reports whether a session may move from one state to another
func CanTransition(from, to SessionStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
