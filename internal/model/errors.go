package model

import "errors"

// Error kinds surfaced by the orchestration layer. Callers match them with
// errors.Is; wrapped errors carry the detail.
var (
	// ErrNotFound means the session id is unknown or was reclaimed
	ErrNotFound = errors.New("invalid session_id")

	// ErrInvalidState means the operation is not permitted in the current state
	ErrInvalidState = errors.New("invalid session state")

	// ErrInspection means the engine could not resolve the URL
	ErrInspection = errors.New("inspection failed")

	// ErrDownload means the engine failed while running a job
	ErrDownload = errors.New("download failed")

	// ErrUnsafeArtifact means the virus scan rejected the produced file
	ErrUnsafeArtifact = errors.New("virus detected, download aborted")

	// ErrArtifactMissing means no servable file exists for the session
	ErrArtifactMissing = errors.New("file not available or not found")

	// ErrInvalidRequest means the client input failed validation
	ErrInvalidRequest = errors.New("invalid request")

	// ErrIDExhausted means no unique session id could be allocated
	ErrIDExhausted = errors.New("session id allocation exhausted")
)
