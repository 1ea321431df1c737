package model

// Package model defines the domain data structures shared across the service:
// download sessions, their captured metadata, job progress, status enums and
// the error kinds surfaced to clients. Sessions move only along the explicit
// transitions defined by SessionStatus.
