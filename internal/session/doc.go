package session

// Package session implements the in-memory session store: the single owner of
// every download session record. All state and progress changes go through
// Store.Mutate, an atomic read-modify-write that also enforces the session
// state machine and the artifact invariant. Callers only ever see copies.
