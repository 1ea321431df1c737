package download

// Package download implements the session pipeline on top of an external
// engine: the Runner executes one background job per session and funnels
// progress and outcome into the session store, and the Service exposes the
// client-facing operations (inspect, start, poll, fetch).
