// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "time"

// Actions accepted on the control socket.
const (
	// ActionStatus returns the watched path list and its current
	// resolution.
	ActionStatus = "status"

	// ActionSetPaths replaces the monitored path list wholesale.
	ActionSetPaths = "set-paths"

	// ActionResolve resolves the given paths without changing the
	// monitored list.
	ActionResolve = "resolve"

	// ActionSubscribe turns the connection into a change-event stream.
	ActionSubscribe = "subscribe"
)

// Request is a CBOR-encoded request to the daemon's control socket.
type Request struct {
	// Action is the request type: "status", "set-paths", "resolve",
	// or "subscribe".
	Action string `cbor:"action"`

	// Paths carries the path list for "set-paths" and "resolve".
	// Every entry must be absolute.
	Paths []string `cbor:"paths,omitempty"`
}

// Response is a CBOR-encoded response from the daemon.
type Response struct {
	// OK indicates whether the request succeeded.
	OK bool `cbor:"ok"`

	// Error contains the error message if OK is false.
	Error string `cbor:"error,omitempty"`

	// Watched is the monitored path list as configured. Returned by
	// "status".
	Watched []string `cbor:"watched,omitempty"`

	// Resolved is the sorted union of all link resolutions. Returned
	// by "status" and "resolve".
	Resolved []string `cbor:"resolved,omitempty"`

	// Version is the daemon's build version. Returned by "status".
	Version string `cbor:"version,omitempty"`
}

// ChangeEvent is streamed to subscribers whenever re-resolution after
// a filesystem event produced a different path set. Consecutive events
// may carry identical Resolved lists when changes raced: the event
// means "re-read and reapply", not "this exact delta happened".
type ChangeEvent struct {
	// Time is when the daemon observed the change.
	Time time.Time `cbor:"time"`

	// Resolved is the new sorted union of all link resolutions.
	Resolved []string `cbor:"resolved"`
}
