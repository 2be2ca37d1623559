// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

// wakeKey is the reserved completion key for zero-payload wake posts.
// Handle operations post it so a monitor blocked in wait observes
// queued commands promptly. Watch keys start above it and are never
// reused.
const wakeKey uint64 = 0

// completion is one delivered event from the completion port.
type completion struct {
	// key identifies the directory watch the event belongs to, or
	// wakeKey for a control wake.
	key uint64

	// byteCount is the size of the delivered change batch. Zero on a
	// real watch key means the receive buffer was too small to hold
	// the batch.
	byteCount uint32

	// failed marks a completion delivered for an operation that did
	// not succeed, typically one cancelled when its directory handle
	// closed during reconciliation. Ignored, never fatal.
	failed bool
}

// completionPort is the multiplexer that queues completed asynchronous
// operations for one waiting goroutine. wait blocks indefinitely; post
// enqueues a zero-byte completion for the given key and is safe to
// call from any goroutine. A wait error is fatal to the monitor.
type completionPort interface {
	wait() (completion, error)
	post(key uint64) error
	close() error
}

// dirWatch is one watched directory with a single outstanding
// change-notification request.
//
// The monitor's delivery sequence is fixed: on a zero-byte completion
// grow the buffer, then rearm, then (for non-zero deliveries) parse
// with records. Rearming before parsing closes the gap where changes
// during parsing would be missed.
type dirWatch interface {
	// prefix is the directory this watch covers, equal to the
	// strippedPath prefix it was opened for.
	prefix() string

	// setTails informs the watch of the current tails under its
	// prefix. The Windows watch ignores this (its request covers the
	// whole subtree); the portable backend uses it to extend
	// non-recursive watches along each chain.
	setTails(tails []string)

	// rearm issues the next asynchronous notification request.
	rearm() error

	// grow doubles the receive buffer after a zero-byte delivery.
	grow()

	// records decodes the delivered batch of the given size.
	records(byteCount uint32) ([]changeRecord, error)

	close() error
}

// platform supplies the OS-specific pieces of the monitor: the
// completion multiplexer, the directory watch bound to it under a
// completion key, and the link-resolution hook.
type platform interface {
	newPort() (completionPort, error)
	openWatch(port completionPort, key uint64, prefix string) (dirWatch, error)
	newResolver() resolver
}
