// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"fmt"
	"sync"
)

type commandKind int

const (
	commandSetPaths commandKind = iota
	commandShutdown
)

type command struct {
	kind  commandKind
	paths []string
}

// commandQueue is the multi-producer queue feeding the monitor
// goroutine. An enqueued command is only observed after a wake post,
// so Handle pairs every push with one; draining is non-blocking.
type commandQueue struct {
	mu      sync.Mutex
	pending []command
}

func (q *commandQueue) push(c command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, c)
}

func (q *commandQueue) drain() []command {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.pending
	q.pending = nil
	return drained
}

// Handle controls a running monitor. Safe for concurrent use by
// multiple goroutines: commands from one goroutine apply in its
// issuing order, with no ordering between goroutines.
type Handle struct {
	port  completionPort
	queue *commandQueue
}

// SetPaths replaces the monitored path list wholesale. It returns once
// the monitor has been woken, not once the change has taken effect —
// the effect is observed through the notification channel.
// Resolution or watch-setup failures for the new list surface
// asynchronously (logged; fatal ones stop the monitor and close the
// notification channel).
func (h *Handle) SetPaths(paths []string) error {
	h.queue.push(command{kind: commandSetPaths, paths: append([]string(nil), paths...)})
	return h.wake()
}

// Shutdown asks the monitor to stop. The monitor honors a pending
// Shutdown before applying any other queued command, releases every
// watch and the completion port, and closes the notification channel.
func (h *Handle) Shutdown() error {
	h.queue.push(command{kind: commandShutdown})
	return h.wake()
}

// wake posts a zero-byte completion with the reserved key. Without it
// a command would sit unobserved until the next directory event, which
// may never arrive.
func (h *Handle) wake() error {
	if err := h.port.post(wakeKey); err != nil {
		return fmt.Errorf("waking path monitor: %w", err)
	}
	return nil
}
