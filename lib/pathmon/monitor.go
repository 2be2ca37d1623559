// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"strings"
)

// monitor owns all mutable state: the watched path list, its current
// resolution, the stripped forms, and the live directory watches. Only
// the monitor goroutine touches these, so no locking happens here —
// the commandQueue and the completion port are the only structures
// crossing the goroutine boundary.
type monitor struct {
	platform platform
	resolver resolver
	port     completionPort
	queue    *commandQueue
	notify   chan struct{}

	// watched is the caller-supplied path list, replaced wholesale by
	// SetPaths.
	watched []string

	// resolved is the union of all link resolutions of watched.
	// Re-resolution after a relevant directory event diffs against it:
	// an unchanged set produces no reconciliation and no notification.
	resolved map[string]struct{}

	// stripped is resolved split into watch prefixes and tails.
	stripped []strippedPath

	// watches maps completion keys to live directory watches. Keys are
	// allocated monotonically and never reused, so a completion for a
	// watch removed by reconciliation misses the map and is ignored
	// instead of hitting an unrelated watch.
	watches map[uint64]dirWatch
	nextKey uint64
}

// Spawn resolves the initial paths, opens a watch on every directory
// the resolutions pass through, and starts the monitor goroutine. The
// returned channel signals each change to the resolved path set;
// signals coalesce, and the channel closes when the monitor stops —
// whether by Shutdown or by an internal fatal error. A closed channel
// is definitive: nothing is watching anymore.
//
// Spawn fails only when the completion port cannot be created or the
// initial watch setup hits an error other than a missing directory.
func Spawn(paths []string) (*Handle, <-chan struct{}, error) {
	return spawn(defaultPlatform(), paths)
}

func spawn(p platform, paths []string) (*Handle, <-chan struct{}, error) {
	port, err := p.newPort()
	if err != nil {
		return nil, nil, fmt.Errorf("creating completion port: %w", err)
	}

	m := &monitor{
		platform: p,
		resolver: p.newResolver(),
		port:     port,
		queue:    &commandQueue{},
		notify:   make(chan struct{}, 1),
		watched:  append([]string(nil), paths...),
		watches:  make(map[uint64]dirWatch),
		nextKey:  wakeKey + 1,
	}
	m.recompute()
	if err := m.reconcile(); err != nil {
		m.closeWatches()
		port.close()
		return nil, nil, fmt.Errorf("arming initial directory watches: %w", err)
	}

	handle := &Handle{port: port, queue: m.queue}
	go m.run()
	return handle, m.notify, nil
}

// run is the monitor goroutine: drain commands, block on the port,
// rearm and parse the delivered batch, re-resolve when a record names
// something on a watched chain.
func (m *monitor) run() {
	defer m.teardown()

	for {
		commands := m.queue.drain()
		for _, c := range commands {
			// Shutdown wins over anything queued alongside it: the
			// monitor must not open new watches on its way out.
			if c.kind == commandShutdown {
				return
			}
		}
		for _, c := range commands {
			m.watched = c.paths
			m.recompute()
			if err := m.reconcile(); err != nil {
				slog.Error("failed to open new directory watches", "error", err)
				return
			}
		}

		delivered, err := m.port.wait()
		if err != nil {
			slog.Error("completion port wait failed", "error", err)
			return
		}
		if delivered.key == wakeKey {
			continue
		}
		watch, ok := m.watches[delivered.key]
		if !ok {
			// The watch was removed after this completion was queued —
			// a batch already in flight, or the cancellation produced
			// when reconciliation closed the directory handle.
			slog.Debug("ignoring completion for removed watch", "key", delivered.key, "failed", delivered.failed)
			continue
		}
		if delivered.failed {
			// The failed dequeue consumed the watch's outstanding
			// request. A live watch without one goes silent, so rearm;
			// if that fails too the watch set can no longer be trusted.
			slog.Warn("rearming directory watch after failed read", "directory", watch.prefix(), "key", delivered.key)
			if err := watch.rearm(); err != nil {
				slog.Error("failed to rearm directory watch", "directory", watch.prefix(), "error", err)
				return
			}
			continue
		}

		if delivered.byteCount == 0 {
			// The receive buffer could not hold the batch. The events
			// themselves are lost; grow so the next batch fits.
			watch.grow()
			slog.Debug("grew change buffer after undersized delivery", "directory", watch.prefix())
		}
		if err := watch.rearm(); err != nil {
			slog.Error("failed to rearm directory watch", "directory", watch.prefix(), "error", err)
			return
		}
		if delivered.byteCount == 0 {
			continue
		}

		records, err := watch.records(delivered.byteCount)
		if err != nil {
			slog.Debug("discarding undecodable change batch", "directory", watch.prefix(), "error", err)
			continue
		}
		if !m.relevant(watch.prefix(), records) {
			continue
		}

		newResolved := m.resolver.resolveAllLinksMultiple(m.watched)
		if maps.Equal(newResolved, m.resolved) {
			continue
		}
		m.resolved = newResolved
		m.stripped = stripAll(newResolved)
		if err := m.reconcile(); err != nil {
			slog.Error("failed to open new directory watches", "error", err)
			return
		}
		select {
		case m.notify <- struct{}{}:
		default:
			// A pending signal already tells the consumer to act.
		}
	}
}

// recompute re-derives the resolved set and its stripped forms from
// the current watched list.
func (m *monitor) recompute() {
	m.resolved = m.resolver.resolveAllLinksMultiple(m.watched)
	m.stripped = stripAll(m.resolved)
}

// stripAll strips each resolved path, dropping entries that cannot be
// split (a bare volume root has no chain below it to watch).
func stripAll(resolved map[string]struct{}) []strippedPath {
	stripped := make([]strippedPath, 0, len(resolved))
	for path := range resolved {
		sp, err := stripPath(path)
		if err != nil {
			slog.Debug("skipping unwatchable resolved path", "path", path, "error", err)
			continue
		}
		stripped = append(stripped, sp)
	}
	return stripped
}

// relevant reports whether any record in the batch names a component
// on a watched chain: the record's name must be a prefix of the tail
// of a stripped path whose prefix is the delivering directory.
func (m *monitor) relevant(prefix string, records []changeRecord) bool {
	for _, record := range records {
		for _, sp := range m.stripped {
			if sp.prefix != prefix {
				continue
			}
			if strings.HasPrefix(sp.tail, record.name) {
				return true
			}
		}
	}
	return false
}

// reconcile makes the live watch set exactly cover the current
// stripped prefixes: watches whose prefix is no longer referenced are
// closed, missing prefixes are opened and armed. A missing directory
// is demoted to a warning and skipped — the resolved path may not
// exist yet. Any other failure is returned and fatal: a silently
// incomplete watch set cannot be trusted.
func (m *monitor) reconcile() error {
	tailsByPrefix := make(map[string][]string)
	for _, sp := range m.stripped {
		tailsByPrefix[sp.prefix] = append(tailsByPrefix[sp.prefix], sp.tail)
	}

	for key, watch := range m.watches {
		if _, referenced := tailsByPrefix[watch.prefix()]; referenced {
			continue
		}
		if err := watch.close(); err != nil {
			slog.Debug("closing directory watch", "directory", watch.prefix(), "error", err)
		}
		delete(m.watches, key)
	}

	for prefix, tails := range tailsByPrefix {
		if existing := m.watchFor(prefix); existing != nil {
			existing.setTails(tails)
			continue
		}
		key := m.nextKey
		m.nextKey++
		watch, err := m.platform.openWatch(m.port, key, prefix)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("not watching directory that does not exist", "directory", prefix)
				continue
			}
			return fmt.Errorf("opening watch on %s: %w", prefix, err)
		}
		watch.setTails(tails)
		if err := watch.rearm(); err != nil {
			watch.close()
			return fmt.Errorf("arming watch on %s: %w", prefix, err)
		}
		m.watches[key] = watch
	}
	return nil
}

func (m *monitor) watchFor(prefix string) dirWatch {
	for _, watch := range m.watches {
		if watch.prefix() == prefix {
			return watch
		}
	}
	return nil
}

func (m *monitor) closeWatches() {
	for key, watch := range m.watches {
		if err := watch.close(); err != nil {
			slog.Debug("closing directory watch", "directory", watch.prefix(), "error", err)
		}
		delete(m.watches, key)
	}
}

// teardown releases everything on the way out of run, on every exit
// path. Closing the notification channel is the terminal signal to the
// consumer.
func (m *monitor) teardown() {
	m.closeWatches()
	if err := m.port.close(); err != nil {
		slog.Debug("closing completion port", "error", err)
	}
	close(m.notify)
	slog.Debug("path monitor stopped")
}
