// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/skydda/pathmon/lib/pathmon"
)

// monitorBackend bridges the control socket to the running monitor.
// The control server handles connections concurrently, so the watched
// list is guarded; the monitor handle is safe for concurrent use.
type monitorBackend struct {
	handle *pathmon.Handle

	mu      sync.Mutex
	watched []string
}

func newBackend(handle *pathmon.Handle, watched []string) *monitorBackend {
	return &monitorBackend{handle: handle, watched: slices.Clone(watched)}
}

func (b *monitorBackend) watchedPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.watched)
}

// Status reports the configured list and a fresh resolution of it.
// Resolving on demand rather than caching keeps status truthful even
// between monitor notifications.
func (b *monitorBackend) Status() ([]string, []string) {
	watched := b.watchedPaths()
	return watched, pathmon.ResolveAllLinksMultiple(watched)
}

// SetPaths validates the list and hands it to the monitor. Relative
// paths are rejected up front: the monitor would silently skip them,
// and a caller deserves the error instead.
func (b *monitorBackend) SetPaths(paths []string) error {
	for _, path := range paths {
		if _, err := pathmon.ResolveAllLinks(path); errors.Is(err, pathmon.ErrNotAbsolute) {
			return fmt.Errorf("path %q is not absolute", path)
		}
	}
	if err := b.handle.SetPaths(paths); err != nil {
		return err
	}
	b.mu.Lock()
	b.watched = slices.Clone(paths)
	b.mu.Unlock()
	return nil
}

// Resolve resolves paths without touching the monitored list.
func (b *monitorBackend) Resolve(paths []string) []string {
	return pathmon.ResolveAllLinksMultiple(paths)
}
