// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathmon watches a set of filesystem paths for changes to the
// links in their ancestry. A logical path like C:\A\B\file.txt may pass
// through a junction or symbolic link at any ancestor segment, and the
// link target can change at runtime (an application reinstalled through
// a different junction, a profile directory re-linked). Consumers that
// enforce rules against real filesystem locations — the split-tunnel
// engine matches process image paths — need to know every real path a
// logical path currently resolves to, and need to be told when that set
// changes.
//
// Spawn resolves every redirecting ancestor of the initial paths,
// opens an asynchronous change watch on each top-level directory the
// resolutions pass through, and starts a monitor goroutine. The
// goroutine re-resolves only when a directory event names something on
// a watched chain, and signals the returned channel once per change to
// the resolved set. The channel closes when the monitor stops.
//
// ResolveAllLinks and ResolveAllLinksMultiple expose the resolution
// step on its own for callers that need the current real paths without
// a running monitor.
//
// On Windows the watch is ReadDirectoryChangesW completions delivered
// through an I/O completion port, and link resolution reads reparse
// point data (symbolic links and mount points; other reparse tags are
// not links this package follows). On other platforms an fsnotify
// backend drives the same monitor loop, with symlink resolution via
// Readlink.
package pathmon
