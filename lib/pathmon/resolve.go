// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// resolver computes the set of real paths a logical path corresponds
// to. The single injected hook answers "is this path a redirecting
// link, and if so where does it point (absolute, canonical)" — the
// Windows implementation reads reparse data, the portable one reads
// symlinks, and tests substitute a table.
type resolver struct {
	resolveLink func(path string) (target string, isLink bool, err error)
}

// resolveAllLinks walks path's components below the volume root. The
// first component whose accumulated sub-path is a redirecting link
// stops the walk: the remaining components are re-rooted onto the link
// target and that path is resolved recursively. Each directory level
// therefore yields at most one redirection.
//
// The original path is always the first entry of the result. Missing
// ancestors are not an error — a watched path legitimately may not
// exist yet — but a resolution failure other than "not found"
// (malformed reparse data, permission denied) propagates.
func (r resolver) resolveAllLinks(path string) ([]string, error) {
	volume, rest, ok := splitVolume(path)
	if !ok {
		return nil, fmt.Errorf("resolving links for %q: %w", path, ErrNotAbsolute)
	}

	resolved := []string{path}
	parts := components(rest)
	partial := volume
	for i, component := range parts {
		partial = joinOne(partial, component)
		target, isLink, err := r.resolveLink(partial)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("resolving link at %s: %w", partial, err)
		}
		if !isLink {
			continue
		}
		rerooted, err := r.resolveAllLinks(joinComponents(target, parts[i+1:]))
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rerooted...)
		break
	}
	return resolved, nil
}

// resolveAllLinksMultiple resolves each path independently and unions
// the results. Best-effort: one path failing to resolve is logged and
// skipped, the rest of the batch still resolves. The watched-path list
// routinely references locations that transiently do not exist or are
// inaccessible.
func (r resolver) resolveAllLinksMultiple(paths []string) map[string]struct{} {
	resolved := make(map[string]struct{})
	for _, path := range paths {
		list, err := r.resolveAllLinks(path)
		if err != nil {
			slog.Error("failed to resolve monitored path", "path", path, "error", err)
			continue
		}
		for _, entry := range list {
			resolved[entry] = struct{}{}
		}
	}
	return resolved
}

// ResolveAllLinks returns every real path the given absolute path
// corresponds to: the path itself first, then one entry per
// redirecting link discovered along its ancestry, resolved
// recursively.
func ResolveAllLinks(path string) ([]string, error) {
	return defaultResolver().resolveAllLinks(path)
}

// ResolveAllLinksMultiple resolves each path with ResolveAllLinks and
// returns the sorted union. Paths that fail to resolve are logged and
// skipped rather than failing the batch.
func ResolveAllLinksMultiple(paths []string) []string {
	set := defaultResolver().resolveAllLinksMultiple(paths)
	union := make([]string, 0, len(set))
	for path := range set {
		union = append(union, path)
	}
	sort.Strings(union)
	return union
}
