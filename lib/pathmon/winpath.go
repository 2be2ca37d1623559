// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAbsolute is returned when a watched or resolved path carries no
// volume root. Every path this package operates on must be absolute.
var ErrNotAbsolute = errors.New("path is not absolute")

// strippedPath is a resolved path split into the directory actually
// opened for watching and the remainder matched against change-record
// names. The prefix is the volume root joined with the first path
// component; the tail is everything below it, in the path's native
// separator so delivered record names compare directly.
type strippedPath struct {
	prefix string
	tail   string
}

// stripPath splits an absolute path into its watch prefix and tail.
// A path with exactly one component after the volume root strips to
// (volume root, component) — there is no deeper directory to open.
func stripPath(path string) (strippedPath, error) {
	volume, rest, ok := splitVolume(path)
	if !ok {
		return strippedPath{}, fmt.Errorf("stripping %q: %w", path, ErrNotAbsolute)
	}
	parts := components(rest)
	switch len(parts) {
	case 0:
		return strippedPath{}, fmt.Errorf("stripping %q: no components after the volume root", path)
	case 1:
		return strippedPath{prefix: volume, tail: parts[0]}, nil
	}
	separator := string(separatorFor(path))
	return strippedPath{
		prefix: joinOne(volume, parts[0]),
		tail:   strings.Join(parts[1:], separator),
	}, nil
}

// stripNamespace removes a leading NT or extended-length namespace
// prefix (`\??\` or `\\?\`). Reparse targets and caller paths may carry
// either; everything downstream works on plain absolute paths.
func stripNamespace(path string) string {
	for _, prefix := range []string{`\\?\`, `\??\`} {
		if strings.HasPrefix(path, prefix) {
			return path[len(prefix):]
		}
	}
	return path
}

// splitVolume separates the volume root from the remainder of an
// absolute path. Recognized roots: a POSIX root ("/"), a drive root
// ("C:\" or "C:/"), a UNC share root ("\\server\share\"), and a bare
// rooted path ("\"). Returns ok=false for relative paths.
func splitVolume(path string) (volume, rest string, ok bool) {
	if path == "" {
		return "", path, false
	}
	if path[0] == '/' {
		return "/", strings.TrimLeft(path, "/"), true
	}
	if len(path) >= 3 && isDriveLetter(path[0]) && path[1] == ':' && isSeparator(path[2]) {
		return path[:3], path[3:], true
	}
	if len(path) >= 2 && path[0] == '\\' && path[1] == '\\' {
		return splitUNC(path)
	}
	if path[0] == '\\' {
		// Rooted on the current drive. Rare for watched paths but a
		// reparse target can look like this before canonicalization.
		return `\`, strings.TrimLeft(path, `\`), true
	}
	return "", path, false
}

// splitUNC separates a \\server\share root from the remainder. The
// share name is part of the volume: a watch can open \\server\share\
// but not \\server alone.
func splitUNC(path string) (volume, rest string, ok bool) {
	remainder := path[2:]
	serverEnd := strings.IndexAny(remainder, `\/`)
	if serverEnd <= 0 {
		return "", path, false
	}
	shareStart := serverEnd + 1
	if shareStart >= len(remainder) {
		return "", path, false
	}
	shareEnd := strings.IndexAny(remainder[shareStart:], `\/`)
	if shareEnd < 0 {
		// \\server\share with nothing below it: the whole path is the
		// volume root.
		return path, "", true
	}
	if shareEnd == 0 {
		return "", path, false
	}
	end := 2 + shareStart + shareEnd + 1
	return path[:end], path[end:], true
}

// components splits the non-volume part of a path on either separator,
// dropping empty segments.
func components(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '\\' || r == '/'
	})
}

func isSeparator(b byte) bool {
	return b == '\\' || b == '/'
}

func isDriveLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// separatorFor picks the separator to use when extending path: forward
// slash when the path already uses one, backslash otherwise.
func separatorFor(path string) byte {
	if strings.ContainsRune(path, '/') {
		return '/'
	}
	return '\\'
}

// joinOne appends a single component to a directory path.
func joinOne(directory, component string) string {
	if directory == "" {
		return component
	}
	if isSeparator(directory[len(directory)-1]) {
		return directory + component
	}
	return directory + string(separatorFor(directory)) + component
}

// joinComponents appends components to a base path one at a time.
func joinComponents(base string, parts []string) string {
	joined := base
	for _, part := range parts {
		joined = joinOne(joined, part)
	}
	return joined
}

// parentPath returns the directory containing path, stopping at the
// volume root. Assumes path has no trailing separator.
func parentPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if !isSeparator(path[i]) {
			continue
		}
		if volume, _, ok := splitVolume(path); ok && i < len(volume) {
			return volume
		}
		return path[:i]
	}
	return ""
}

// normalizeLexical resolves "." and ".." segments without touching the
// filesystem. ".." never pops past the volume root. Used where a
// platform canonicalization primitive is unavailable; the Windows
// resolver canonicalizes through GetFullPathName instead.
func normalizeLexical(path string) string {
	volume, rest, ok := splitVolume(path)
	if !ok {
		volume, rest = "", path
	}
	var kept []string
	for _, component := range components(rest) {
		switch component {
		case ".":
		case "..":
			if len(kept) > 0 {
				kept = kept[:len(kept)-1]
			}
		default:
			kept = append(kept, component)
		}
	}
	if len(kept) == 0 {
		return volume
	}
	return joinComponents(volume, kept)
}
