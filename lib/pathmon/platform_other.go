// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package pathmon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type fsPlatform struct{}

func defaultPlatform() platform { return fsPlatform{} }

func defaultResolver() resolver {
	return resolver{resolveLink: resolveSymlink}
}

func (fsPlatform) newPort() (completionPort, error) {
	return newFSNotifyPort()
}

func (fsPlatform) openWatch(port completionPort, key uint64, prefix string) (dirWatch, error) {
	p, ok := port.(*fsnotifyPort)
	if !ok {
		return nil, errors.New("completion port is not an fsnotify port")
	}
	return p.openWatch(key, prefix)
}

func (fsPlatform) newResolver() resolver {
	return defaultResolver()
}

// resolveSymlink is the portable link-resolution hook: a path is a
// redirecting link when Lstat reports a symlink. Relative targets
// resolve against the link's parent directory, lexically.
func resolveSymlink(path string) (target string, isLink bool, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", false, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", false, nil
	}
	target, err = os.Readlink(path)
	if err != nil {
		return "", false, fmt.Errorf("reading link target of %s: %w", path, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Clean(filepath.Join(parentPath(path), target))
	}
	return target, true, nil
}

// fsnotifyPort adapts one shared fsnotify watcher to the completion
// port shape: wake posts and translated filesystem events drain
// through wait as keyed completions. An event matching several watches
// completes them one wait call at a time through the ready list.
type fsnotifyPort struct {
	watcher *fsnotify.Watcher
	wakes   chan uint64

	mu      sync.Mutex
	watches map[uint64]*fsWatch
	ready   []uint64
}

func newFSNotifyPort() (*fsnotifyPort, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &fsnotifyPort{
		watcher: watcher,
		wakes:   make(chan uint64, 256),
		watches: make(map[uint64]*fsWatch),
	}, nil
}

func (p *fsnotifyPort) wait() (completion, error) {
	for {
		if key, ok := p.popReady(); ok {
			return completion{key: key, byteCount: 1}, nil
		}
		select {
		case key := <-p.wakes:
			return completion{key: key}, nil
		case event, ok := <-p.watcher.Events:
			if !ok {
				return completion{}, errors.New("fsnotify event stream closed")
			}
			if key, ok := p.dispatch(event); ok {
				return completion{key: key, byteCount: 1}, nil
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return completion{}, errors.New("fsnotify error stream closed")
			}
			return completion{}, err
		}
	}
}

func (p *fsnotifyPort) popReady() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ready) == 0 {
		return 0, false
	}
	key := p.ready[0]
	p.ready = p.ready[1:]
	return key, true
}

// dispatch queues the event's record on every watch whose prefix
// contains it. The first matching key is returned for immediate
// delivery; the rest go on the ready list.
func (p *fsnotifyPort) dispatch(event fsnotify.Event) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first uint64
	found := false
	for key, watch := range p.watches {
		name, ok := watch.relativeName(event.Name)
		if !ok {
			continue
		}
		watch.enqueue(changeRecord{action: uint32(event.Op), name: name})
		if !found {
			first, found = key, true
		} else {
			p.ready = append(p.ready, key)
		}
	}
	return first, found
}

func (p *fsnotifyPort) post(key uint64) error {
	select {
	case p.wakes <- key:
		return nil
	default:
		return errors.New("wake queue is full")
	}
}

func (p *fsnotifyPort) close() error {
	return p.watcher.Close()
}

// fsWatch is one watched prefix on the shared fsnotify watcher.
// fsnotify watches are not recursive, so setTails extends the watch to
// every existing directory along each tail; events from those
// directories still carry names under the prefix and dispatch here.
type fsWatch struct {
	port      *fsnotifyPort
	key       uint64
	directory string

	mu      sync.Mutex
	pending []changeRecord
	extra   map[string]struct{}
}

func (p *fsnotifyPort) openWatch(key uint64, prefix string) (dirWatch, error) {
	if err := p.watcher.Add(prefix); err != nil {
		return nil, fmt.Errorf("watching %s: %w", prefix, err)
	}
	watch := &fsWatch{
		port:      p,
		key:       key,
		directory: prefix,
		extra:     make(map[string]struct{}),
	}
	p.mu.Lock()
	p.watches[key] = watch
	p.mu.Unlock()
	return watch, nil
}

func (w *fsWatch) prefix() string { return w.directory }

// setTails re-derives the extra directory watches covering the chain
// below the prefix. Best-effort: directories that do not exist yet are
// skipped, matching the reconciliation policy for prefixes.
func (w *fsWatch) setTails(tails []string) {
	desired := make(map[string]struct{})
	for _, tail := range tails {
		directory := w.directory
		for _, component := range components(tail) {
			directory = joinOne(directory, component)
			info, err := os.Stat(directory)
			if err != nil || !info.IsDir() {
				break
			}
			desired[directory] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for directory := range w.extra {
		if _, keep := desired[directory]; keep {
			continue
		}
		// Removal of a watch that inotify already dropped is harmless.
		w.port.watcher.Remove(directory)
		delete(w.extra, directory)
	}
	for directory := range desired {
		if _, present := w.extra[directory]; present {
			continue
		}
		if err := w.port.watcher.Add(directory); err != nil {
			continue
		}
		w.extra[directory] = struct{}{}
	}
}

func (w *fsWatch) rearm() error { return nil }

func (w *fsWatch) grow() {}

func (w *fsWatch) records(uint32) ([]changeRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	records := w.pending
	w.pending = nil
	return records, nil
}

func (w *fsWatch) close() error {
	w.port.mu.Lock()
	delete(w.port.watches, w.key)
	w.port.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	for directory := range w.extra {
		w.port.watcher.Remove(directory)
	}
	w.extra = make(map[string]struct{})
	return w.port.watcher.Remove(w.directory)
}

func (w *fsWatch) enqueue(record changeRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, record)
}

// relativeName translates an absolute event name to a name relative
// to the watch prefix, the shape stripped tails compare against.
func (w *fsWatch) relativeName(name string) (string, bool) {
	if !strings.HasPrefix(name, w.directory) {
		return "", false
	}
	rest := name[len(w.directory):]
	if rest == "" {
		// The event is about the watched directory itself.
		return "", false
	}
	if isSeparator(w.directory[len(w.directory)-1]) {
		return rest, true
	}
	if !isSeparator(rest[0]) {
		// Sibling with a longer name, e.g. /a/bc under prefix /a/b.
		return "", false
	}
	return rest[1:], true
}
