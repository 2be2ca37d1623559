// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package pathmon

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// initialWatchBufferSize is the starting ReadDirectoryChangesW receive
// buffer. A zero-byte completion doubles it.
const initialWatchBufferSize = 2048

type windowsPlatform struct{}

func defaultPlatform() platform { return windowsPlatform{} }

func defaultResolver() resolver {
	return resolver{resolveLink: resolveLinkWindows}
}

func (windowsPlatform) newPort() (completionPort, error) {
	return newIOCPPort()
}

func (windowsPlatform) openWatch(port completionPort, key uint64, prefix string) (dirWatch, error) {
	iocp, ok := port.(*iocpPort)
	if !ok {
		return nil, errors.New("completion port is not an I/O completion port")
	}
	return openWinDirWatch(iocp, key, prefix)
}

func (windowsPlatform) newResolver() resolver {
	return defaultResolver()
}

// iocpPort wraps an I/O completion port handle. The port collects
// completions from every directory handle associated with it, plus the
// zero-byte wakes Handle posts.
type iocpPort struct {
	handle windows.Handle
}

func newIOCPPort() (*iocpPort, error) {
	handle, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateIoCompletionPort: %w", err)
	}
	return &iocpPort{handle: handle}, nil
}

func (p *iocpPort) wait() (completion, error) {
	var byteCount uint32
	var key uintptr
	var overlapped *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(p.handle, &byteCount, &key, &overlapped, windows.INFINITE)
	if err != nil {
		if overlapped == nil {
			// The wait itself failed; nothing was dequeued.
			return completion{}, fmt.Errorf("GetQueuedCompletionStatus: %w", err)
		}
		// A dequeued completion for a failed operation — most often a
		// request cancelled when reconciliation closed its directory
		// handle.
		return completion{key: uint64(key), byteCount: byteCount, failed: true}, nil
	}
	return completion{key: uint64(key), byteCount: byteCount}, nil
}

func (p *iocpPort) post(key uint64) error {
	if err := windows.PostQueuedCompletionStatus(p.handle, 0, uintptr(key), nil); err != nil {
		return fmt.Errorf("PostQueuedCompletionStatus: %w", err)
	}
	return nil
}

func (p *iocpPort) close() error {
	return windows.CloseHandle(p.handle)
}

// winDirWatch owns one overlapped directory handle associated with the
// completion port and its in-flight ReadDirectoryChangesW request. The
// request covers the whole subtree, so record names are paths relative
// to the watched directory and compare directly against stripped
// tails.
type winDirWatch struct {
	directory  string
	handle     windows.Handle
	buffer     []byte
	delivered  []byte
	returned   uint32
	overlapped windows.Overlapped
}

func openWinDirWatch(port *iocpPort, key uint64, directory string) (*winDirWatch, error) {
	namePointer, err := windows.UTF16PtrFromString(directory)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", directory, err)
	}
	handle, err := windows.CreateFile(
		namePointer,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("opening directory %s: %w", directory, err)
	}
	if _, err := windows.CreateIoCompletionPort(handle, port.handle, uintptr(key), 0); err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("associating %s with completion port: %w", directory, err)
	}
	return &winDirWatch{
		directory: directory,
		handle:    handle,
		buffer:    make([]byte, initialWatchBufferSize),
	}, nil
}

func (w *winDirWatch) prefix() string { return w.directory }

// setTails is a no-op: the subtree request already covers every chain
// under the prefix.
func (w *winDirWatch) setTails([]string) {}

func (w *winDirWatch) rearm() error {
	// The kernel writes the next batch into buffer as soon as the
	// request below is issued; records parses the snapshot, not the
	// receive buffer.
	w.delivered = append(w.delivered[:0], w.buffer...)
	return windows.ReadDirectoryChanges(
		w.handle,
		&w.buffer[0],
		uint32(len(w.buffer)),
		true, // whole subtree: tails run arbitrarily deep
		windows.FILE_NOTIFY_CHANGE_FILE_NAME|windows.FILE_NOTIFY_CHANGE_DIR_NAME,
		&w.returned,
		&w.overlapped,
		0,
	)
}

func (w *winDirWatch) grow() {
	w.buffer = make([]byte, 2*len(w.buffer))
}

func (w *winDirWatch) records(byteCount uint32) ([]changeRecord, error) {
	if int(byteCount) > len(w.delivered) {
		return nil, fmt.Errorf("delivery of %d bytes exceeds %d-byte buffer", byteCount, len(w.delivered))
	}
	return decodeNotifyBatch(w.delivered[:byteCount])
}

// close releases the directory handle. A pending request surfaces on
// the port as a failed completion for this watch's retired key; the
// monitor ignores it.
func (w *winDirWatch) close() error {
	return windows.CloseHandle(w.handle)
}
