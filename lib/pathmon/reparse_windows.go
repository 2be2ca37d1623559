// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package pathmon

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
)

// resolveLinkWindows reports whether path is a redirecting reparse
// point (symbolic link or mount point) and returns its target as an
// absolute path without a namespace prefix. isLink is false for plain
// files and for reparse tags this package does not follow.
//
// A failing reparse query or a malformed buffer is an error: it means
// the filesystem answered the attribute check but the redirection data
// cannot be trusted.
func resolveLinkWindows(path string) (target string, isLink bool, err error) {
	stripped := stripNamespace(path)
	extended := stripped
	if !strings.HasPrefix(extended, `\\?\`) {
		extended = `\\?\` + extended
	}
	namePointer, err := windows.UTF16PtrFromString(extended)
	if err != nil {
		return "", false, fmt.Errorf("encoding %s: %w", path, err)
	}

	attributes, err := windows.GetFileAttributes(namePointer)
	if err != nil {
		return "", false, fmt.Errorf("querying attributes of %s: %w", path, err)
	}
	if attributes&windows.FILE_ATTRIBUTE_REPARSE_POINT == 0 {
		return "", false, nil
	}

	// Open the reparse point itself, not what it points at.
	handle, err := windows.CreateFile(
		namePointer,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return "", false, fmt.Errorf("opening reparse point %s: %w", path, err)
	}
	defer windows.CloseHandle(handle)

	buffer := make([]byte, windows.MAXIMUM_REPARSE_DATA_BUFFER_SIZE)
	var returned uint32
	err = windows.DeviceIoControl(
		handle,
		windows.FSCTL_GET_REPARSE_POINT,
		nil, 0,
		&buffer[0], uint32(len(buffer)),
		&returned,
		nil,
	)
	if err != nil {
		return "", false, fmt.Errorf("reading reparse data of %s: %w", path, err)
	}

	decoded, followable, err := decodeReparseBuffer(buffer[:returned])
	if err != nil {
		return "", false, fmt.Errorf("decoding reparse data of %s: %w", path, err)
	}
	if !followable {
		return "", false, nil
	}

	if decoded.kind == linkKindSymlink && decoded.relative {
		full, err := canonicalizeWindows(joinOne(parentPath(stripped), decoded.target))
		if err != nil {
			return "", false, err
		}
		return full, true, nil
	}
	return stripNamespace(decoded.target), true, nil
}

// canonicalizeWindows resolves relative segments through
// GetFullPathName, growing the output buffer until the result fits.
func canonicalizeWindows(path string) (string, error) {
	pathPointer, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", path, err)
	}
	buffer := make([]uint16, 512)
	for {
		length, err := windows.GetFullPathName(pathPointer, uint32(len(buffer)), &buffer[0], nil)
		if err != nil {
			return "", fmt.Errorf("canonicalizing %s: %w", path, err)
		}
		if int(length) <= len(buffer) {
			return windows.UTF16ToString(buffer[:length]), nil
		}
		// length is the required size including the terminator.
		buffer = make([]uint16, length)
	}
}
