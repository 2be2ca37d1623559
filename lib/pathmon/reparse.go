// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Reparse tags this package follows. Any other tag (dedup, OneDrive
// placeholders, WCI, ...) is not a redirecting link and resolution
// treats the object as a plain file or directory.
//
// Layouts are specified in MS-FSCC §2.1.2.
const (
	reparseTagMountPoint = 0xA0000003
	reparseTagSymlink    = 0xA000000C

	// symlinkFlagRelative marks a symbolic link whose substitute name
	// is relative to the link's parent directory.
	symlinkFlagRelative = 0x00000001
)

// REPARSE_DATA_BUFFER field offsets, in bytes from the start of the
// buffer. The generic header (tag, data length, reserved) is followed
// by the substitute/print name offset-length pairs; the symlink layout
// inserts a flags word before the path buffer, the mount-point layout
// does not.
const (
	reparseHeaderSize         = 8
	reparseNameFieldsSize     = 8
	reparseMountPathBufferOff = reparseHeaderSize + reparseNameFieldsSize
	reparseSymlinkFlagsOff    = reparseHeaderSize + reparseNameFieldsSize
	reparseSymlinkPathBufOff  = reparseSymlinkFlagsOff + 4
)

// linkKind distinguishes the two redirecting reparse kinds.
type linkKind int

const (
	linkKindSymlink linkKind = iota
	linkKindMountPoint
)

// reparseTarget is the decoded redirection carried by a reparse point.
type reparseTarget struct {
	kind linkKind

	// target is the substitute name exactly as stored, which for
	// absolute targets usually carries a \??\ namespace prefix.
	target string

	// relative is set for symbolic links whose target is relative to
	// the link's parent directory. Mount points are always absolute.
	relative bool
}

// decodeReparseBuffer interprets a raw FSCTL_GET_REPARSE_POINT output
// buffer. Returns ok=false for tags this package does not follow. A
// buffer too short for the layout its own header claims is an error:
// it means the query itself returned garbage, not that the object is a
// plain file.
func decodeReparseBuffer(buffer []byte) (reparseTarget, bool, error) {
	if len(buffer) < reparseHeaderSize {
		return reparseTarget{}, false, fmt.Errorf("reparse buffer truncated: %d bytes", len(buffer))
	}
	tag := binary.LittleEndian.Uint32(buffer[0:4])
	dataLength := int(binary.LittleEndian.Uint16(buffer[4:6]))
	if reparseHeaderSize+dataLength > len(buffer) {
		return reparseTarget{}, false, fmt.Errorf(
			"reparse buffer truncated: header claims %d data bytes, %d present",
			dataLength, len(buffer)-reparseHeaderSize)
	}

	switch tag {
	case reparseTagSymlink:
		if reparseSymlinkPathBufOff > reparseHeaderSize+dataLength {
			return reparseTarget{}, false, fmt.Errorf("symlink reparse data too short: %d bytes", dataLength)
		}
		flags := binary.LittleEndian.Uint32(buffer[reparseSymlinkFlagsOff : reparseSymlinkFlagsOff+4])
		target, err := substituteName(buffer, reparseSymlinkPathBufOff, dataLength)
		if err != nil {
			return reparseTarget{}, false, err
		}
		return reparseTarget{
			kind:     linkKindSymlink,
			target:   target,
			relative: flags&symlinkFlagRelative != 0,
		}, true, nil

	case reparseTagMountPoint:
		if reparseMountPathBufferOff > reparseHeaderSize+dataLength {
			return reparseTarget{}, false, fmt.Errorf("mount point reparse data too short: %d bytes", dataLength)
		}
		target, err := substituteName(buffer, reparseMountPathBufferOff, dataLength)
		if err != nil {
			return reparseTarget{}, false, err
		}
		return reparseTarget{kind: linkKindMountPoint, target: target}, true, nil

	default:
		return reparseTarget{}, false, nil
	}
}

// substituteName extracts the substitute name from a reparse buffer's
// path buffer. The offset/length pair at the fixed header position is
// in bytes relative to the start of the path buffer.
func substituteName(buffer []byte, pathBufferOff, dataLength int) (string, error) {
	nameOffset := int(binary.LittleEndian.Uint16(buffer[8:10]))
	nameLength := int(binary.LittleEndian.Uint16(buffer[10:12]))
	start := pathBufferOff + nameOffset
	end := start + nameLength
	if nameLength%2 != 0 || end > reparseHeaderSize+dataLength || end > len(buffer) {
		return "", fmt.Errorf(
			"reparse substitute name out of bounds: offset %d length %d in %d-byte buffer",
			nameOffset, nameLength, len(buffer))
	}
	return decodeUTF16LE(buffer[start:end]), nil
}

// decodeUTF16LE converts a little-endian UTF-16 byte slice of even
// length to a string.
func decodeUTF16LE(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[2*i : 2*i+2])
	}
	return string(utf16.Decode(units))
}
