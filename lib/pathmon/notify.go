// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"encoding/binary"
	"fmt"
)

// changeRecord is one decoded directory change notification: a name
// relative to the watched directory and the action that happened to it.
type changeRecord struct {
	action uint32
	name   string
}

// FILE_NOTIFY_INFORMATION layout (from winnt.h):
//
//	DWORD NextEntryOffset; // offset 0, 0 terminates the list
//	DWORD Action;          // offset 4
//	DWORD FileNameLength;  // offset 8, in bytes
//	WCHAR FileName[];      // offset 12, not null-terminated
const fileNotifyHeaderSize = 12

// decodeNotifyBatch parses a delivered batch of variable-length change
// records. Each record's NextEntryOffset chains to the next; zero ends
// the list. A record that overruns the delivered bytes, or a chain
// offset that fails to advance, is an error — the batch cannot be
// trusted past that point.
func decodeNotifyBatch(buffer []byte) ([]changeRecord, error) {
	var records []changeRecord
	offset := 0
	for {
		if offset+fileNotifyHeaderSize > len(buffer) {
			return nil, fmt.Errorf(
				"change record header at offset %d overruns %d-byte batch", offset, len(buffer))
		}
		next := int(binary.LittleEndian.Uint32(buffer[offset : offset+4]))
		action := binary.LittleEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.LittleEndian.Uint32(buffer[offset+8 : offset+12]))

		nameStart := offset + fileNotifyHeaderSize
		nameEnd := nameStart + nameLength
		if nameLength%2 != 0 || nameEnd > len(buffer) {
			return nil, fmt.Errorf(
				"change record name at offset %d (%d bytes) overruns %d-byte batch",
				offset, nameLength, len(buffer))
		}

		records = append(records, changeRecord{
			action: action,
			name:   decodeUTF16LE(buffer[nameStart:nameEnd]),
		})

		if next == 0 {
			return records, nil
		}
		if next < fileNotifyHeaderSize {
			return nil, fmt.Errorf("change record chain offset %d does not advance", next)
		}
		offset += next
	}
}
