// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// encodeUTF16LE is the test-side inverse of decodeUTF16LE.
func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	data := make([]byte, 2*len(units))
	for i, unit := range units {
		binary.LittleEndian.PutUint16(data[2*i:], unit)
	}
	return data
}

// buildReparseBuffer assembles a REPARSE_DATA_BUFFER with the
// substitute name first in the path buffer and the print name after
// it, the layout mkdir /j and mklink produce.
func buildReparseBuffer(tag uint32, flags uint32, withFlags bool, substitute, print string) []byte {
	substituteBytes := encodeUTF16LE(substitute)
	printBytes := encodeUTF16LE(print)

	var buffer []byte
	appendUint16 := func(v uint16) {
		buffer = binary.LittleEndian.AppendUint16(buffer, v)
	}
	buffer = binary.LittleEndian.AppendUint32(buffer, tag)
	dataLength := 8 + len(substituteBytes) + len(printBytes)
	if withFlags {
		dataLength += 4
	}
	appendUint16(uint16(dataLength))
	appendUint16(0) // reserved
	appendUint16(0) // substitute name offset
	appendUint16(uint16(len(substituteBytes)))
	appendUint16(uint16(len(substituteBytes))) // print name offset
	appendUint16(uint16(len(printBytes)))
	if withFlags {
		buffer = binary.LittleEndian.AppendUint32(buffer, flags)
	}
	buffer = append(buffer, substituteBytes...)
	buffer = append(buffer, printBytes...)
	return buffer
}

func TestDecodeReparseBufferSymlinkAbsolute(t *testing.T) {
	buffer := buildReparseBuffer(reparseTagSymlink, 0, true, `\??\D:\Target`, `D:\Target`)

	decoded, ok, err := decodeReparseBuffer(buffer)
	if err != nil {
		t.Fatalf("decodeReparseBuffer: %v", err)
	}
	if !ok {
		t.Fatal("decodeReparseBuffer: ok = false, want true")
	}
	if decoded.kind != linkKindSymlink {
		t.Errorf("kind = %v, want symlink", decoded.kind)
	}
	if decoded.target != `\??\D:\Target` {
		t.Errorf("target = %q, want %q", decoded.target, `\??\D:\Target`)
	}
	if decoded.relative {
		t.Error("relative = true, want false")
	}
}

func TestDecodeReparseBufferSymlinkRelative(t *testing.T) {
	buffer := buildReparseBuffer(reparseTagSymlink, symlinkFlagRelative, true, `..\Sibling`, `..\Sibling`)

	decoded, ok, err := decodeReparseBuffer(buffer)
	if err != nil {
		t.Fatalf("decodeReparseBuffer: %v", err)
	}
	if !ok {
		t.Fatal("decodeReparseBuffer: ok = false, want true")
	}
	if !decoded.relative {
		t.Error("relative = false, want true")
	}
	if decoded.target != `..\Sibling` {
		t.Errorf("target = %q, want %q", decoded.target, `..\Sibling`)
	}
}

func TestDecodeReparseBufferMountPoint(t *testing.T) {
	buffer := buildReparseBuffer(reparseTagMountPoint, 0, false, `\??\D:\Mounted`, `D:\Mounted`)

	decoded, ok, err := decodeReparseBuffer(buffer)
	if err != nil {
		t.Fatalf("decodeReparseBuffer: %v", err)
	}
	if !ok {
		t.Fatal("decodeReparseBuffer: ok = false, want true")
	}
	if decoded.kind != linkKindMountPoint {
		t.Errorf("kind = %v, want mount point", decoded.kind)
	}
	if decoded.target != `\??\D:\Mounted` {
		t.Errorf("target = %q, want %q", decoded.target, `\??\D:\Mounted`)
	}
	if decoded.relative {
		t.Error("relative = true, want false: mount points are always absolute")
	}
}

func TestDecodeReparseBufferUnknownTag(t *testing.T) {
	// IO_REPARSE_TAG_DEDUP: a reparse point, but not a redirecting one.
	buffer := buildReparseBuffer(0x80000013, 0, false, `ignored`, ``)

	_, ok, err := decodeReparseBuffer(buffer)
	if err != nil {
		t.Fatalf("decodeReparseBuffer: %v", err)
	}
	if ok {
		t.Error("ok = true for unknown tag, want false")
	}
}

func TestDecodeReparseBufferTruncated(t *testing.T) {
	buffer := buildReparseBuffer(reparseTagSymlink, 0, true, `\??\D:\Target`, ``)

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"short header", func(b []byte) []byte { return b[:6] }},
		{"cut mid name", func(b []byte) []byte { return b[:len(b)-5] }},
		{"name length overruns", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[10:], uint16(len(b))*2)
			return b
		}},
		{"odd name length", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[10:], 3)
			return b
		}},
	}
	for _, test := range tests {
		mangled := test.mangle(append([]byte(nil), buffer...))
		if _, _, err := decodeReparseBuffer(mangled); err == nil {
			t.Errorf("%s: decode succeeded, want error", test.name)
		}
	}
}

func TestDecodeUTF16LERoundTrip(t *testing.T) {
	for _, s := range []string{``, `C:\A`, `påth with ünicode`, `emoji 🙂`} {
		if got := decodeUTF16LE(encodeUTF16LE(s)); got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}
