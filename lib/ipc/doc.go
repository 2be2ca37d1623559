// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types and transport for
// the daemon's control socket. Both cmd/pathmon-daemon and
// cmd/pathmon-ctl import this package so the wire types are defined
// once rather than mirrored.
//
// The transport is a named pipe on Windows and a Unix socket
// elsewhere; [Listen] and [Dial] hide the difference. Every
// connection carries one [Request] and one [Response]. A subscribe
// request then turns the connection into a one-way stream of
// [ChangeEvent] messages that lasts until either side closes.
package ipc
