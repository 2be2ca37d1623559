// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// Listen creates a named pipe listener at endpoint
// (e.g. \\.\pipe\pathmon). The pipe uses the default security
// descriptor: same-user access plus administrators.
func Listen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, nil)
}

// Dial connects to the daemon's named pipe.
func Dial(endpoint string) (net.Conn, error) {
	timeout := 5 * time.Second
	return winio.DialPipe(endpoint, &timeout)
}
