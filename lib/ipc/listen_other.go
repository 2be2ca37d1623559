// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Listen creates a Unix socket listener at endpoint, removing any
// stale socket file from a previous run.
func Listen(endpoint string) (net.Listener, error) {
	socketDir := filepath.Dir(endpoint)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory %s: %w", socketDir, err)
	}

	if err := os.Remove(endpoint); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", endpoint, err)
	}

	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}

	// The rule engine consuming change events may run as a different
	// user in production.
	if err := os.Chmod(endpoint, 0o660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, nil
}

// Dial connects to the daemon's Unix socket.
func Dial(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}
