// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package ipc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/skydda/pathmon/lib/codec"
)

type fakeBackend struct {
	mu       sync.Mutex
	watched  []string
	resolved []string
	setErr   error
}

func (b *fakeBackend) Status() ([]string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.watched), slices.Clone(b.resolved)
}

func (b *fakeBackend) SetPaths(paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setErr != nil {
		return b.setErr
	}
	b.watched = slices.Clone(paths)
	return nil
}

func (b *fakeBackend) Resolve(paths []string) []string {
	resolved := slices.Clone(paths)
	slices.Sort(resolved)
	return resolved
}

// startServer serves on a Unix socket in a temp directory and returns
// a client against it. Everything stops during test cleanup.
func startServer(t *testing.T, backend *fakeBackend) (*Server, *Client) {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "control.sock")
	listener, err := Listen(endpoint)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	server := NewServer(backend, "test-version")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		server.Close()
		listener.Close()
		<-done
	})

	return server, NewClient(endpoint)
}

func TestStatusRoundTrip(t *testing.T) {
	backend := &fakeBackend{
		watched:  []string{"/opt/app/bin/app"},
		resolved: []string{"/opt/app/bin/app", "/opt/versions/v2/bin/app"},
	}
	_, client := startServer(t, backend)

	response, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !slices.Equal(response.Watched, backend.watched) {
		t.Errorf("Watched = %v, want %v", response.Watched, backend.watched)
	}
	if !slices.Equal(response.Resolved, backend.resolved) {
		t.Errorf("Resolved = %v, want %v", response.Resolved, backend.resolved)
	}
	if response.Version != "test-version" {
		t.Errorf("Version = %q", response.Version)
	}
}

func TestSetPaths(t *testing.T) {
	backend := &fakeBackend{}
	_, client := startServer(t, backend)

	paths := []string{"/opt/a", "/opt/b"}
	if err := client.SetPaths(paths); err != nil {
		t.Fatalf("SetPaths: %v", err)
	}

	watched, _ := backend.Status()
	if !slices.Equal(watched, paths) {
		t.Errorf("backend watched = %v, want %v", watched, paths)
	}
}

func TestSetPathsBackendError(t *testing.T) {
	backend := &fakeBackend{setErr: errors.New("path \"relative\" is not absolute")}
	_, client := startServer(t, backend)

	err := client.SetPaths([]string{"relative"})
	if err == nil {
		t.Fatal("SetPaths should surface the backend error")
	}
	if err.Error() != backend.setErr.Error() {
		t.Errorf("error = %q, want %q", err, backend.setErr)
	}
}

func TestResolve(t *testing.T) {
	_, client := startServer(t, &fakeBackend{})

	resolved, err := client.Resolve([]string{"/opt/b", "/opt/a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Equal(resolved, []string{"/opt/a", "/opt/b"}) {
		t.Errorf("Resolve = %v", resolved)
	}
}

func TestUnknownAction(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "control.sock")
	listener, err := Listen(endpoint)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	server := NewServer(&fakeBackend{}, "v")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, listener)

	conn, err := Dial(endpoint)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(Request{Action: "bogus"}); err != nil {
		t.Fatal(err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatal(err)
	}
	if response.OK || response.Error == "" {
		t.Errorf("response = %+v, want an unknown-action error", response)
	}
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	server, client := startServer(t, &fakeBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The subscription registers asynchronously after the handshake
	// response; wait for it before broadcasting.
	waitForSubscribers(t, server, 1)

	sent := ChangeEvent{
		Time:     time.Now().UTC().Truncate(time.Second),
		Resolved: []string{"/opt/a", "/opt/new/a"},
	}
	server.Broadcast(sent)

	select {
	case received, ok := <-events:
		if !ok {
			t.Fatal("event channel closed before delivering the broadcast")
		}
		if !slices.Equal(received.Resolved, sent.Resolved) {
			t.Errorf("Resolved = %v, want %v", received.Resolved, sent.Resolved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the broadcast event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("unexpected event after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after cancellation")
	}
}

func TestBroadcastDisconnectsSlowSubscriber(t *testing.T) {
	server := NewServer(&fakeBackend{}, "v")

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	sub := &subscriber{conn: serverSide, events: make(chan ChangeEvent, 1)}
	sub.events <- ChangeEvent{} // queue already full
	server.mu.Lock()
	server.subscribers[sub] = struct{}{}
	server.mu.Unlock()

	server.Broadcast(ChangeEvent{Resolved: []string{"/opt/a"}})

	server.mu.Lock()
	_, present := server.subscribers[sub]
	server.mu.Unlock()
	if present {
		t.Error("slow subscriber still registered after Broadcast")
	}

	// The connection must be closed so the stream goroutine (not
	// running in this test) would unblock.
	serverSide.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := serverSide.Read(make([]byte, 1)); err == nil {
		t.Error("slow subscriber connection still open")
	}
}

func waitForSubscribers(t *testing.T, server *Server, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		server.mu.Lock()
		n := len(server.subscribers)
		server.mu.Unlock()
		if n == count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never reached %d subscribers", count)
}
