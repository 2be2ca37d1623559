// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skydda/pathmon/lib/codec"
)

// requestDeadline bounds one request/response cycle. Subscriptions
// clear it after the handshake: the event stream is open-ended.
const requestDeadline = 30 * time.Second

// subscriberBuffer is how many change events may queue for one
// subscriber before it is considered too slow and disconnected. Events
// are "re-read and reapply" signals, so a consumer that is this far
// behind gains nothing from the backlog.
const subscriberBuffer = 16

// Backend is what the server needs from the daemon: the monitor state
// behind the control socket.
type Backend interface {
	// Status returns the configured path list and the current sorted
	// resolution union.
	Status() (watched []string, resolved []string)

	// SetPaths replaces the monitored path list.
	SetPaths(paths []string) error

	// Resolve resolves the given paths without changing the monitored
	// list.
	Resolve(paths []string) []string
}

// Server answers control-socket requests and fans change events out to
// subscribers. The accept loop handles connections concurrently; the
// subscriber set is the only shared state.
type Server struct {
	backend Backend
	version string

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn   net.Conn
	events chan ChangeEvent
}

// NewServer returns a server answering from backend. The version
// string is reported in status responses.
func NewServer(backend Backend, version string) *Server {
	return &Server{
		backend:     backend,
		version:     version,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Serve accepts connections until the listener is closed. The caller
// closes the listener to stop; a pending Accept then fails and Serve
// returns once ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			slog.Error("control socket accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestDeadline))

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var request Request
	if err := decoder.Decode(&request); err != nil {
		slog.Error("decoding control request", "error", err)
		if err := encoder.Encode(Response{OK: false, Error: "invalid request"}); err != nil {
			slog.Error("encoding control error response", "error", err)
		}
		return
	}

	slog.Debug("control request", "action", request.Action)

	// A subscription outlives the request deadline and holds the
	// connection; everything else is a single exchange.
	if request.Action == ActionSubscribe {
		if err := encoder.Encode(Response{OK: true}); err != nil {
			slog.Error("encoding subscribe response", "error", err)
			return
		}
		conn.SetDeadline(time.Time{})
		s.stream(ctx, conn, encoder)
		return
	}

	var response Response
	switch request.Action {
	case ActionStatus:
		watched, resolved := s.backend.Status()
		response = Response{OK: true, Watched: watched, Resolved: resolved, Version: s.version}

	case ActionSetPaths:
		if err := s.backend.SetPaths(request.Paths); err != nil {
			response = Response{OK: false, Error: err.Error()}
		} else {
			response = Response{OK: true}
		}

	case ActionResolve:
		response = Response{OK: true, Resolved: s.backend.Resolve(request.Paths)}

	default:
		response = Response{OK: false, Error: fmt.Sprintf("unknown action: %q", request.Action)}
	}

	if err := encoder.Encode(response); err != nil {
		slog.Error("encoding control response", "error", err)
	}
}

// stream delivers change events to one subscriber until the context
// ends, the client disconnects, or Broadcast drops the subscriber for
// falling behind.
func (s *Server) stream(ctx context.Context, conn net.Conn, encoder *codec.Encoder) {
	sub := &subscriber{conn: conn, events: make(chan ChangeEvent, subscriberBuffer)}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
	}()

	// Detect client disconnect: a subscriber never sends again, so the
	// next read settles only when the connection dies.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		buffer := make([]byte, 1)
		for {
			if _, err := conn.Read(buffer); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-disconnected:
			return
		case event := <-sub.events:
			conn.SetWriteDeadline(time.Now().Add(requestDeadline))
			if err := encoder.Encode(event); err != nil {
				slog.Debug("dropping change subscriber", "error", err)
				return
			}
		}
	}
}

// Broadcast fans event out to every subscriber. A subscriber whose
// queue is full is disconnected rather than letting it stall the rest.
func (s *Server) Broadcast(event ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.events <- event:
		default:
			slog.Warn("disconnecting slow change subscriber")
			sub.conn.Close()
			delete(s.subscribers, sub)
		}
	}
}

// Close disconnects every subscriber. The caller closes the listener
// itself.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		sub.conn.Close()
		delete(s.subscribers, sub)
	}
}
