// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skydda/pathmon/lib/codec"
)

// Client issues requests against the daemon's control socket. Each
// request uses its own connection; a subscription holds one open.
type Client struct {
	endpoint string
}

// NewClient returns a client for the daemon at endpoint.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

func (c *Client) roundTrip(request Request) (*Response, error) {
	conn, err := Dial(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.endpoint, err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", request.Action, err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading %s response: %w", request.Action, err)
	}
	if !response.OK {
		return nil, errors.New(response.Error)
	}
	return &response, nil
}

// Status returns the daemon's configured path list and its current
// resolution.
func (c *Client) Status() (*Response, error) {
	return c.roundTrip(Request{Action: ActionStatus})
}

// SetPaths replaces the daemon's monitored path list.
func (c *Client) SetPaths(paths []string) error {
	_, err := c.roundTrip(Request{Action: ActionSetPaths, Paths: paths})
	return err
}

// Resolve resolves paths through the daemon without changing the
// monitored list.
func (c *Client) Resolve(paths []string) ([]string, error) {
	response, err := c.roundTrip(Request{Action: ActionResolve, Paths: paths})
	if err != nil {
		return nil, err
	}
	return response.Resolved, nil
}

// Subscribe opens a change-event stream. The returned channel closes
// when the stream ends: context cancellation, daemon shutdown, or a
// transport error. A closed channel means re-subscribe or give up —
// no further events are coming.
func (c *Client) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	conn, err := Dial(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.endpoint, err)
	}

	if err := codec.NewEncoder(conn).Encode(Request{Action: ActionSubscribe}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending subscribe request: %w", err)
	}
	decoder := codec.NewDecoder(conn)
	var response Response
	if err := decoder.Decode(&response); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading subscribe response: %w", err)
	}
	if !response.OK {
		conn.Close()
		return nil, errors.New(response.Error)
	}

	events := make(chan ChangeEvent)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer close(done)
		for {
			var event ChangeEvent
			if err := decoder.Decode(&event); err != nil {
				if ctx.Err() == nil {
					slog.Debug("change subscription ended", "error", err)
				}
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
