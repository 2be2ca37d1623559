// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skydda/pathmon/lib/config"
	"github.com/skydda/pathmon/lib/ipc"
	"github.com/skydda/pathmon/lib/pathmon"
	"github.com/skydda/pathmon/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pathmon-daemon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("pathmon-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to pathmon.yaml (default: $PATHMON_CONFIG)")

	// Handle --version before flag parsing to match the other binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("pathmon-daemon")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The level is validated at config load; an error here is a
	// programming mistake, not user input.
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if os.Getenv("PATHMON_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	handle, notifications, err := pathmon.Spawn(cfg.Paths)
	if err != nil {
		return fmt.Errorf("starting path monitor: %w", err)
	}

	backend := newBackend(handle, cfg.Paths)
	server := ipc.NewServer(backend, version.Info())

	listener, err := ipc.Listen(cfg.Control.Endpoint)
	if err != nil {
		handle.Shutdown()
		return fmt.Errorf("listening on control socket: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.Serve(ctx, listener)

	// The event pump: each monitor signal means "the resolution
	// changed" — re-read it and fan the new state out to subscribers.
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		for range notifications {
			resolved := backend.Resolve(backend.watchedPaths())
			slog.Info("monitored path resolution changed", "resolved", len(resolved))
			server.Broadcast(ipc.ChangeEvent{Time: time.Now().UTC(), Resolved: resolved})
		}
	}()

	slog.Info("pathmon daemon started",
		"endpoint", cfg.Control.Endpoint,
		"paths", len(cfg.Paths),
		"version", version.Short())

	select {
	case <-ctx.Done():
		slog.Info("shutting down on signal")
	case <-monitorDone:
		listener.Close()
		server.Close()
		return errors.New("path monitor stopped unexpectedly")
	}

	listener.Close()
	server.Close()
	if err := handle.Shutdown(); err != nil {
		slog.Warn("asking path monitor to stop", "error", err)
	}
	select {
	case <-monitorDone:
	case <-time.After(5 * time.Second):
		slog.Warn("path monitor did not stop in time")
	}
	return nil
}

// loadConfig prefers an explicit --config path over PATHMON_CONFIG.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}
