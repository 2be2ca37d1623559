// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/skydda/pathmon/lib/config"
	"github.com/skydda/pathmon/lib/ipc"
	"github.com/skydda/pathmon/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pathmon-ctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var endpoint string
	var configPath string

	flagSet := pflag.NewFlagSet("pathmon-ctl", pflag.ContinueOnError)
	flagSet.StringVar(&endpoint, "endpoint", "", "control socket endpoint (default: from config or platform default)")
	flagSet.StringVar(&configPath, "config", "", "path to pathmon.yaml")
	flagSet.Usage = func() { printHelp(flagSet) }

	// Handle --version before flag parsing to match the other binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("pathmon-ctl")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	endpoint, err := resolveEndpoint(endpoint, configPath)
	if err != nil {
		return err
	}
	client := ipc.NewClient(endpoint)

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("no command given")
	}

	switch command := args[0]; command {
	case "status":
		return runStatus(client)
	case "set-paths":
		if len(args) < 2 {
			return fmt.Errorf("set-paths needs at least one path")
		}
		return client.SetPaths(args[1:])
	case "resolve":
		if len(args) < 2 {
			return fmt.Errorf("resolve needs at least one path")
		}
		return runResolve(client, args[1:])
	case "watch":
		return runWatch(client)
	default:
		return fmt.Errorf("unknown command %q (want status, set-paths, resolve, or watch)", command)
	}
}

// resolveEndpoint picks the control socket endpoint: an explicit flag
// wins, then the config file, then the platform default.
func resolveEndpoint(flagEndpoint, configPath string) (string, error) {
	if flagEndpoint != "" {
		return flagEndpoint, nil
	}
	if configPath == "" {
		configPath = os.Getenv("PATHMON_CONFIG")
	}
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return "", err
		}
		return cfg.Control.Endpoint, nil
	}
	return config.DefaultEndpoint(), nil
}

func runStatus(client *ipc.Client) error {
	response, err := client.Status()
	if err != nil {
		return err
	}
	fmt.Printf("daemon version: %s\n", response.Version)
	fmt.Printf("watched (%d):\n", len(response.Watched))
	for _, path := range response.Watched {
		fmt.Printf("  %s\n", path)
	}
	fmt.Printf("resolved (%d):\n", len(response.Resolved))
	for _, path := range response.Resolved {
		fmt.Printf("  %s\n", path)
	}
	return nil
}

func runResolve(client *ipc.Client, paths []string) error {
	resolved, err := client.Resolve(paths)
	if err != nil {
		return err
	}
	for _, path := range resolved {
		fmt.Println(path)
	}
	return nil
}

// runWatch streams change events until interrupted.
func runWatch(client *ipc.Client) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		fmt.Printf("%s resolution changed (%d paths):\n",
			event.Time.Local().Format("15:04:05"), len(event.Resolved))
		for _, path := range event.Resolved {
			fmt.Printf("  %s\n", path)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("subscription ended: daemon stopped or connection lost")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `pathmon-ctl — control a running pathmon-daemon

Usage:
  pathmon-ctl [flags] status
  pathmon-ctl [flags] set-paths <path>...
  pathmon-ctl [flags] resolve <path>...
  pathmon-ctl [flags] watch

Flags:
%s`, flagSet.FlagUsages())
}
