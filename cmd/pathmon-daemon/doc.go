// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

// pathmon-daemon watches a list of application paths for changes in
// how they resolve: a directory on the path becoming a symlink or
// junction, a link retargeting, a link disappearing. Consumers — a
// split-tunneling rule engine, typically — subscribe over the control
// socket and re-read the resolution whenever an event arrives.
//
// Configuration comes from a single YAML file named by PATHMON_CONFIG
// or --config. The control socket is a named pipe on Windows and a
// Unix socket elsewhere; cmd/pathmon-ctl is the matching client.
package main
