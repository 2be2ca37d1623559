// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the daemon.
//
// Configuration is loaded from a single file specified by either the
// PATHMON_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Variable expansion is performed after loading: ${HOME} and
// ${VAR:-default} patterns are expanded in the control endpoint and the
// monitored path list. No other environment variables override config
// values.
//
// Key exports:
//
//   - [Config] -- log level, control socket endpoint, monitored paths
//   - [Default] -- a Config with platform defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other pathmon packages.
package config
