// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

// pathmon-ctl talks to a running pathmon-daemon over its control
// socket:
//
//	pathmon-ctl status
//	pathmon-ctl set-paths <path>...
//	pathmon-ctl resolve <path>...
//	pathmon-ctl watch
//
// The endpoint comes from --endpoint, the config file named by
// --config or PATHMON_CONFIG, or the platform default, in that order.
package main
