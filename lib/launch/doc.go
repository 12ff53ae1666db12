// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package launch starts controller and engine processes, either
// directly or through a remote shell.
//
// Every process is started in a new session, so its PID is also its
// process group ID. Teardown signals the whole group, which reaches
// the ssh client and anything the framework forked locally. Starts are
// fire-and-forget: the process is not supervised after spawn, and its
// output goes to a log file (or is discarded).
//
// [EngineSpecs] expands a node list into one [Spec] per engine slot,
// choosing a local exec for this host and ssh for every other node.
package launch
