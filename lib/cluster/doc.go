// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package cluster runs the lifecycle of a temporary IPython Parallel
// cluster inside a batch job.
//
// [Start] reads the allocated nodes, creates a profile, spawns one
// controller and ppn engines per node, records the spawned process
// groups in a descriptor file, and waits for the engines to register
// with the controller. [Cluster.Stop] and [StopDescriptor] signal the
// recorded groups and remove the profile directory. Both are safe to
// repeat.
//
// Coordination between controller and engines belongs to the
// framework. This package only starts processes, watches the
// framework's client for readiness, and cleans up.
package cluster
