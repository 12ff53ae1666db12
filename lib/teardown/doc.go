// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package teardown stops a cluster recorded in a profile descriptor.
//
// [Terminator] sends SIGINT to the process group of every recorded
// engine and then the controller. Signalling is best effort: a group
// that no longer exists is not an error. When the descriptor carries
// the kernel start time of a PID and the live process under that PID
// started at a different time, the PID has been recycled and the
// group is skipped.
//
// [Remover] deletes the profile directory, retrying a bounded number
// of times at a fixed interval because engines on NFS home directories
// keep files open briefly after they are signalled.
//
// Both operations are idempotent.
package teardown
