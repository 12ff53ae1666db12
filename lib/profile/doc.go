// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile manages the two artifacts that identify one cluster
// instance: the profile directory the framework reads its settings
// from, and the [Descriptor] file that records what was spawned.
//
// [Create] runs the framework's profile-create command and renders the
// controller and engine configuration files into the new directory.
// [WriteDescriptor] persists the spawned process identifiers (written
// once, atomically) and [ReadDescriptor] loads them back for teardown.
//
// The descriptor is JSON because operators read it and other tools
// consume it. Its required fields are profile, profile_directory,
// engines, and controller; hosts and start_times are optional
// additions that older readers ignore.
package profile
