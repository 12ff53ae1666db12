// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-deadline
// pattern that keeps a broken test from hanging the suite. They are
// the only place tests wait on the wall clock; everything else runs
// on the fake clock in lib/clock.
package testutil
