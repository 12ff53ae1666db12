// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the polling and
// retry loops in iptools.
//
// Library code never calls time.Now, time.After, or time.Sleep
// directly; waits are selects on [Clock.After]. It takes a [Clock];
// binaries pass [Real] and tests pass a [FakeClock], which stands still
// until [FakeClock.Advance] is called.
//
// A test driving a loop in another goroutine synchronizes with
// [FakeClock.WaitForTimers] before advancing:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go poller.WaitEngines(ctx, probe, 4, time.Minute)
//	fake.WaitForTimers(1)
//	fake.Advance(2 * time.Second)
package clock
