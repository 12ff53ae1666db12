// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package procinfo

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStartTimeOfSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("no /proc filesystem")
	}
	first, err := StartTime(os.Getpid())
	if err != nil {
		t.Fatalf("StartTime: %v", err)
	}
	second, err := StartTime(os.Getpid())
	if err != nil {
		t.Fatalf("StartTime: %v", err)
	}
	if first != second {
		t.Errorf("start time changed between reads: %d then %d", first, second)
	}
}

func TestStartTimeMissingProcess(t *testing.T) {
	// PIDs are capped well below this on Linux (pid_max <= 2^22).
	if _, err := StartTime(1 << 30); err == nil {
		t.Fatal("expected error for a nonexistent pid")
	}
}

func TestGroupAlive(t *testing.T) {
	if !GroupAlive(unix.Getpgrp()) {
		t.Error("own process group reported dead")
	}
	if GroupAlive(0) || GroupAlive(-5) {
		t.Error("GroupAlive accepted a non-positive group")
	}
	if GroupAlive(1 << 30) {
		t.Error("nonexistent group reported alive")
	}
}
