// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package procinfo answers two questions about a process group leader:
// does its group still exist, and when did it start. Together they
// let teardown tell a process it spawned apart from an unrelated
// process that later received the same PID.
package procinfo

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// StartTime returns the kernel start time of pid, in clock ticks since
// boot, read from /proc/<pid>/stat.
func StartTime(pid int) (uint64, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return 0, fmt.Errorf("process %d: %w", pid, err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("process %d stat: %w", pid, err)
	}
	return stat.Starttime, nil
}

// GroupAlive reports whether any process remains in process group
// pgid. A group owned by another user (EPERM) counts as alive.
func GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
