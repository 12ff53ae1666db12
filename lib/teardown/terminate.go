// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package teardown

import (
	"errors"
	"log/slog"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/iptools-project/iptools/lib/procinfo"
	"github.com/iptools-project/iptools/lib/profile"
)

// Signaller delivers a signal to a process group.
type Signaller interface {
	SignalGroup(pgid int, signal syscall.Signal) error
}

// GroupSignaller signals process groups with kill(2).
type GroupSignaller struct{}

// SignalGroup implements Signaller.
func (GroupSignaller) SignalGroup(pgid int, signal syscall.Signal) error {
	return unix.Kill(-pgid, signal)
}

// Outcome classifies what Terminate did with one recorded PID.
type Outcome string

const (
	// Signalled: the signal was delivered.
	Signalled Outcome = "signalled"
	// Gone: the group no longer exists.
	Gone Outcome = "gone"
	// Reused: the PID now belongs to a different process.
	Reused Outcome = "reused"
	// Invalid: the PID cannot name a spawned group (0 or 1).
	Invalid Outcome = "invalid"
	// Failed: signalling returned an unexpected error.
	Failed Outcome = "failed"
)

// Target is one process group Terminate acted on.
type Target struct {
	Role    string
	PID     int
	Outcome Outcome
	Err     error
}

// Terminator signals the process groups recorded in a descriptor.
type Terminator struct {
	Signaller Signaller

	// StartTime returns the live start time of a PID. Defaults to
	// procinfo.StartTime.
	StartTime func(pid int) (uint64, error)

	Logger *slog.Logger
}

// NewTerminator returns a Terminator that signals real process groups.
func NewTerminator(logger *slog.Logger) *Terminator {
	return &Terminator{
		Signaller: GroupSignaller{},
		StartTime: procinfo.StartTime,
		Logger:    logger,
	}
}

// Terminate sends SIGINT to every engine group and then the controller
// group. It never fails: per-target results are returned for logging.
func (t *Terminator) Terminate(d *profile.Descriptor) []Target {
	targets := make([]Target, 0, len(d.Engines)+1)
	for _, pid := range d.Engines {
		targets = append(targets, t.signal(d, "engine", pid))
	}
	targets = append(targets, t.signal(d, "controller", d.Controller))
	return targets
}

func (t *Terminator) signal(d *profile.Descriptor, role string, pid int) Target {
	target := Target{Role: role, PID: pid}

	// kill(-0) would signal our own group and kill(-1) every process
	// we may signal.
	if pid <= 1 {
		target.Outcome = Invalid
		return t.report(target)
	}

	if recorded, ok := d.StartTime(pid); ok && t.StartTime != nil {
		// A missing /proc entry means the leader exited. The group ID
		// cannot be handed out again while members remain, so the
		// group is still safe to signal.
		if live, err := t.StartTime(pid); err == nil && live != recorded {
			target.Outcome = Reused
			return t.report(target)
		}
	}

	err := t.Signaller.SignalGroup(pid, unix.SIGINT)
	switch {
	case err == nil:
		target.Outcome = Signalled
	case errors.Is(err, unix.ESRCH):
		target.Outcome = Gone
	default:
		target.Outcome = Failed
		target.Err = err
	}
	return t.report(target)
}

func (t *Terminator) report(target Target) Target {
	if t.Logger == nil {
		return target
	}
	attributes := []any{"role", target.Role, "pid", target.PID, "outcome", target.Outcome}
	switch target.Outcome {
	case Reused:
		t.Logger.Warn("pid reused since spawn, not signalling", attributes...)
	case Failed:
		t.Logger.Warn("signalling process group failed", append(attributes, "error", target.Err)...)
	default:
		t.Logger.Debug("terminate", attributes...)
	}
	return target
}
