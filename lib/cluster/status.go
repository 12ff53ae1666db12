// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"github.com/iptools-project/iptools/lib/launch"
	"github.com/iptools-project/iptools/lib/procinfo"
	"github.com/iptools-project/iptools/lib/profile"
)

// State is the observed state of one recorded process.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StateReused  State = "reused"
)

// ProcessStatus describes one process recorded in a descriptor.
type ProcessStatus struct {
	Role  launch.Role
	Host  string
	PID   int
	State State
}

// Inspector looks up live process state. Zero fields use procinfo.
type Inspector struct {
	GroupAlive func(pgid int) bool
	StartTime  func(pid int) (uint64, error)
}

// Inspect reports the state of the controller followed by every
// engine in d. A process group is running while any member lives;
// when the leader's start time no longer matches the recorded one the
// PID belongs to someone else.
func (i Inspector) Inspect(d *profile.Descriptor) []ProcessStatus {
	groupAlive := i.GroupAlive
	if groupAlive == nil {
		groupAlive = procinfo.GroupAlive
	}
	startTime := i.StartTime
	if startTime == nil {
		startTime = procinfo.StartTime
	}

	state := func(pid int) State {
		if pid <= 1 || !groupAlive(pid) {
			return StateExited
		}
		if recorded, ok := d.StartTime(pid); ok {
			if live, err := startTime(pid); err == nil && live != recorded {
				return StateReused
			}
		}
		return StateRunning
	}

	statuses := make([]ProcessStatus, 0, len(d.Engines)+1)
	statuses = append(statuses, ProcessStatus{
		Role:  launch.RoleController,
		PID:   d.Controller,
		State: state(d.Controller),
	})
	for index, pid := range d.Engines {
		status := ProcessStatus{Role: launch.RoleEngine, PID: pid, State: state(pid)}
		if index < len(d.Hosts) {
			status.Host = d.Hosts[index]
		}
		statuses = append(statuses, status)
	}
	return statuses
}
