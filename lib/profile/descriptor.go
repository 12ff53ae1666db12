// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/jsonc"
)

// Descriptor records one running cluster.
type Descriptor struct {
	// Profile is the profile name.
	Profile string `json:"profile"`

	// ProfileDirectory is the absolute path of the profile directory.
	ProfileDirectory string `json:"profile_directory"`

	// Engines lists engine process IDs in spawn order. Each is also
	// the ID of the engine's process group.
	Engines []int `json:"engines"`

	// Controller is the controller process (and process group) ID.
	Controller int `json:"controller"`

	// Hosts is parallel to Engines: the node each engine was started
	// for.
	Hosts []string `json:"hosts,omitempty"`

	// StartTimes maps a decimal PID to the kernel start time of that
	// process in clock ticks since boot. Teardown compares it against
	// the live process so a recycled PID is not signalled.
	StartTimes map[string]uint64 `json:"start_times,omitempty"`
}

// StartTime returns the recorded start time of pid.
func (d *Descriptor) StartTime(pid int) (uint64, bool) {
	ticks, ok := d.StartTimes[strconv.Itoa(pid)]
	return ticks, ok
}

// SetStartTime records the start time of pid.
func (d *Descriptor) SetStartTime(pid int, ticks uint64) {
	if d.StartTimes == nil {
		d.StartTimes = make(map[string]uint64)
	}
	d.StartTimes[strconv.Itoa(pid)] = ticks
}

// Validate reports structural problems that would make teardown act
// on the wrong target.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.Profile == "" {
		errs = append(errs, errors.New("profile is required"))
	}
	if d.ProfileDirectory == "" {
		errs = append(errs, errors.New("profile_directory is required"))
	} else if !filepath.IsAbs(d.ProfileDirectory) {
		errs = append(errs, fmt.Errorf("profile_directory %q is not absolute", d.ProfileDirectory))
	}
	if d.Controller < 0 {
		errs = append(errs, fmt.Errorf("controller pid %d is negative", d.Controller))
	}
	for _, pid := range d.Engines {
		if pid <= 0 {
			errs = append(errs, fmt.Errorf("engine pid %d is not positive", pid))
		}
	}
	if len(d.Hosts) != 0 && len(d.Hosts) != len(d.Engines) {
		errs = append(errs, fmt.Errorf("hosts has %d entries for %d engines", len(d.Hosts), len(d.Engines)))
	}
	return errors.Join(errs...)
}

// WriteDescriptor atomically writes d to path: the JSON is written to
// a temporary file in the same directory, synced, and renamed into
// place, so a reader never sees a partial descriptor.
func WriteDescriptor(path string, d *Descriptor) error {
	if d.Engines == nil {
		d.Engines = []int{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling descriptor: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary descriptor: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary descriptor: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary descriptor: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary descriptor: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming descriptor into place: %w", err)
	}

	// Make the rename itself durable.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// ReadDescriptor reads the descriptor at path. Comments and trailing
// commas are accepted, since operators edit this file by hand to drop
// engines that died. When the file does not exist the error wraps
// os.ErrNotExist.
func ReadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(jsonc.ToJSON(data), &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", path, err)
	}
	return &d, nil
}
