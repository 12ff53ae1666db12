// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package launch

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/iptools-project/iptools/lib/procinfo"
)

// Role distinguishes the controller from engines.
type Role string

const (
	RoleController Role = "controller"
	RoleEngine     Role = "engine"
)

// Spec describes one process to start.
type Spec struct {
	Role Role

	// Host is the node the process runs on. When Remote is set the
	// command is wrapped in the remote shell for Host.
	Host   string
	Remote bool

	// Binary and Args are the command to run on Host.
	Binary string
	Args   []string

	// WorkDir is the local working directory of the started process.
	WorkDir string

	// LogPath receives stdout and stderr. Empty discards output.
	LogPath string
}

// Process is a started process.
type Process struct {
	Role Role
	Host string
	PID  int

	// StartTime is the kernel start time in clock ticks, or zero when
	// /proc could not be read.
	StartTime uint64

	// done is closed once the process has been reaped.
	done chan struct{}
}

// Starter starts processes. Spawner is the production implementation.
type Starter interface {
	Start(spec Spec) (*Process, error)
}

// Spawner starts processes with os/exec.
type Spawner struct {
	// SSH is the remote shell binary.
	SSH string

	// SSHOptions are inserted between SSH and the host name.
	SSHOptions []string

	Logger *slog.Logger
}

// Command returns the argv that starts spec.
func (s *Spawner) Command(spec Spec) []string {
	var argv []string
	if spec.Remote {
		argv = append(argv, s.SSH)
		argv = append(argv, s.SSHOptions...)
		argv = append(argv, spec.Host)
	}
	argv = append(argv, spec.Binary)
	return append(argv, spec.Args...)
}

// Start launches spec in a new session and returns immediately. A
// background goroutine reaps the process when it exits.
func (s *Spawner) Start(spec Spec) (*Process, error) {
	argv := s.Command(spec)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var logFile *os.File
	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file, err := os.OpenFile(spec.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening %s log: %w", spec.Role, err)
		}
		logFile = file
		cmd.Stdout = file
		cmd.Stderr = file
	}

	err := cmd.Start()
	// The child holds its own descriptor for the log file.
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("starting %s on %s: %w", spec.Role, hostLabel(spec), err)
	}

	process := &Process{
		Role: spec.Role,
		Host: spec.Host,
		PID:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	if ticks, err := procinfo.StartTime(process.PID); err == nil {
		process.StartTime = ticks
	} else if s.Logger != nil {
		s.Logger.Debug("start time unavailable", "pid", process.PID, "error", err)
	}

	go func() {
		_ = cmd.Wait()
		close(process.done)
	}()

	if s.Logger != nil {
		s.Logger.Debug("process started",
			"role", spec.Role,
			"host", hostLabel(spec),
			"pid", process.PID,
			"command", strings.Join(argv, " "),
		)
	}
	return process, nil
}

func hostLabel(spec Spec) string {
	if spec.Host == "" {
		return "localhost"
	}
	return spec.Host
}

// ControllerArgs returns the controller command line for the profile
// at profileDir.
func ControllerArgs(profileDir string) []string {
	return []string{
		"--profile-dir=" + profileDir,
		"--log-to-file",
		"--log-level=50",
		"--ip=*",
	}
}

// EngineArgs returns the engine command line for the profile at
// profileDir, running tasks in workDir.
func EngineArgs(profileDir, workDir string) []string {
	return []string{
		"--profile-dir=" + profileDir,
		"--log-to-file",
		"--log-level=20",
		"--work-dir=" + workDir,
	}
}

// IsLocal reports whether node names this host. Batch schedulers list
// either fully qualified or short names, so a node matching the first
// label of hostname (or vice versa) is local too.
func IsLocal(node, hostname string) bool {
	if node == "" || hostname == "" {
		return false
	}
	if node == hostname {
		return true
	}
	nodeShort, _, _ := strings.Cut(node, ".")
	hostShort, _, _ := strings.Cut(hostname, ".")
	return nodeShort == hostShort
}

// ResolveBinary returns the absolute path of name. Names containing a
// slash are checked directly; bare names are looked up in PATH.
func ResolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", name, err)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return absolute, nil
}

// EngineSpecs returns one Spec per engine slot: perNode engines on
// each node, in node order. Engines on hostname run locally, all
// others through the remote shell. Each engine's output goes to
// logDir/engine-<n>.log when logDir is set.
func EngineSpecs(nodes []string, perNode int, hostname, binary string, args []string, workDir, logDir string) []Spec {
	if perNode < 1 {
		return nil
	}
	specs := make([]Spec, 0, len(nodes)*perNode)
	for _, node := range nodes {
		remote := !IsLocal(node, hostname)
		for range perNode {
			spec := Spec{
				Role:    RoleEngine,
				Host:    node,
				Remote:  remote,
				Binary:  binary,
				Args:    args,
				WorkDir: workDir,
			}
			if logDir != "" {
				spec.LogPath = filepath.Join(logDir, fmt.Sprintf("engine-%d.log", len(specs)))
			}
			specs = append(specs, spec)
		}
	}
	return specs
}
