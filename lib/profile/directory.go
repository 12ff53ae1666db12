// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TemporaryPrefix starts generated profile names.
const TemporaryPrefix = "temp_"

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec. A failing command's combined
// output is included in the returned error.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(output.String())
		if detail == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, detail)
	}
	return nil
}

// NewName returns requested when set, otherwise a fresh temporary
// name of the form temp_<uuid>. The UUID is time-based, so names sort
// roughly by creation time.
func NewName(requested string) (string, error) {
	if requested != "" {
		if strings.ContainsAny(requested, `/\`) || requested == "." || requested == ".." {
			return "", fmt.Errorf("invalid profile name %q", requested)
		}
		return requested, nil
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("generating profile name: %w", err)
	}
	return TemporaryPrefix + id.String(), nil
}

// Directory returns the directory of profile name under ipythonDir.
func Directory(ipythonDir, name string) string {
	return filepath.Join(ipythonDir, "profile_"+name)
}

// CreateSpec describes a profile to create.
type CreateSpec struct {
	// Name is the profile name.
	Name string

	// IPythonDir is the directory that will hold profile_<Name>.
	IPythonDir string

	// IPythonBinary runs "profile create".
	IPythonBinary string

	// ControllerTemplate and EngineTemplate override the built-in
	// templates when non-empty.
	ControllerTemplate string
	EngineTemplate     string
}

// Create runs "<ipython> profile create --parallel" for spec.Name and
// renders the controller and engine configuration files into the
// profile directory, replacing what the framework generated. Returns
// the absolute profile directory.
func Create(ctx context.Context, runner Runner, spec CreateSpec) (string, error) {
	ipythonDir, err := filepath.Abs(spec.IPythonDir)
	if err != nil {
		return "", fmt.Errorf("resolving ipython directory: %w", err)
	}
	directory := Directory(ipythonDir, spec.Name)

	err = runner.Run(ctx, spec.IPythonBinary,
		"profile", "create", "--parallel",
		"--profile="+spec.Name,
		"--ipython-dir="+ipythonDir,
	)
	if err != nil {
		return "", fmt.Errorf("creating profile %s: %w", spec.Name, err)
	}

	// ipython creates the directory; runners that stub it out do not.
	if err := os.MkdirAll(directory, 0755); err != nil {
		return "", fmt.Errorf("creating profile directory: %w", err)
	}

	data := TemplateData{
		Profile:          spec.Name,
		ProfileDirectory: directory,
		EngineTimeout:    300,
		EngineLogLevel:   30,
	}
	if err := renderTemplate("controller", defaultControllerTemplate, spec.ControllerTemplate,
		filepath.Join(directory, ControllerConfigFile), data); err != nil {
		return "", err
	}
	if err := renderTemplate("engine", defaultEngineTemplate, spec.EngineTemplate,
		filepath.Join(directory, EngineConfigFile), data); err != nil {
		return "", err
	}
	return directory, nil
}
