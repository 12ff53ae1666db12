// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Names of the files rendered into a profile directory.
const (
	ControllerConfigFile = "ipcontroller_config.py"
	EngineConfigFile     = "ipengine_config.py"
)

// The hub and engines listen on every interface so engines on other
// nodes can reach the controller.
const defaultControllerTemplate = `
c = get_config()
c.HubFactory.ip = '*'
`

const defaultEngineTemplate = `
c = get_config()
c.EngineFactory.timeout = {{.EngineTimeout}}
c.IPEngineApp.log_to_file = True
c.IPEngineApp.log_level = {{.EngineLogLevel}}
c.EngineFactory.ip = '*'
`

// TemplateData is the data available to profile templates.
type TemplateData struct {
	Profile          string
	ProfileDirectory string

	// EngineTimeout is how long, in seconds, an engine waits for the
	// controller's registration reply.
	EngineTimeout int

	// EngineLogLevel is a Python logging level (30 is WARNING).
	EngineLogLevel int
}

// renderTemplate renders source (or the file at overridePath, when
// set) with data and writes the result to target.
func renderTemplate(name, source, overridePath, target string, data TemplateData) error {
	if overridePath != "" {
		content, err := os.ReadFile(overridePath)
		if err != nil {
			return fmt.Errorf("reading %s template: %w", name, err)
		}
		source = string(content)
	}

	parsed, err := template.New(name).Option("missingkey=error").Parse(source)
	if err != nil {
		return fmt.Errorf("parsing %s template: %w", name, err)
	}

	var rendered strings.Builder
	if err := parsed.Execute(&rendered, data); err != nil {
		return fmt.Errorf("rendering %s template: %w", name, err)
	}

	if err := os.WriteFile(target, []byte(rendered.String()), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(target), err)
	}
	return nil
}
