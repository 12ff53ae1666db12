// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file read by Load.
const EnvironmentVariable = "IPTOOLS_CONFIG"

// Config is the master configuration for iptools.
type Config struct {
	// Cluster configures the default cluster shape and file locations.
	Cluster ClusterConfig `yaml:"cluster"`

	// Binaries names the framework executables.
	Binaries BinariesConfig `yaml:"binaries"`

	// Timing configures spawn pacing, readiness ceilings, and teardown
	// retries.
	Timing TimingConfig `yaml:"timing"`

	// Probe configures how registered engines are counted.
	Probe ProbeConfig `yaml:"probe"`

	// Templates optionally replaces the built-in profile templates.
	Templates TemplatesConfig `yaml:"templates"`
}

// ClusterConfig configures cluster defaults.
type ClusterConfig struct {
	// PPN is the number of engines per node when neither --ppn nor
	// the PPN environment variable is given.
	// Default: 12
	PPN int `yaml:"ppn"`

	// IPythonDir is the directory holding profile_<name> directories.
	// Default: ${HOME}/.ipython
	IPythonDir string `yaml:"ipython_dir"`

	// Descriptor is the path of the profile descriptor written by
	// start and read by stop. Relative paths resolve against the
	// working directory.
	// Default: profile.json
	Descriptor string `yaml:"descriptor"`
}

// BinariesConfig names the executables iptools drives. Bare names are
// resolved through PATH.
type BinariesConfig struct {
	// IPython runs "profile create".
	IPython string `yaml:"ipython"`

	// Controller is the hub process.
	Controller string `yaml:"controller"`

	// Engine is the worker process started once per slot.
	Engine string `yaml:"engine"`

	// SSH is the remote shell used for engines on other hosts.
	SSH string `yaml:"ssh"`

	// SSHOptions are inserted between the ssh binary and the host.
	SSHOptions []string `yaml:"ssh_options"`
}

// TimingConfig holds the fixed intervals of the start and stop
// sequences. Values are Go duration strings.
type TimingConfig struct {
	// Settle is the pause between spawning the controller and the
	// first readiness probe.
	Settle string `yaml:"settle"`

	// Stagger is the pause between consecutive engine spawns.
	Stagger string `yaml:"stagger"`

	// PollInterval is the fixed interval between readiness probes.
	PollInterval string `yaml:"poll_interval"`

	// ControllerTimeout bounds the controller readiness wait.
	ControllerTimeout string `yaml:"controller_timeout"`

	// EngineTimeout bounds the engine registration wait.
	EngineTimeout string `yaml:"engine_timeout"`

	// RemoveAttempts bounds profile directory removal retries.
	RemoveAttempts int `yaml:"remove_attempts"`

	// RemoveInterval is the pause between removal attempts.
	RemoveInterval string `yaml:"remove_interval"`
}

// ProbeConfig configures the registered-engine probe.
type ProbeConfig struct {
	// Command is the argv of a program that prints the number of
	// registered engines on stdout and exits 0 once the controller
	// accepts clients. ${PROFILE} and ${PROFILE_DIR} are substituted.
	Command []string `yaml:"command"`
}

// TemplatesConfig optionally overrides the rendered profile files.
// Empty values select the built-in templates.
type TemplatesConfig struct {
	Controller string `yaml:"controller"`
	Engine     string `yaml:"engine"`
}

// Timings is TimingConfig with durations parsed.
type Timings struct {
	Settle            time.Duration
	Stagger           time.Duration
	PollInterval      time.Duration
	ControllerTimeout time.Duration
	EngineTimeout     time.Duration
	RemoveAttempts    int
	RemoveInterval    time.Duration
}

// DefaultProbeCommand counts engines through the ipyparallel client.
var DefaultProbeCommand = []string{
	"python3", "-c",
	"import sys, ipyparallel; print(len(ipyparallel.Client(profile_dir=sys.argv[1]).ids))",
	"${PROFILE_DIR}",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			PPN:        12,
			IPythonDir: "${HOME}/.ipython",
			Descriptor: "profile.json",
		},
		Binaries: BinariesConfig{
			IPython:    "ipython",
			Controller: "ipcontroller",
			Engine:     "ipengine",
			SSH:        "ssh",
		},
		Timing: TimingConfig{
			Settle:            "1s",
			Stagger:           "100ms",
			PollInterval:      "2s",
			ControllerTimeout: "30s",
			EngineTimeout:     "120s",
			RemoveAttempts:    20,
			RemoveInterval:    "1s",
		},
		Probe: ProbeConfig{
			Command: append([]string(nil), DefaultProbeCommand...),
		},
	}
}

// Builtin returns Default with environment variables expanded, ready
// for use without a configuration file.
func Builtin() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

// Load loads configuration from the file named by IPTOOLS_CONFIG, or
// returns Builtin when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, layered over Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Cluster.IPythonDir = ExpandVars(c.Cluster.IPythonDir, vars)
	c.Cluster.Descriptor = ExpandVars(c.Cluster.Descriptor, vars)
	c.Binaries.IPython = ExpandVars(c.Binaries.IPython, vars)
	c.Binaries.Controller = ExpandVars(c.Binaries.Controller, vars)
	c.Binaries.Engine = ExpandVars(c.Binaries.Engine, vars)
	c.Binaries.SSH = ExpandVars(c.Binaries.SSH, vars)
	c.Templates.Controller = ExpandVars(c.Templates.Controller, vars)
	c.Templates.Engine = ExpandVars(c.Templates.Engine, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandVars expands ${VAR} and ${VAR:-default} patterns. Names in
// vars take precedence over the process environment.
func ExpandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Cluster.PPN < 1 {
		errs = append(errs, fmt.Errorf("cluster.ppn must be at least 1, got %d", c.Cluster.PPN))
	}
	if c.Cluster.IPythonDir == "" {
		errs = append(errs, fmt.Errorf("cluster.ipython_dir is required"))
	}
	if c.Cluster.Descriptor == "" {
		errs = append(errs, fmt.Errorf("cluster.descriptor is required"))
	}

	binaries := map[string]string{
		"binaries.ipython":    c.Binaries.IPython,
		"binaries.controller": c.Binaries.Controller,
		"binaries.engine":     c.Binaries.Engine,
		"binaries.ssh":        c.Binaries.SSH,
	}
	for _, name := range []string{"binaries.ipython", "binaries.controller", "binaries.engine", "binaries.ssh"} {
		if binaries[name] == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	if len(c.Probe.Command) == 0 {
		errs = append(errs, fmt.Errorf("probe.command is required"))
	}

	if c.Timing.RemoveAttempts < 1 {
		errs = append(errs, fmt.Errorf("timing.remove_attempts must be at least 1, got %d", c.Timing.RemoveAttempts))
	}
	if _, err := c.Timings(); err != nil {
		errs = append(errs, err)
	}

	for _, path := range []string{c.Templates.Controller, c.Templates.Engine} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", path, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Timings parses the duration strings in c.Timing.
func (c *Config) Timings() (Timings, error) {
	var errs []error
	parse := func(field, value string) time.Duration {
		duration, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("timing.%s: %w", field, err))
			return 0
		}
		if duration < 0 {
			errs = append(errs, fmt.Errorf("timing.%s must not be negative", field))
		}
		return duration
	}

	timings := Timings{
		Settle:            parse("settle", c.Timing.Settle),
		Stagger:           parse("stagger", c.Timing.Stagger),
		PollInterval:      parse("poll_interval", c.Timing.PollInterval),
		ControllerTimeout: parse("controller_timeout", c.Timing.ControllerTimeout),
		EngineTimeout:     parse("engine_timeout", c.Timing.EngineTimeout),
		RemoveAttempts:    c.Timing.RemoveAttempts,
		RemoveInterval:    parse("remove_interval", c.Timing.RemoveInterval),
	}
	if len(errs) > 0 {
		return Timings{}, errors.Join(errs...)
	}
	if timings.PollInterval == 0 {
		return Timings{}, fmt.Errorf("timing.poll_interval must be positive")
	}
	return timings, nil
}

// DescriptorPath returns the descriptor location, resolved against
// workDir when relative.
func (c *Config) DescriptorPath(workDir string) string {
	if filepath.IsAbs(c.Cluster.Descriptor) {
		return c.Cluster.Descriptor
	}
	return filepath.Join(workDir, c.Cluster.Descriptor)
}
