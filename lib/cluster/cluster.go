// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/iptools-project/iptools/lib/clock"
	"github.com/iptools-project/iptools/lib/config"
	"github.com/iptools-project/iptools/lib/launch"
	"github.com/iptools-project/iptools/lib/nodelist"
	"github.com/iptools-project/iptools/lib/profile"
	"github.com/iptools-project/iptools/lib/readiness"
	"github.com/iptools-project/iptools/lib/teardown"
)

// PPNVariable overrides the engines-per-node count when set.
const PPNVariable = "PPN"

// Options describes the cluster to start.
type Options struct {
	// PPN is the number of engines per node. Zero selects the
	// configured default. The PPN environment variable wins over both.
	PPN int

	// Debug keeps the output of every spawned process in
	// <profile directory>/log. Without it the output is discarded.
	Debug bool

	// Profile names the profile. Empty generates temp_<uuid>.
	Profile string

	// Nodes lists the hosts to start engines on. Empty reads the
	// batch scheduler's node list from the environment.
	Nodes []string

	// WorkDir is the engines' working directory and the base of a
	// relative descriptor path. Empty uses the current directory.
	WorkDir string

	// Hostname identifies the local node. Empty uses os.Hostname.
	Hostname string

	// Config supplies binaries and timings. Nil uses config.Builtin.
	Config *config.Config

	// DescriptorPath overrides Config.Cluster.Descriptor.
	DescriptorPath string
}

// Dependencies are the side-effecting collaborators of a cluster.
// Zero fields select the production implementation.
type Dependencies struct {
	Starter       launch.Starter
	Runner        profile.Runner
	NewProbe      func(profileName, profileDir string) readiness.Probe
	ResolveBinary func(name string) (string, error)
	Terminator    *teardown.Terminator
	Clock         clock.Clock
	Logger        *slog.Logger

	// LookupEnv reads the environment. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

func (d Dependencies) withDefaults(cfg *config.Config) Dependencies {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.LookupEnv == nil {
		d.LookupEnv = os.LookupEnv
	}
	if d.Starter == nil {
		d.Starter = &launch.Spawner{
			SSH:        cfg.Binaries.SSH,
			SSHOptions: cfg.Binaries.SSHOptions,
			Logger:     d.Logger,
		}
	}
	if d.Runner == nil {
		d.Runner = profile.ExecRunner{}
	}
	if d.NewProbe == nil {
		command := cfg.Probe.Command
		d.NewProbe = func(profileName, profileDir string) readiness.Probe {
			return readiness.NewCommandProbe(command, profileName, profileDir)
		}
	}
	if d.ResolveBinary == nil {
		d.ResolveBinary = launch.ResolveBinary
	}
	if d.Terminator == nil {
		d.Terminator = teardown.NewTerminator(d.Logger)
	}
	return d
}

// Cluster is a started cluster. Its descriptor is complete once Start
// returns.
type Cluster struct {
	deps           Dependencies
	timings        config.Timings
	descriptor     profile.Descriptor
	descriptorPath string
	probe          readiness.Probe
	processes      []*launch.Process

	stopOnce sync.Once
	stopErr  error
}

// Start provisions a cluster and waits for its engines to register.
//
// When the engines do not all register before the configured ceiling,
// Start returns the running cluster together with an error wrapping
// readiness.ErrTimeout; the descriptor has been written and the
// cluster can still be stopped. Any other failure, including
// cancellation of ctx, tears down whatever was started and returns a
// nil Cluster.
func Start(ctx context.Context, opts Options, deps Dependencies) (*Cluster, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Builtin()
	}
	timings, err := cfg.Timings()
	if err != nil {
		return nil, fmt.Errorf("invalid timing configuration: %w", err)
	}
	deps = deps.withDefaults(cfg)
	logger := deps.Logger

	perNode, err := enginesPerNode(opts.PPN, cfg.Cluster.PPN, deps.LookupEnv)
	if err != nil {
		return nil, err
	}

	nodes, err := resolveNodes(opts.Nodes, deps.LookupEnv)
	if err != nil {
		return nil, err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
	}
	hostname := opts.Hostname
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("determining hostname: %w", err)
		}
	}
	descriptorPath := opts.DescriptorPath
	if descriptorPath == "" {
		descriptorPath = cfg.DescriptorPath(workDir)
	}

	name, err := profile.NewName(opts.Profile)
	if err != nil {
		return nil, err
	}
	engineBinary, err := deps.ResolveBinary(cfg.Binaries.Engine)
	if err != nil {
		return nil, fmt.Errorf("locating engine binary: %w", err)
	}

	logger.Debug("creating profile", "profile", name)
	profileDir, err := profile.Create(ctx, deps.Runner, profile.CreateSpec{
		Name:               name,
		IPythonDir:         cfg.Cluster.IPythonDir,
		IPythonBinary:      cfg.Binaries.IPython,
		ControllerTemplate: cfg.Templates.Controller,
		EngineTemplate:     cfg.Templates.Engine,
	})
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		deps:           deps,
		timings:        timings,
		descriptorPath: descriptorPath,
		probe:          deps.NewProbe(name, profileDir),
		descriptor: profile.Descriptor{
			Profile:          name,
			ProfileDirectory: profileDir,
			Engines:          []int{},
		},
	}

	var logDir string
	if opts.Debug {
		logDir = filepath.Join(profileDir, "log")
	}

	if err := c.startController(ctx, cfg.Binaries.Controller, workDir, logDir); err != nil {
		return nil, c.abort(err)
	}

	specs := launch.EngineSpecs(nodes.Hosts(), perNode, hostname, engineBinary,
		launch.EngineArgs(profileDir, workDir), workDir, logDir)
	logger.Info("starting engines",
		"profile", name,
		"nodes", nodes.Len(),
		"per_node", perNode,
		"engines", len(specs),
	)
	if err := c.startEngines(ctx, specs); err != nil {
		return nil, c.abort(err)
	}

	if err := c.Save(descriptorPath); err != nil {
		return nil, c.abort(err)
	}
	logger.Debug("descriptor written", "path", descriptorPath)

	poller := c.poller()
	registered, err := poller.WaitEngines(ctx, c.probe, len(specs), timings.EngineTimeout)
	if errors.Is(err, readiness.ErrTimeout) {
		return c, fmt.Errorf("cluster %s: %w", name, err)
	}
	if err != nil {
		return nil, c.abort(err)
	}

	logger.Info("engines registered", "profile", name, "engines", registered)
	return c, nil
}

func (c *Cluster) startController(ctx context.Context, binary, workDir, logDir string) error {
	spec := launch.Spec{
		Role:    launch.RoleController,
		Binary:  binary,
		Args:    launch.ControllerArgs(c.descriptor.ProfileDirectory),
		WorkDir: workDir,
	}
	if logDir != "" {
		spec.LogPath = filepath.Join(logDir, "controller.log")
	}

	c.deps.Logger.Debug("starting controller")
	process, err := c.deps.Starter.Start(spec)
	if err != nil {
		return err
	}
	c.record(process)

	if err := c.pause(ctx, c.timings.Settle); err != nil {
		return err
	}

	err = c.poller().WaitController(ctx, c.probe, c.timings.ControllerTimeout)
	if errors.Is(err, readiness.ErrTimeout) {
		// Engines retry their registration, so a slow controller is
		// not fatal. The engine wait decides.
		c.deps.Logger.Warn("controller not ready, starting engines anyway", "error", err)
		return nil
	}
	return err
}

func (c *Cluster) startEngines(ctx context.Context, specs []launch.Spec) error {
	for i, spec := range specs {
		if i > 0 {
			if err := c.pause(ctx, c.timings.Stagger); err != nil {
				return err
			}
		}
		process, err := c.deps.Starter.Start(spec)
		if err != nil {
			return err
		}
		c.record(process)
	}
	return nil
}

// record adds a spawned process to the descriptor.
func (c *Cluster) record(process *launch.Process) {
	c.processes = append(c.processes, process)
	switch process.Role {
	case launch.RoleController:
		c.descriptor.Controller = process.PID
	case launch.RoleEngine:
		c.descriptor.Engines = append(c.descriptor.Engines, process.PID)
		c.descriptor.Hosts = append(c.descriptor.Hosts, process.Host)
	}
	if process.StartTime != 0 {
		c.descriptor.SetStartTime(process.PID, process.StartTime)
	}
}

func (c *Cluster) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.deps.Clock.After(d):
		return nil
	}
}

func (c *Cluster) poller() *readiness.Poller {
	return &readiness.Poller{
		Clock:    c.deps.Clock,
		Interval: c.timings.PollInterval,
		Logger:   c.deps.Logger,
	}
}

// abort tears down a partially started cluster and returns cause,
// joined with any teardown failure.
func (c *Cluster) abort(cause error) error {
	c.deps.Logger.Debug("start failed, tearing down", "error", cause)
	if err := c.Stop(context.Background()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Descriptor returns a copy of the cluster's descriptor.
func (c *Cluster) Descriptor() profile.Descriptor {
	d := c.descriptor
	d.Engines = append([]int(nil), c.descriptor.Engines...)
	d.Hosts = append([]string(nil), c.descriptor.Hosts...)
	if c.descriptor.StartTimes != nil {
		d.StartTimes = make(map[string]uint64, len(c.descriptor.StartTimes))
		for pid, ticks := range c.descriptor.StartTimes {
			d.StartTimes[pid] = ticks
		}
	}
	return d
}

// DescriptorPath returns where Start wrote the descriptor.
func (c *Cluster) DescriptorPath() string { return c.descriptorPath }

// Save writes the descriptor to path.
func (c *Cluster) Save(path string) error {
	d := c.Descriptor()
	return profile.WriteDescriptor(path, &d)
}

// Stop signals every process group of the cluster and removes the
// profile directory. Only the first call acts; later calls return the
// first call's result.
func (c *Cluster) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopErr = teardownDescriptor(ctx, &c.descriptor, c.deps, c.timings)
	})
	return c.stopErr
}

// StopDescriptor stops the cluster recorded in the descriptor at path.
// Stopping an already stopped cluster succeeds.
func StopDescriptor(ctx context.Context, path string, cfg *config.Config, deps Dependencies) error {
	if cfg == nil {
		cfg = config.Builtin()
	}
	timings, err := cfg.Timings()
	if err != nil {
		return fmt.Errorf("invalid timing configuration: %w", err)
	}
	deps = deps.withDefaults(cfg)

	d, err := profile.ReadDescriptor(path)
	if err != nil {
		return err
	}
	deps.Logger.Debug("stopping cluster", "profile", d.Profile, "descriptor", path)
	return teardownDescriptor(ctx, d, deps, timings)
}

func teardownDescriptor(ctx context.Context, d *profile.Descriptor, deps Dependencies, timings config.Timings) error {
	var errs []error
	for _, target := range deps.Terminator.Terminate(d) {
		if target.Outcome == teardown.Failed {
			errs = append(errs, fmt.Errorf("signalling %s %d: %w", target.Role, target.PID, target.Err))
		}
	}

	remover := &teardown.Remover{
		Clock:    deps.Clock,
		Attempts: timings.RemoveAttempts,
		Interval: timings.RemoveInterval,
		Logger:   deps.Logger,
	}
	if err := remover.Remove(ctx, d.ProfileDirectory); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	deps.Logger.Info("cluster stopped", "profile", d.Profile)
	return nil
}

func enginesPerNode(requested, configured int, lookup func(string) (string, bool)) (int, error) {
	if value, ok := lookup(PPNVariable); ok && value != "" {
		perNode, err := strconv.Atoi(value)
		if err != nil || perNode < 1 {
			return 0, fmt.Errorf("%s=%q: must be a positive integer", PPNVariable, value)
		}
		return perNode, nil
	}
	if requested > 0 {
		return requested, nil
	}
	if requested < 0 {
		return 0, fmt.Errorf("engines per node must be positive, got %d", requested)
	}
	return configured, nil
}

func resolveNodes(nodes []string, lookup func(string) (string, bool)) (nodelist.List, error) {
	if len(nodes) > 0 {
		list := nodelist.New(nodes)
		if list.Len() == 0 {
			return nodelist.List{}, fmt.Errorf("node list contains no host names")
		}
		return list, nil
	}
	list, _, err := nodelist.FromEnvironment(lookup)
	return list, err
}
