// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the iptools command tree: start, stop, and
// status.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/iptools-project/iptools/cmd/iptools/cli"
	"github.com/iptools-project/iptools/lib/cluster"
	"github.com/iptools-project/iptools/lib/config"
	"github.com/iptools-project/iptools/lib/version"
)

// environment holds what commands take from the process. Tests
// replace it to run commands without real processes.
type environment struct {
	stdout    io.Writer
	newLogger func(debug bool) *slog.Logger
	getwd     func() (string, error)
	deps      cluster.Dependencies
	inspector cluster.Inspector
}

func processEnvironment() *environment {
	return &environment{
		stdout:    os.Stdout,
		newLogger: cli.NewCommandLogger,
		getwd:     os.Getwd,
	}
}

// Root returns the iptools command tree.
func Root() *cli.Command {
	return newRoot(processEnvironment())
}

func newRoot(env *environment) *cli.Command {
	var showVersion bool
	return &cli.Command{
		Name: "iptools",
		Description: `iptools: temporary IPython Parallel clusters for batch jobs.

Starts a controller and engines on the nodes allocated to the current
PBS or Slurm job, records them in a descriptor file, and tears the
cluster down again.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("iptools", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			startCommand(env),
			stopCommand(env),
			statusCommand(env),
		},
		Run: func(_ context.Context, args []string) error {
			if showVersion {
				fmt.Fprintf(env.stdout, "iptools %s\n", version.Full())
				return nil
			}
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q\n\nRun 'iptools --help' for usage.", args[0])
			}
			return fmt.Errorf("command required\n\nRun 'iptools --help' for usage.")
		},
	}
}

// loadConfig reads path when set, otherwise IPTOOLS_CONFIG or the
// built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// descriptorPath returns flagValue, or the configured descriptor
// location relative to the working directory.
func (env *environment) descriptorPath(flagValue string, cfg *config.Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	workDir, err := env.getwd()
	if err != nil {
		return "", fmt.Errorf("determining working directory: %w", err)
	}
	return cfg.DescriptorPath(workDir), nil
}

// dependencies returns the cluster collaborators with logger set.
func (env *environment) dependencies(logger *slog.Logger) cluster.Dependencies {
	deps := env.deps
	deps.Logger = logger
	return deps
}

// configFlag registers --config on flagSet.
func configFlag(flagSet *pflag.FlagSet, target *string) {
	flagSet.StringVar(target, "config", "", "configuration file (default: $"+config.EnvironmentVariable+" or built-in defaults)")
}

// descriptorFlag registers --descriptor on flagSet.
func descriptorFlag(flagSet *pflag.FlagSet, target *string) {
	flagSet.StringVar(target, "descriptor", "", "profile descriptor path (default: ./profile.json)")
}
