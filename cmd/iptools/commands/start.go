// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/iptools-project/iptools/cmd/iptools/cli"
	"github.com/iptools-project/iptools/lib/cluster"
	"github.com/iptools-project/iptools/lib/readiness"
)

// exitNotReady is the exit code of a start whose engines did not all
// register. The cluster is left running and recorded.
const exitNotReady = 2

func startCommand(env *environment) *cli.Command {
	var (
		perNode        int
		debug          bool
		profileName    string
		configPath     string
		descriptorPath string
		nodes          []string
	)

	return &cli.Command{
		Name:    "start",
		Summary: "Start a cluster on the job's nodes",
		Description: `Start a controller and engines on every node of the current batch job.

Nodes come from PBS_NODEFILE, or from SLURM_JOB_NODELIST when no PBS
node file is set. The PPN environment variable overrides --ppn. The
spawned process groups are recorded in the descriptor file as soon as
all engines are started, so "iptools stop" works even if start is
interrupted while waiting for registration.`,
		Usage: "iptools start [--ppn N] [--debug] [--profile NAME] [--config PATH]",
		Examples: []cli.Example{
			{Description: "Start 16 engines per node", Command: "iptools start --ppn 16"},
			{Description: "Reuse a named profile", Command: "iptools start --profile analysis"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
			flagSet.IntVar(&perNode, "ppn", 0, "engines per node (default: configured ppn, 12)")
			flagSet.BoolVar(&debug, "debug", false, "log debug messages and keep process output in the profile's log directory")
			flagSet.StringVar(&profileName, "profile", "", "profile name (default: temp_<uuid>)")
			flagSet.StringSliceVar(&nodes, "nodes", nil, "comma-separated hosts, instead of the job's node list")
			configFlag(flagSet, &configPath)
			descriptorFlag(flagSet, &descriptorPath)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path, err := env.descriptorPath(descriptorPath, cfg)
			if err != nil {
				return err
			}
			logger := env.newLogger(debug).With("command", "start")

			c, err := cluster.Start(ctx, cluster.Options{
				PPN:            perNode,
				Debug:          debug,
				Profile:        profileName,
				Nodes:          nodes,
				Config:         cfg,
				DescriptorPath: path,
			}, env.dependencies(logger))

			if errors.Is(err, readiness.ErrTimeout) {
				d := c.Descriptor()
				logger.Error("engines did not all register", "error", err)
				fmt.Fprintf(env.stdout, "cluster %s started with %d engines, not all registered\ndescriptor: %s\n",
					d.Profile, len(d.Engines), path)
				return &cli.ExitError{Code: exitNotReady}
			}
			if err != nil {
				return err
			}

			d := c.Descriptor()
			fmt.Fprintf(env.stdout, "cluster %s started with %d engines\ndescriptor: %s\n",
				d.Profile, len(d.Engines), path)
			return nil
		},
	}
}
