// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/iptools-project/iptools/cmd/iptools/cli"
	"github.com/iptools-project/iptools/lib/cluster"
)

func stopCommand(env *environment) *cli.Command {
	var (
		debug          bool
		configPath     string
		descriptorPath string
	)

	return &cli.Command{
		Name:    "stop",
		Summary: "Stop the cluster recorded in the descriptor",
		Description: `Send SIGINT to every engine process group and then the controller
group recorded in the descriptor, and remove the profile directory.
Processes whose PID has been reused since start are left alone.
Stopping an already stopped cluster succeeds.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stop", pflag.ContinueOnError)
			flagSet.BoolVar(&debug, "debug", false, "log debug messages")
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
			logger := env.newLogger(debug).With("command", "stop")

			if err := cluster.StopDescriptor(ctx, path, cfg, env.dependencies(logger)); err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "cluster in %s stopped\n", path)
			return nil
		},
	}
}
