// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// iptools starts and stops temporary IPython Parallel clusters inside
// PBS and Slurm batch jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iptools-project/iptools/cmd/iptools/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that already reported their outcome return an
		// ExitError; print nothing more for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// An interrupted start tears down what it already spawned.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
