// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testTree(called *string, received *[]string, ppn *int) *Command {
	return &Command{
		Name:   "iptools",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{
				Name:    "start",
				Summary: "Start a cluster",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
					flagSet.IntVar(ppn, "ppn", 12, "engines per node")
					flagSet.Bool("debug", false, "debug logging")
					return flagSet
				},
				Run: func(_ context.Context, args []string) error {
					*called = "start"
					*received = args
					return nil
				},
			},
			{
				Name:    "stop",
				Summary: "Stop the cluster",
				Run: func(_ context.Context, args []string) error {
					*called = "stop"
					return nil
				},
			},
		},
	}
}

func TestExecuteDispatchesWithFlags(t *testing.T) {
	var called string
	var received []string
	var ppn int
	root := testTree(&called, &received, &ppn)

	if err := root.Execute(context.Background(), []string{"start", "--ppn", "4", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "start" || ppn != 4 {
		t.Errorf("called %q with ppn %d, want start with 4", called, ppn)
	}
	if len(received) != 1 || received[0] != "extra" {
		t.Errorf("args = %v, want [extra]", received)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	var called string
	var received []string
	var ppn int
	root := testTree(&called, &received, &ppn)

	err := root.Execute(context.Background(), []string{"strat"})
	if err == nil {
		t.Fatal("unknown command succeeded")
	}
	if !strings.Contains(err.Error(), `did you mean "start"`) {
		t.Errorf("error = %q, want a suggestion for start", err)
	}
	if called != "" {
		t.Errorf("dispatched to %q", called)
	}

	err = root.Execute(context.Background(), []string{"reticulate"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	var called string
	var received []string
	var ppn int
	root := testTree(&called, &received, &ppn)

	err := root.Execute(context.Background(), []string{"start", "--ppm", "3"})
	if err == nil {
		t.Fatal("unknown flag succeeded")
	}
	if !strings.Contains(err.Error(), "did you mean --ppn?") {
		t.Errorf("error = %q, want suggestion --ppn", err)
	}
}

func TestExecuteRequiresCommand(t *testing.T) {
	var called string
	var received []string
	var ppn int
	root := testTree(&called, &received, &ppn)

	if err := root.Execute(context.Background(), nil); err == nil {
		t.Error("empty command line succeeded")
	}
	if help := root.Output.(*bytes.Buffer).String(); !strings.Contains(help, "start") || !strings.Contains(help, "Stop the cluster") {
		t.Errorf("help output = %q", help)
	}
}

func TestExecuteHelp(t *testing.T) {
	var called string
	var received []string
	var ppn int
	root := testTree(&called, &received, &ppn)

	if err := root.Execute(context.Background(), []string{"start", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	help := root.Output.(*bytes.Buffer).String()
	if !strings.Contains(help, "iptools start [flags]") || !strings.Contains(help, "--ppn") {
		t.Errorf("help output = %q", help)
	}
	if called != "" {
		t.Errorf("help ran %q", called)
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	coder, ok := err.(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buffer bytes.Buffer
	newLogger(&buffer, false, false).Debug("hidden")
	if buffer.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buffer.String())
	}

	newLogger(&buffer, false, true).Debug("shown", "pid", 42)
	if !strings.Contains(buffer.String(), `"msg":"shown"`) || !strings.Contains(buffer.String(), `"pid":42`) {
		t.Errorf("JSON output = %q", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, true, false).Info("started")
	if !strings.Contains(buffer.String(), "msg=started") {
		t.Errorf("text output = %q", buffer.String())
	}
}
