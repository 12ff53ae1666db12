// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package readiness waits for a freshly spawned cluster to come up.
//
// iptools does not track membership itself. It asks the framework's
// own client how many engines have registered, through a [Probe], and
// polls at a fixed interval until the answer matches or a wall-clock
// ceiling passes. Probe errors (controller not listening yet,
// connection file not written yet) are expected early on and are
// retried rather than reported.
package readiness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/iptools-project/iptools/lib/clock"
	"github.com/iptools-project/iptools/lib/config"
)

// ErrTimeout is returned when the readiness ceiling passes first.
var ErrTimeout = errors.New("readiness ceiling elapsed")

// Probe reports how many engines are registered with the controller.
// An error means the controller could not be queried. Engines must
// return once ctx is done.
type Probe interface {
	Engines(ctx context.Context) (int, error)
}

// CommandProbe runs an external program that prints the registered
// engine count.
type CommandProbe struct {
	Argv []string
}

// NewCommandProbe builds a CommandProbe from an argv template,
// substituting ${PROFILE} and ${PROFILE_DIR}.
func NewCommandProbe(template []string, profileName, profileDir string) *CommandProbe {
	vars := map[string]string{
		"PROFILE":     profileName,
		"PROFILE_DIR": profileDir,
	}
	argv := make([]string, len(template))
	for i, argument := range template {
		argv[i] = config.ExpandVars(argument, vars)
	}
	return &CommandProbe{Argv: argv}
}

// Engines runs the probe command and parses the last non-empty line of
// its stdout as an integer.
func (p *CommandProbe) Engines(ctx context.Context) (int, error) {
	if len(p.Argv) == 0 {
		return 0, errors.New("empty probe command")
	}
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("probe %s: %w: %s", p.Argv[0], err, lastLine(stderr.String()))
	}
	line := lastLine(stdout.String())
	count, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("probe %s printed %q, want an engine count", p.Argv[0], line)
	}
	return count, nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Poller polls a Probe at a fixed interval.
type Poller struct {
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

// WaitController polls until probe answers without error. Returns an
// error wrapping ErrTimeout once ceiling has passed, or ctx.Err() if
// ctx is cancelled.
func (p *Poller) WaitController(ctx context.Context, probe Probe, ceiling time.Duration) error {
	_, err := p.poll(ctx, probe, ceiling, func(int) bool { return true })
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("controller not answering after %s: %w", ceiling, err)
	}
	return err
}

// WaitEngines polls until exactly expected engines are registered.
// Returns the last observed count alongside any error; the error wraps
// ErrTimeout once ceiling has passed.
func (p *Poller) WaitEngines(ctx context.Context, probe Probe, expected int, ceiling time.Duration) (int, error) {
	registered, err := p.poll(ctx, probe, ceiling, func(count int) bool {
		p.logger().Debug("waiting for engines", "registered", count, "expected", expected)
		return count == expected
	})
	if errors.Is(err, ErrTimeout) {
		return registered, fmt.Errorf("%d of %d engines registered after %s: %w",
			registered, expected, ceiling, err)
	}
	return registered, err
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p *Poller) poll(ctx context.Context, probe Probe, ceiling time.Duration, ready func(int) bool) (int, error) {
	deadline := p.Clock.Now().Add(ceiling)
	last := 0
	for {
		count, err := p.probeOnce(ctx, probe, deadline.Sub(p.Clock.Now()))
		if errors.Is(err, errProbeExpired) {
			return last, ErrTimeout
		}
		if err == nil {
			last = count
			if ready(count) {
				return count, nil
			}
		} else {
			p.logger().Debug("probe failed", "error", err)
		}

		if err := ctx.Err(); err != nil {
			return last, err
		}
		if !p.Clock.Now().Before(deadline) {
			return last, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-p.Clock.After(p.Interval):
		}
	}
}

var errProbeExpired = errors.New("probe exceeded the poll ceiling")

// probeOnce runs probe with at most budget to answer, never less than
// one poll interval. A probe still running when the budget ends
// reports errProbeExpired unless ctx itself is done.
func (p *Poller) probeOnce(ctx context.Context, probe Probe, budget time.Duration) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, max(budget, p.Interval))
	defer cancel()

	count, err := probe.Engines(probeCtx)
	if err != nil && ctx.Err() == nil && errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		p.logger().Debug("probe abandoned at the poll ceiling", "error", err)
		return 0, errProbeExpired
	}
	return count, err
}
