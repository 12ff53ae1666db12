// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/iptools-project/iptools/lib/clock"
	"github.com/iptools-project/iptools/lib/config"
	"github.com/iptools-project/iptools/lib/launch"
	"github.com/iptools-project/iptools/lib/profile"
	"github.com/iptools-project/iptools/lib/readiness"
	"github.com/iptools-project/iptools/lib/teardown"
)

type fakeStarter struct {
	mu     sync.Mutex
	specs  []launch.Spec
	failAt int
}

func (f *fakeStarter) Start(spec launch.Spec) (*launch.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.specs)+1 == f.failAt {
		return nil, errors.New("ssh: connect to host refused")
	}
	f.specs = append(f.specs, spec)
	pid := 1000 + len(f.specs)
	return &launch.Process{
		Role:      spec.Role,
		Host:      spec.Host,
		PID:       pid,
		StartTime: uint64(pid) * 10,
	}, nil
}

type fakeRunner struct {
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil
}

type probeFunc func(ctx context.Context) (int, error)

func (p probeFunc) Engines(ctx context.Context) (int, error) { return p(ctx) }

type fakeSignaller struct {
	mu        sync.Mutex
	signalled map[int]int
}

func (f *fakeSignaller) SignalGroup(pgid int, _ syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signalled == nil {
		f.signalled = make(map[int]int)
	}
	f.signalled[pgid]++
	if f.signalled[pgid] > 1 {
		return unix.ESRCH
	}
	return nil
}

type harness struct {
	options    Options
	starter    *fakeStarter
	runner     *fakeRunner
	signaller  *fakeSignaller
	env        map[string]string
	registered int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Cluster.IPythonDir = filepath.Join(t.TempDir(), ".ipython")
	cfg.Timing.Settle = "0s"
	cfg.Timing.Stagger = "0s"
	cfg.Timing.ControllerTimeout = "0s"
	cfg.Timing.EngineTimeout = "0s"
	cfg.Timing.RemoveAttempts = 1

	return &harness{
		options: Options{
			PPN:      2,
			Profile:  "test",
			Nodes:    []string{"compute-1.cluster", "compute-2", "login"},
			WorkDir:  t.TempDir(),
			Hostname: "compute-1",
			Config:   cfg,
		},
		starter:    &fakeStarter{},
		runner:     &fakeRunner{},
		signaller:  &fakeSignaller{},
		env:        map[string]string{},
		registered: -1,
	}
}

func (h *harness) dependencies() Dependencies {
	return Dependencies{
		Starter: h.starter,
		Runner:  h.runner,
		NewProbe: func(string, string) readiness.Probe {
			return probeFunc(func(context.Context) (int, error) {
				if h.registered >= 0 {
					return h.registered, nil
				}
				return h.engineCount(), nil
			})
		},
		ResolveBinary: func(name string) (string, error) { return "/opt/ipython/bin/" + name, nil },
		Terminator: &teardown.Terminator{
			Signaller: h.signaller,
			StartTime: func(pid int) (uint64, error) { return uint64(pid) * 10, nil },
		},
		Clock: clock.Fake(time.Unix(1_700_000_000, 0)),
		LookupEnv: func(key string) (string, bool) {
			value, ok := h.env[key]
			return value, ok
		},
	}
}

func (h *harness) engineCount() int {
	h.starter.mu.Lock()
	defer h.starter.mu.Unlock()
	count := 0
	for _, spec := range h.starter.specs {
		if spec.Role == launch.RoleEngine {
			count++
		}
	}
	return count
}

func TestStartSpawnsEnginesPerNode(t *testing.T) {
	h := newHarness(t)
	c, err := Start(context.Background(), h.options, h.dependencies())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	specs := h.starter.specs
	if len(specs) != 1+3*2 {
		t.Fatalf("started %d processes, want 7", len(specs))
	}
	if specs[0].Role != launch.RoleController || specs[0].Binary != "ipcontroller" {
		t.Errorf("first process = %+v, want the controller", specs[0])
	}

	remote := map[string]int{}
	for _, spec := range specs[1:] {
		if spec.Role != launch.RoleEngine {
			t.Fatalf("unexpected role %s", spec.Role)
		}
		if spec.Binary != "/opt/ipython/bin/ipengine" {
			t.Errorf("engine binary = %q, want resolved path", spec.Binary)
		}
		if spec.Remote {
			remote[spec.Host]++
		}
		if spec.LogPath != "" {
			t.Errorf("engine log path = %q without debug", spec.LogPath)
		}
	}
	if remote["compute-1.cluster"] != 0 || remote["compute-2"] != 2 || remote["login"] != 2 {
		t.Errorf("remote engines per host = %v", remote)
	}

	d := c.Descriptor()
	if d.Controller != 1001 {
		t.Errorf("controller = %d, want 1001", d.Controller)
	}
	if len(d.Engines) != 6 || len(d.Hosts) != 6 {
		t.Fatalf("descriptor engines = %v hosts = %v", d.Engines, d.Hosts)
	}
	if ticks, ok := d.StartTime(d.Engines[0]); !ok || ticks != uint64(d.Engines[0])*10 {
		t.Errorf("start time of %d = %d, %v", d.Engines[0], ticks, ok)
	}

	written, err := profile.ReadDescriptor(filepath.Join(h.options.WorkDir, "profile.json"))
	if err != nil {
		t.Fatalf("ReadDescriptor: %v", err)
	}
	if written.Profile != "test" || len(written.Engines) != 6 {
		t.Errorf("written descriptor = %+v", written)
	}
	if !strings.HasSuffix(written.ProfileDirectory, "profile_test") {
		t.Errorf("profile directory = %q", written.ProfileDirectory)
	}

	if len(h.runner.calls) != 1 || h.runner.calls[0][1] != "profile" {
		t.Errorf("runner calls = %v, want one profile create", h.runner.calls)
	}
}

func TestStartPPNEnvironmentOverride(t *testing.T) {
	h := newHarness(t)
	h.options.PPN = 5
	h.env[PPNVariable] = "1"

	if _, err := Start(context.Background(), h.options, h.dependencies()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.engineCount(); got != 3 {
		t.Errorf("engines = %d, want 3 (PPN=1 on 3 nodes)", got)
	}
}

func TestStartRejectsInvalidPPN(t *testing.T) {
	for _, value := range []string{"zero", "0", "-3"} {
		h := newHarness(t)
		h.env[PPNVariable] = value
		if _, err := Start(context.Background(), h.options, h.dependencies()); err == nil {
			t.Errorf("PPN=%q: Start succeeded", value)
		}
		if len(h.starter.specs) != 0 {
			t.Errorf("PPN=%q: processes started", value)
		}
	}
}

func TestStartUsesConfiguredPPN(t *testing.T) {
	h := newHarness(t)
	h.options.PPN = 0
	h.options.Config.Cluster.PPN = 4
	h.options.Nodes = []string{"compute-2"}

	if _, err := Start(context.Background(), h.options, h.dependencies()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.engineCount(); got != 4 {
		t.Errorf("engines = %d, want 4", got)
	}
}

func TestStartReadsNodeFileFromEnvironment(t *testing.T) {
	h := newHarness(t)
	h.options.Nodes = nil
	nodefile := filepath.Join(t.TempDir(), "nodes")
	if err := os.WriteFile(nodefile, []byte("compute-1\ncompute-1\ncompute-9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	h.env["PBS_NODEFILE"] = nodefile

	if _, err := Start(context.Background(), h.options, h.dependencies()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.engineCount(); got != 4 {
		t.Errorf("engines = %d, want 4 (2 nodes x 2)", got)
	}
}

func TestStartDebugKeepsProcessOutput(t *testing.T) {
	h := newHarness(t)
	h.options.Debug = true

	c, err := Start(context.Background(), h.options, h.dependencies())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	logDir := filepath.Join(c.Descriptor().ProfileDirectory, "log")
	if got := h.starter.specs[0].LogPath; got != filepath.Join(logDir, "controller.log") {
		t.Errorf("controller log = %q", got)
	}
	if got := h.starter.specs[1].LogPath; got != filepath.Join(logDir, "engine-0.log") {
		t.Errorf("first engine log = %q", got)
	}
}

func TestStartTimeoutKeepsCluster(t *testing.T) {
	h := newHarness(t)
	h.registered = 1

	c, err := Start(context.Background(), h.options, h.dependencies())
	if !errors.Is(err, readiness.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if c == nil {
		t.Fatal("Start returned no cluster on timeout")
	}
	if _, err := os.Stat(c.DescriptorPath()); err != nil {
		t.Errorf("descriptor missing after timeout: %v", err)
	}
	if len(h.signaller.signalled) != 0 {
		t.Errorf("timeout signalled processes: %v", h.signaller.signalled)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c, err := Start(context.Background(), h.options, h.dependencies())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	directory := c.Descriptor().ProfileDirectory

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	for _, pid := range append(c.Descriptor().Engines, c.Descriptor().Controller) {
		if h.signaller.signalled[pid] != 1 {
			t.Errorf("pid %d signalled %d times, want 1", pid, h.signaller.signalled[pid])
		}
	}
	if _, err := os.Stat(directory); !os.IsNotExist(err) {
		t.Errorf("profile directory still present: %v", err)
	}
}

func TestStopDescriptor(t *testing.T) {
	h := newHarness(t)
	c, err := Start(context.Background(), h.options, h.dependencies())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deps := h.dependencies()
	for range 2 {
		if err := StopDescriptor(context.Background(), c.DescriptorPath(), h.options.Config, deps); err != nil {
			t.Fatalf("StopDescriptor: %v", err)
		}
	}
	if len(h.signaller.signalled) != 7 {
		t.Errorf("signalled %d groups, want 7", len(h.signaller.signalled))
	}
	if _, err := os.Stat(c.Descriptor().ProfileDirectory); !os.IsNotExist(err) {
		t.Errorf("profile directory still present: %v", err)
	}
}

func TestStopDescriptorMissingFile(t *testing.T) {
	h := newHarness(t)
	err := StopDescriptor(context.Background(), filepath.Join(t.TempDir(), "profile.json"), nil, h.dependencies())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestStartWithoutConfigExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	h := newHarness(t)
	h.options.Config = nil
	h.starter.failAt = 1

	if _, err := Start(context.Background(), h.options, h.dependencies()); err == nil {
		t.Fatal("Start succeeded with a failing controller")
	}
	if len(h.runner.calls) != 1 {
		t.Fatalf("runner calls = %v, want one profile create", h.runner.calls)
	}
	want := "--ipython-dir=" + filepath.Join(home, ".ipython")
	if got := h.runner.calls[0][len(h.runner.calls[0])-1]; got != want {
		t.Errorf("profile create argument = %q, want %q", got, want)
	}
	if _, err := os.Stat("${HOME}"); !os.IsNotExist(err) {
		t.Errorf("literal ${HOME} directory created: %v", err)
	}
}

func TestStartFailureTearsDown(t *testing.T) {
	h := newHarness(t)
	h.starter.failAt = 4

	c, err := Start(context.Background(), h.options, h.dependencies())
	if err == nil || c != nil {
		t.Fatalf("Start = %v, %v; want failure", c, err)
	}
	if len(h.signaller.signalled) != 3 {
		t.Errorf("signalled %v, want the 3 started processes", h.signaller.signalled)
	}
	if _, err := os.Stat(filepath.Join(h.options.Config.Cluster.IPythonDir, "profile_test")); !os.IsNotExist(err) {
		t.Errorf("profile directory left behind: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.options.WorkDir, "profile.json")); !os.IsNotExist(err) {
		t.Errorf("descriptor written for failed start: %v", err)
	}
}

func TestStartCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := Start(ctx, h.options, h.dependencies())
	if !errors.Is(err, context.Canceled) || c != nil {
		t.Fatalf("Start = %v, %v; want context.Canceled", c, err)
	}
}
