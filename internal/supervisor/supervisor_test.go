package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/process"
)

// =============================================================================
// Fake process table
// =============================================================================

// fakeTable implements process.Table without touching real processes.
type fakeTable struct {
	mu      sync.Mutex
	procs   []process.ProcessInfo
	listErr error
	killErr map[int32]error
	killed  []int32
	lists   int
	events  *eventLog
}

func (f *fakeTable) Processes(ctx context.Context) ([]process.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.events != nil {
		f.events.add("sweep")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]process.ProcessInfo(nil), f.procs...), nil
}

func (f *fakeTable) Kill(ctx context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.killErr[pid]; err != nil {
		return err
	}
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeTable) Killed() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.killed...)
}

func (f *fakeTable) Lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// eventLog records callback order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// =============================================================================
// Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSupervisor(t *testing.T, table *fakeTable, cb Callbacks) *Supervisor {
	t.Helper()
	s := New(Config{
		StopTimeout: 2 * time.Second,
		Table:       table,
		Logger:      newTestLogger(),
		Callbacks:   cb,
	})
	t.Cleanup(func() { s.StopTracked(context.Background()) })
	return s
}

func sleepCommand(seconds int) player.Command {
	return player.Command{
		Program: "sleep",
		Args:    fmt.Sprint(seconds),
		Mode:    player.ShellLookup,
	}
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_ConfigurationDefaults(t *testing.T) {
	s := New(Config{})

	if s.stopTimeout != DefaultStopTimeout {
		t.Errorf("stopTimeout = %v, want %v", s.stopTimeout, DefaultStopTimeout)
	}
	if len(s.knownNames) != len(DefaultKnownNames) {
		t.Errorf("knownNames = %v", s.knownNames)
	}
	if _, ok := s.table.(process.SystemTable); !ok {
		t.Errorf("table = %T, want process.SystemTable", s.table)
	}
	if s.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if s.TrackedAlive() || s.TrackedPID() != 0 {
		t.Error("nothing should be tracked initially")
	}
}

// =============================================================================
// State
// =============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateExited, "exited"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestState_Predicates(t *testing.T) {
	tests := []struct {
		state        State
		active       bool
		needsRestart bool
	}{
		{StateIdle, false, false},
		{StateStarting, true, false},
		{StateRunning, true, false},
		{StateStopping, true, false},
		{StateExited, false, true},
		{StateFailed, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
			if got := tt.state.NeedsRestart(); got != tt.needsRestart {
				t.Errorf("NeedsRestart() = %v, want %v", got, tt.needsRestart)
			}
		})
	}
}

// =============================================================================
// StartTracked / StopTracked
// =============================================================================

func TestStartTracked_StartsProcess(t *testing.T) {
	var started []int
	s := newTestSupervisor(t, &fakeTable{}, Callbacks{
		OnStart: func(program string, pid int) { started = append(started, pid) },
	})

	cmd := sleepCommand(30)
	if err := s.StartTracked(context.Background(), cmd); err != nil {
		t.Fatalf("StartTracked() error = %v", err)
	}

	if !s.TrackedAlive() {
		t.Error("TrackedAlive() should be true")
	}
	if pid := s.TrackedPID(); pid <= 0 || len(started) != 1 || started[0] != pid {
		t.Errorf("TrackedPID() = %d, OnStart pids = %v", pid, started)
	}
	if s.State() != StateRunning {
		t.Errorf("State() = %v, want running", s.State())
	}
	if got, ok := s.TrackedCommand(); !ok || got != cmd {
		t.Errorf("TrackedCommand() = %+v, %v", got, ok)
	}
}

func TestStartTracked_StopsPreviousFirst(t *testing.T) {
	events := &eventLog{}
	table := &fakeTable{events: events}
	s := newTestSupervisor(t, table, Callbacks{
		OnStart: func(program string, pid int) { events.add(fmt.Sprintf("start:%d", pid)) },
		OnStop:  func(program string, pid int, exitCode int, uptime time.Duration) { events.add(fmt.Sprintf("stop:%d", pid)) },
	})

	if err := s.StartTracked(context.Background(), sleepCommand(30)); err != nil {
		t.Fatalf("first StartTracked() error = %v", err)
	}
	first := s.TrackedPID()

	if err := s.StartTracked(context.Background(), sleepCommand(30)); err != nil {
		t.Fatalf("second StartTracked() error = %v", err)
	}
	second := s.TrackedPID()

	if first == second {
		t.Fatalf("expected a new process, pid stayed %d", first)
	}

	want := []string{
		"sweep",
		fmt.Sprintf("start:%d", first),
		fmt.Sprintf("stop:%d", first),
		"sweep",
		fmt.Sprintf("start:%d", second),
	}
	got := events.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestStartTracked_MissingExecutable(t *testing.T) {
	var failed []error
	table := &fakeTable{}
	s := New(Config{
		PlayerDir: t.TempDir(),
		Table:     table,
		Logger:    newTestLogger(),
		Callbacks: Callbacks{
			OnStart:       func(string, int) { t.Error("OnStart should not be called") },
			OnStartFailed: func(program string, err error) { failed = append(failed, err) },
		},
	})

	cmd := player.Command{Program: "ffplay", Args: "-fs video/OffAir.mp4", Mode: player.ExplicitPath}
	err := s.StartTracked(context.Background(), cmd)
	if !errors.Is(err, process.ErrExecutableNotFound) {
		t.Fatalf("StartTracked() error = %v, want ErrExecutableNotFound", err)
	}

	if s.TrackedAlive() || s.TrackedPID() != 0 {
		t.Error("no process should be tracked")
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	if len(failed) != 1 {
		t.Errorf("OnStartFailed calls = %d, want 1", len(failed))
	}
	if table.Lists() != 1 {
		t.Errorf("sweep ran %d times, want 1 (before start)", table.Lists())
	}
}

func TestStartTracked_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffplay")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := New(Config{
		PlayerDir:   dir,
		StopTimeout: 2 * time.Second,
		Table:       &fakeTable{},
		Logger:      newTestLogger(),
	})
	defer s.StopTracked(context.Background())

	cmd := player.Command{Program: "FFPLAY", Args: "-fs", Mode: player.ExplicitPath}
	if err := s.StartTracked(context.Background(), cmd); err != nil {
		t.Fatalf("StartTracked() error = %v", err)
	}
	if !s.TrackedAlive() {
		t.Error("player should be running")
	}
}

func TestStopTracked_Terminates(t *testing.T) {
	var exitCodes []int
	s := newTestSupervisor(t, &fakeTable{}, Callbacks{
		OnStop: func(program string, pid int, exitCode int, uptime time.Duration) {
			exitCodes = append(exitCodes, exitCode)
		},
	})

	if err := s.StartTracked(context.Background(), sleepCommand(30)); err != nil {
		t.Fatalf("StartTracked() error = %v", err)
	}

	start := time.Now()
	s.StopTracked(context.Background())
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("StopTracked took %v", elapsed)
	}

	if s.TrackedAlive() || s.TrackedPID() != 0 {
		t.Error("nothing should be tracked after StopTracked")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if len(exitCodes) != 1 || exitCodes[0] == -1 {
		t.Errorf("OnStop exit codes = %v, want one reaped exit code", exitCodes)
	}
}

func TestStopTracked_NothingTrackedStillSweeps(t *testing.T) {
	table := &fakeTable{procs: []process.ProcessInfo{{PID: 4242, Name: "omxplayer.bin"}}}
	s := New(Config{Table: table, Logger: newTestLogger()})

	s.StopTracked(context.Background())

	if table.Lists() != 1 {
		t.Errorf("sweep ran %d times, want 1", table.Lists())
	}
	if got := table.Killed(); len(got) != 1 || got[0] != 4242 {
		t.Errorf("killed = %v, want [4242]", got)
	}
}

func TestTrackedAlive_DetectsExit(t *testing.T) {
	s := newTestSupervisor(t, &fakeTable{}, Callbacks{})

	cmd := player.Command{Program: "true", Mode: player.ShellLookup}
	if err := s.StartTracked(context.Background(), cmd); err != nil {
		t.Fatalf("StartTracked() error = %v", err)
	}

	waitFor(t, func() bool { return !s.TrackedAlive() }, 5*time.Second, "tracked process exit")

	if s.State() != StateExited {
		t.Errorf("State() = %v, want exited", s.State())
	}
	if s.TrackedPID() == 0 {
		t.Error("exited process should stay tracked until stopped")
	}

	// Stopping a dead player is not an error.
	s.StopTracked(context.Background())
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

// =============================================================================
// SweepRogue
// =============================================================================

func TestSweepRogue_KillsTrackedAndOrphan(t *testing.T) {
	self := int32(os.Getpid())
	table := &fakeTable{procs: []process.ProcessInfo{
		{PID: 1001, Name: "omxplayer.bin"}, // tracked by this run
		{PID: 1002, Name: "omxplayer.bin"}, // orphan of a crashed run
		{PID: 1003, Name: "bash"},
		{PID: 1004, Name: "ffprobe"},
		{PID: self, Name: "ffmpeg-viewer"},
	}}

	var swept []int32
	s := New(Config{
		Table:  table,
		Logger: newTestLogger(),
		Callbacks: Callbacks{
			OnSweep: func(name string, pid int32, err error) { swept = append(swept, pid) },
		},
	})

	if n := s.SweepRogue(context.Background()); n != 2 {
		t.Errorf("SweepRogue() = %d, want 2", n)
	}

	got := table.Killed()
	if len(got) != 2 || got[0] != 1001 || got[1] != 1002 {
		t.Errorf("killed = %v, want [1001 1002]", got)
	}
	if len(swept) != 2 {
		t.Errorf("OnSweep calls = %v", swept)
	}
}

func TestSweepRogue_MatchesAllKnownNames(t *testing.T) {
	table := &fakeTable{procs: []process.ProcessInfo{
		{PID: 1, Name: "FFmpeg"},
		{PID: 2, Name: "ffplay"},
		{PID: 3, Name: "omxplayer"},
	}}
	s := New(Config{Table: table, Logger: newTestLogger()})

	if n := s.SweepRogue(context.Background()); n != 3 {
		t.Errorf("SweepRogue() = %d, want 3", n)
	}
}

func TestSweepRogue_CustomNames(t *testing.T) {
	table := &fakeTable{procs: []process.ProcessInfo{
		{PID: 1, Name: "vlc"},
		{PID: 2, Name: "ffplay"},
	}}
	s := New(Config{Table: table, KnownNames: []string{"vlc"}, Logger: newTestLogger()})

	s.SweepRogue(context.Background())
	if got := table.Killed(); len(got) != 1 || got[0] != 1 {
		t.Errorf("killed = %v, want [1]", got)
	}
}

func TestSweepRogue_ListError(t *testing.T) {
	table := &fakeTable{listErr: errors.New("permission denied")}
	s := New(Config{Table: table, Logger: newTestLogger()})

	if n := s.SweepRogue(context.Background()); n != 0 {
		t.Errorf("SweepRogue() = %d, want 0", n)
	}
}

func TestSweepRogue_KillErrorContinues(t *testing.T) {
	table := &fakeTable{
		procs: []process.ProcessInfo{
			{PID: 10, Name: "ffplay"},
			{PID: 11, Name: "ffplay"},
		},
		killErr: map[int32]error{10: errors.New("operation not permitted")},
	}

	var errs []error
	s := New(Config{
		Table:  table,
		Logger: newTestLogger(),
		Callbacks: Callbacks{
			OnSweep: func(name string, pid int32, err error) { errs = append(errs, err) },
		},
	})

	if n := s.SweepRogue(context.Background()); n != 1 {
		t.Errorf("SweepRogue() = %d, want 1", n)
	}
	if len(errs) != 2 || errs[0] == nil || errs[1] != nil {
		t.Errorf("OnSweep errors = %v", errs)
	}
}

// =============================================================================
// Spawn / Terminate
// =============================================================================

func TestSpawn_RunsInWorkDir(t *testing.T) {
	work := t.TempDir()
	s := New(Config{Table: &fakeTable{}, Logger: newTestLogger()})

	cmd := player.Command{Program: "touch", Args: "spawned", Mode: player.ShellLookup}
	h, err := s.Spawn(cmd, work)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(work, "spawned")); err != nil {
		t.Errorf("file not created in work dir: %v", err)
	}
	if s.TrackedPID() != 0 {
		t.Error("Spawn must not track the process")
	}
}

func TestSpawn_CapturesOutput(t *testing.T) {
	s := New(Config{Table: &fakeTable{}, Logger: newTestLogger()})

	cmd := player.Command{Program: "echo", Args: "Connection refused >&2", Mode: player.ShellLookup}
	h, err := s.Spawn(cmd, "")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	h.Wait()

	lines := h.RecentOutput(5)
	if len(lines) != 1 || lines[0] != "Connection refused" {
		t.Errorf("RecentOutput() = %q", lines)
	}
}

func TestTerminate(t *testing.T) {
	s := New(Config{StopTimeout: 200 * time.Millisecond, Table: &fakeTable{}, Logger: newTestLogger()})

	if err := s.Terminate(nil); err != nil {
		t.Errorf("Terminate(nil) = %v", err)
	}

	// Ignores SIGTERM, so the kill path runs; that is not an error.
	cmd := player.Command{Program: "trap", Args: `"" TERM; sleep 30`, Mode: player.ShellLookup}
	h, err := s.Spawn(cmd, "")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if err := s.Terminate(h); err != nil {
		t.Errorf("Terminate() = %v, want nil after forced kill", err)
	}
	if h.Alive() {
		t.Error("process should be dead")
	}
}

func TestSupervisor_ConcurrentStatusReads(t *testing.T) {
	s := newTestSupervisor(t, &fakeTable{}, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = s.TrackedAlive()
				_ = s.TrackedPID()
				_ = s.State()
			}
		}()
	}

	for i := 0; i < 3; i++ {
		if err := s.StartTracked(context.Background(), sleepCommand(30)); err != nil {
			t.Fatalf("StartTracked() error = %v", err)
		}
	}
	s.StopTracked(context.Background())

	cancel()
	wg.Wait()
}
