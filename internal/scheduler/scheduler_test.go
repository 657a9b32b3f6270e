package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/csopesy/emulator/internal/config"
	"github.com/csopesy/emulator/internal/pager"
	"github.com/csopesy/emulator/internal/process"
	"github.com/csopesy/emulator/internal/store"
	"github.com/csopesy/emulator/internal/tick"
)

func newTestScheduler(t *testing.T, cfg config.Config) (*Scheduler, *process.Table, *pager.Pager) {
	t.Helper()
	if cfg.MinMemorySize == 0 {
		cfg.MinMemorySize = 64
	}
	if cfg.MaxMemorySize == 0 {
		cfg.MaxMemorySize = 65536
	}
	if cfg.MemPerFrame == 0 {
		cfg.MemPerFrame = 16
	}
	if cfg.NumFrames == 0 {
		cfg.NumFrames = 64
	}
	if cfg.QuantumCycles == 0 {
		cfg.QuantumCycles = 20
	}

	bs, err := store.Open(filepath.Join(t.TempDir(), "backing.txt"), cfg.MemPerFrame, 0)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	pg := pager.New(cfg.NumFrames, cfg.MemPerFrame, bs)
	table := process.NewTable()
	ticks := tick.NewCounters()
	sched := New(cfg, table, pg, ticks)
	t.Cleanup(sched.Stop)
	return sched, table, pg
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// TestFixedCoreDispatchRunsSyntheticProgram mirrors spec section 8 scenario
// 1: a program-less ("empty programs") session submitted under FCFS
// completes using the synthetic prints-per-process path.
func TestFixedCoreDispatchRunsSyntheticProgram(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler = config.SchedulerFCFS
	cfg.NumCPU = 2
	cfg.PrintsPerProcess = 2
	sched, table, _ := newTestScheduler(t, cfg)

	pid, err := sched.Submit("proc1", 64, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ok := waitUntil(t, 2*time.Second, func() bool {
		sess, found := table.Get(pid)
		return found && sess.Finished()
	})
	if !ok {
		t.Fatal("session did not finish within timeout")
	}
}

// TestRoundRobinCompletesWithinQuanta mirrors spec section 8 scenario 2:
// DECLARE a 1; ADD a a 1; PRINT(a) finishes within a small number of
// quanta and the resulting value reflects one increment (a=2).
func TestRoundRobinCompletesWithinQuanta(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler = config.SchedulerRR
	cfg.NumCPU = 1
	cfg.QuantumCycles = 30
	sched, table, _ := newTestScheduler(t, cfg)

	pid, err := sched.Submit("proc1", 64, `DECLARE a 1; ADD a a 1; PRINT(a)`)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ok := waitUntil(t, 2*time.Second, func() bool {
		sess, found := table.Get(pid)
		return found && sess.Finished()
	})
	if !ok {
		t.Fatal("session did not finish within timeout")
	}

	sess, _ := table.Get(pid)
	v, found := sess.Variable("a")
	if !found || v != 2 {
		t.Errorf("a = (%d, %v), want (2, true)", v, found)
	}

	active, _ := sched.Statistics()
	if active < 1 {
		t.Errorf("active ticks = %d, want >= 1 (the dispatcher made progress at least once)", active)
	}
}

// TestCrashIsolatedFromOtherSessions mirrors spec section 8 scenario 6: one
// session crashes partway through its program while another, independent
// session completes normally, and the crashed session's frames are still
// released back to the pool.
func TestCrashIsolatedFromOtherSessions(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler = config.SchedulerFCFS
	cfg.NumCPU = 2
	sched, table, pg := newTestScheduler(t, cfg)

	crashPID, err := sched.Submit("crasher", 64, `DECLARE a 1; READ v 0x1000`)
	if err != nil {
		t.Fatalf("Submit(crasher): %v", err)
	}
	okPID, err := sched.Submit("healthy", 64, `DECLARE a 1; ADD a a 1`)
	if err != nil {
		t.Fatalf("Submit(healthy): %v", err)
	}

	bothDone := waitUntil(t, 2*time.Second, func() bool {
		crashSess, ok1 := table.Get(crashPID)
		okSess, ok2 := table.Get(okPID)
		return ok1 && ok2 && crashSess.Finished() && okSess.Finished()
	})
	if !bothDone {
		t.Fatal("sessions did not both finish within timeout")
	}

	crashSess, _ := table.Get(crashPID)
	info := crashSess.CrashInfo()
	if info == nil {
		t.Fatal("expected crash info on crasher")
	}
	if info.InvalidAddress != 0x1000 {
		t.Errorf("crash address = 0x%x, want 0x1000", info.InvalidAddress)
	}

	okSess, _ := table.Get(okPID)
	if v, found := okSess.Variable("a"); !found || v != 2 {
		t.Errorf("healthy session a = (%d, %v), want (2, true)", v, found)
	}

	waitUntil(t, time.Second, func() bool {
		_, _, framesUsed := pg.Statistics()
		return framesUsed == 0
	})
	if _, _, framesUsed := pg.Statistics(); framesUsed != 0 {
		t.Errorf("framesUsed after both sessions finish = %d, want 0", framesUsed)
	}
}
