// Package scheduler accepts process submissions, dispatches them to
// per-core worker queues under one of two disciplines, and owns the
// lifecycle hooks that release a finished process's frames (spec
// section 4.1, 4.6).
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/csopesy/emulator/internal/cerrors"
	"github.com/csopesy/emulator/internal/config"
	"github.com/csopesy/emulator/internal/memlayout"
	"github.com/csopesy/emulator/internal/pager"
	"github.com/csopesy/emulator/internal/process"
	"github.com/csopesy/emulator/internal/program"
	"github.com/csopesy/emulator/internal/telemetry"
	"github.com/csopesy/emulator/internal/tick"
)

var log = telemetry.New("scheduler")

// Scheduler is the simulator's scheduling aggregate: one instance per
// run, shared by the host shell with every subsystem (spec section 9,
// "the shell holds one reference and passes it to every subsystem").
type Scheduler struct {
	cfg    config.Config
	table  *process.Table
	pager  *pager.Pager
	ticks  *tick.Counters

	cores []*core

	mu      sync.Mutex
	ready   []int       // RR global ready queue
	running map[int]bool // pids currently burning a worker, RR only
	readyCV *sync.Cond

	stopped bool
	wg      sync.WaitGroup
}

// New builds a Scheduler for cfg and starts its worker cores. The
// caller retains ownership of table and pg; the scheduler only ever
// reads/writes through their exported APIs.
func New(cfg config.Config, table *process.Table, pg *pager.Pager, ticks *tick.Counters) *Scheduler {
	numCPU := cfg.NumCPU
	if numCPU < 1 {
		numCPU = 1
	}

	s := &Scheduler{
		cfg:     cfg,
		table:   table,
		pager:   pg,
		ticks:   ticks,
		cores:   make([]*core, numCPU),
		running: make(map[int]bool),
	}
	s.readyCV = sync.NewCond(&s.mu)

	for i := range s.cores {
		s.cores[i] = newCore(i)
	}

	s.wg.Add(len(s.cores))
	for _, c := range s.cores {
		go s.runCore(c)
	}

	if cfg.Scheduler == config.SchedulerRR {
		s.wg.Add(1)
		go s.runRRDispatcher()
	}

	log.Info("scheduler started", "num_cpu", numCPU, "discipline", cfg.Scheduler)
	return s
}

// Submit validates and admits a new process (spec section 4.6). An
// empty progSrc submits a synthetic, program-less session (scenario 1
// in spec section 8: "empty programs").
func (s *Scheduler) Submit(name string, memorySize int, progSrc string) (int, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return 0, cerrors.ErrNotInitialized
	}

	if !validMemorySize(memorySize, s.cfg.MinMemorySize, s.cfg.MaxMemorySize) {
		return 0, fmt.Errorf("%w: %d bytes", cerrors.ErrInvalidMemorySize, memorySize)
	}

	var instructions []program.Instruction
	if progSrc != "" {
		var err error
		instructions, err = program.Parse(progSrc)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", cerrors.ErrInvalidProgram, err)
		}
	}

	pid := s.table.AllocatePID()
	layout := memlayout.New(memorySize, s.cfg.MemPerFrame)
	sess := process.New(pid, name, memorySize, instructions, layout, time.Now())
	s.table.Add(sess)
	s.pager.RegisterProcess(pid, layout)

	s.dispatch(pid)
	log.Info("process submitted", "pid", pid, "name", name, "memory_size", memorySize)
	return pid, nil
}

func validMemorySize(size, min, max int) bool {
	if size < min || size > max {
		return false
	}
	return size&(size-1) == 0 && size > 0
}

// dispatch places pid on its core's ready queue, per the active
// discipline (spec section 4.1).
func (s *Scheduler) dispatch(pid int) {
	if s.cfg.Scheduler == config.SchedulerRR {
		s.mu.Lock()
		s.ready = append(s.ready, pid)
		s.mu.Unlock()
		s.readyCV.Signal()
		return
	}

	coreIdx := (pid - 1) % len(s.cores)
	s.cores[coreIdx].enqueue(pid)
}

// runRRDispatcher implements the RR scheduler loop from spec section
// 4.1: pop the ready queue, push to the next core, signal, sleep one
// quantum, then requeue or release frames depending on completion.
//
// The original's equivalent loop re-enqueues a pid to a core without
// checking whether its previous worker is still running it — since the
// worker always resumes the instruction stream from the top rather than
// a saved program counter, that race would run the same pid on two
// cores at once. The `running` set below closes it: once a pid's burst
// is handed to a core it is not handed to a second core until that
// worker reports completion, even if several quanta elapse first.
func (s *Scheduler) runRRDispatcher() {
	defer s.wg.Done()

	quantum := time.Duration(s.cfg.QuantumCycles) * time.Millisecond
	if quantum <= 0 {
		quantum = 100 * time.Millisecond
	}

	currentCore := 0
	for {
		s.mu.Lock()
		for len(s.ready) == 0 && !s.stopped {
			s.readyCV.Wait()
		}
		if len(s.ready) == 0 && s.stopped {
			s.mu.Unlock()
			return
		}
		pid := s.ready[0]
		s.ready = s.ready[1:]
		alreadyRunning := s.running[pid]
		if !alreadyRunning {
			s.running[pid] = true
		}
		s.mu.Unlock()

		if !alreadyRunning {
			s.cores[currentCore].enqueue(pid)
		}
		time.Sleep(quantum)

		// A pid found in the table made progress this quantum — whether it
		// ran to completion or is merely still executing — so either
		// outcome is an active tick (spec section 4.1, "active ... if it
		// dispatched a pid that made progress"). Only a pid that vanished
		// from the table out from under the dispatcher represents a
		// quantum with no progress to show for it.
		sess, ok := s.table.Get(pid)
		if !ok {
			s.mu.Lock()
			delete(s.running, pid)
			s.mu.Unlock()
			s.ticks.Idle()
			currentCore = (currentCore + 1) % len(s.cores)
			continue
		}

		if sess.Finished() {
			s.pager.FreeProcessPages(pid)
			s.mu.Lock()
			delete(s.running, pid)
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			s.ready = append(s.ready, pid)
			s.mu.Unlock()
		}
		s.ticks.Active()

		currentCore = (currentCore + 1) % len(s.cores)
	}
}

// onWorkerDone clears the running guard for pid once its worker has
// actually finished executing, independent of whether the RR dispatcher
// already observed completion (idempotent, spec section 8 "idempotence
// of free" applies to this bookkeeping too).
func (s *Scheduler) onWorkerDone(pid int) {
	s.mu.Lock()
	delete(s.running, pid)
	s.mu.Unlock()
}

// Stop sets the stop flag, wakes every waiting goroutine, and joins
// all workers and the RR dispatcher (spec section 4.1 "Termination").
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.readyCV.Broadcast()
	for _, c := range s.cores {
		c.stop()
	}
	s.wg.Wait()
	log.Info("scheduler stopped")
}

// Statistics exposes the shared tick counters for the host shell.
func (s *Scheduler) Statistics() (active, idle int64) {
	return s.ticks.Snapshot()
}
