package scheduler

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/csopesy/emulator/internal/cerrors"
	"github.com/csopesy/emulator/internal/config"
	"github.com/csopesy/emulator/internal/interp"
	"github.com/csopesy/emulator/internal/process"
)

// core is one worker core's ready queue: a plain slice gated by a mutex
// and condition variable (spec section 5, "per-core mutex, signaled by
// core CV").
type core struct {
	id int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []int
	stopped bool
}

func newCore(id int) *core {
	c := &core{id: id}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *core) enqueue(pid int) {
	c.mu.Lock()
	c.queue = append(c.queue, pid)
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *core) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// dequeue blocks until the queue is non-empty or the core is stopped.
// waited reports whether the core actually sat idle (its queue was empty)
// before this pid arrived — spec section 4.1, "workers ... increment
// their own idle ticks when their queue is empty". Returns ok=false only
// once stopped with an empty queue (spec section 4.1, "Termination":
// workers drain their queues before exiting).
func (c *core) dequeue() (pid int, waited bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.stopped {
		waited = true
		c.cond.Wait()
	}
	if len(c.queue) == 0 {
		return 0, waited, false
	}
	pid = c.queue[0]
	c.queue = c.queue[1:]
	return pid, waited, true
}

// runCore is the worker loop for one core (spec section 4.2).
func (s *Scheduler) runCore(c *core) {
	defer s.wg.Done()

	for {
		pid, waited, ok := c.dequeue()
		if !ok {
			return
		}

		sess, found := s.table.Get(pid)
		if !found {
			continue
		}

		// The core's own idle time while it had nothing queued is charged
		// against the session that ends up benefiting from it, since a
		// session is the only per-entity tick sink the data model carries
		// (spec section 3, "per-Session active/idle ticks are likewise
		// tracked").
		if waited {
			sess.AddIdleTick()
		}

		s.ticks.Active()
		sess.AddActiveTick()
		s.executeSession(c, sess)

		// FCFS workers own their pid's full lifecycle end-to-end (no RR
		// dispatcher exists to free frames on a later quantum check), so
		// they release frames themselves right after completion (spec
		// section 4.1: "the scheduler releases its frames").
		if s.cfg.Scheduler != config.SchedulerRR {
			s.pager.FreeProcessPages(pid)
		}
		s.onWorkerDone(pid)
	}
}

// executeSession runs sess to completion on core c: either its program,
// instruction by instruction, or — for a program-less Session — the
// synthetic "prints-per-process" work simulated by writing lines to
// screen_NN.txt (spec section 4.2).
func (s *Scheduler) executeSession(c *core, sess *process.Session) {
	if len(sess.Program) == 0 {
		s.runSynthetic(c, sess)
		sess.Finish()
		return
	}

	for i, instr := range sess.Program {
		_, err := interp.Execute(sess, s.pager, instr, time.Now())
		if err != nil {
			s.handleCrash(sess, i, err)
			return
		}
	}
	sess.Finish()
}

func (s *Scheduler) handleCrash(sess *process.Session, instrIndex int, err error) {
	now := time.Now()
	switch {
	case errors.Is(err, cerrors.ErrAccessViolation):
		addr := extractAddress(err)
		sess.Crash(addr, err.Error(), now)
		log.Info("session crashed: access violation", "pid", sess.PID, "instruction", instrIndex, "address", addr)
	case errors.Is(err, cerrors.ErrArithmetic):
		sess.Crash(0, err.Error(), now)
		log.Info("session crashed: arithmetic error", "pid", sess.PID, "instruction", instrIndex)
	default:
		sess.Crash(0, err.Error(), now)
		log.Warn("session crashed: unexpected error", "pid", sess.PID, "instruction", instrIndex, "err", err)
	}
}

// extractAddress pulls the first `0x...` hex token out of a wrapped
// access-violation error's message, since cerrors sentinels carry no
// structured fields of their own.
func extractAddress(err error) int {
	msg := err.Error()
	idx := indexOfSubstr(msg, "0x")
	if idx < 0 {
		return 0
	}
	end := idx + 2
	for end < len(msg) && isHexDigit(msg[end]) {
		end++
	}
	var v int
	fmt.Sscanf(msg[idx:end], "0x%x", &v)
	return v
}

func indexOfSubstr(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// runSynthetic emits cfg.PrintsPerProcess log lines to screen_NN.txt,
// one per simulated work step, separated by a small delay (spec section
// 4.2 and 6, "one line per synthetic work step").
func (s *Scheduler) runSynthetic(c *core, sess *process.Session) {
	fname := fmt.Sprintf("screen_%02d.txt", sess.PID)
	f, err := os.Create(fname)
	if err != nil {
		log.Warn("could not create screen file", "pid", sess.PID, "err", err)
		return
	}
	defer f.Close()

	for i := 0; i < s.cfg.PrintsPerProcess; i++ {
		now := time.Now()
		line := fmt.Sprintf("(%s) Core:%d \"Hello world from %s!\"\n",
			now.Format("01/02/2006, 03:04:05 PM"), c.id, sess.Name)
		if _, err := f.WriteString(line); err != nil {
			log.Warn("could not write screen line", "pid", sess.PID, "err", err)
			return
		}
		sess.AddActiveTick()
		time.Sleep(50 * time.Millisecond)
	}
}
