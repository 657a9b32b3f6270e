// Package process owns the Session (process control block) and the
// process table that maps pid -> Session. The process table exclusively
// owns Sessions; a Session exclusively owns its memory layout and program
// (spec section 3, "Ownership").
package process

import (
	"sync"
	"time"

	"github.com/csopesy/emulator/internal/memlayout"
	"github.com/csopesy/emulator/internal/program"
)

// MaxVariables caps the number of distinct DECLAREd variables a process
// may hold (spec section 3).
const MaxVariables = 32

// CrashInfo records why and when a session terminated abnormally.
type CrashInfo struct {
	InvalidAddress int
	Message        string
	Time           time.Time
}

// Session is the runtime record of one submitted process. Created by the
// scheduler on submission; mutated only by its assigned worker during
// execution and by the scheduler's lifecycle hooks (finished, frame
// release).
type Session struct {
	PID        int
	Name       string
	CreatedAt  time.Time
	MemorySize int
	Program    []program.Instruction
	Layout     *memlayout.Layout

	mu          sync.Mutex
	variables   map[string]uint16
	slots       map[string]int // name -> insertion-order slot, for the symbol-table address
	activeTicks int64
	idleTicks   int64
	finished    bool
	crash       *CrashInfo
}

// New creates a Session for pid with the given name, memory size, parsed
// program and freshly built memory layout.
func New(pid int, name string, memorySize int, prog []program.Instruction, layout *memlayout.Layout, now time.Time) *Session {
	return &Session{
		PID:        pid,
		Name:       name,
		CreatedAt:  now,
		MemorySize: memorySize,
		Program:    prog,
		Layout:     layout,
		variables:  make(map[string]uint16, MaxVariables),
		slots:      make(map[string]int, MaxVariables),
	}
}

// DeclareVariable binds name to value if the symbol table has room (or
// name already exists). Returns false when the table already holds 32
// entries and name is new — the caller must treat this as a no-op with a
// diagnostic, not an error (spec section 4.4). slot is the symbol-table
// slot index (current symbol-count prior to insertion, for a new name; the
// name's original slot, for a re-declaration) — spec section 4.4.
func (s *Session) DeclareVariable(name string, value uint16) (slot int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingSlot, exists := s.slots[name]; exists {
		s.variables[name] = value
		return existingSlot, true
	}
	if len(s.variables) >= MaxVariables {
		return 0, false
	}
	slot = len(s.variables)
	s.variables[name] = value
	s.slots[name] = slot
	return slot, true
}

// Variable returns the current value of name and whether it is declared.
func (s *Session) Variable(name string) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variables[name]
	return v, ok
}

// VariableCount returns the number of distinct bound variables.
func (s *Session) VariableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.variables)
}

// AddActiveTick increments this session's active tick count.
func (s *Session) AddActiveTick() {
	s.mu.Lock()
	s.activeTicks++
	s.mu.Unlock()
}

// AddIdleTick increments this session's idle tick count.
func (s *Session) AddIdleTick() {
	s.mu.Lock()
	s.idleTicks++
	s.mu.Unlock()
}

// Ticks returns the session's (active, idle) tick counts.
func (s *Session) Ticks() (active, idle int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTicks, s.idleTicks
}

// Finish marks the session as finished. Idempotent.
func (s *Session) Finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

// Finished reports whether the session has completed or crashed.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Crash marks the session finished and records crash info. Subsequent
// instructions must not be executed by the caller after this returns.
func (s *Session) Crash(invalidAddress int, message string, now time.Time) {
	s.mu.Lock()
	s.finished = true
	s.crash = &CrashInfo{InvalidAddress: invalidAddress, Message: message, Time: now}
	s.mu.Unlock()
}

// CrashInfo returns the session's crash record, if any.
func (s *Session) CrashInfo() *CrashInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crash
}
