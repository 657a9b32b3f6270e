package process

import "sync"

// Table is the process table: the exclusive owner of all Sessions,
// mapping pid -> Session. Destroyed only on shell teardown; finished
// sessions remain queryable (spec section 3).
type Table struct {
	mu      sync.RWMutex
	nextPID int
	byPID   map[int]*Session
}

// NewTable returns an empty process table. Pids are assigned starting
// at 1, monotonically.
func NewTable() *Table {
	return &Table{byPID: make(map[int]*Session)}
}

// AllocatePID returns the next unique, monotonically increasing pid. It
// takes t.mu itself, so it is safe to call concurrently; callers must not
// already hold t.mu.
func (t *Table) AllocatePID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextPID++
	return t.nextPID
}

// Add registers a newly created session in the table.
func (t *Table) Add(s *Session) {
	t.mu.Lock()
	t.byPID[s.PID] = s
	t.mu.Unlock()
}

// Get looks up a session by pid.
func (t *Table) Get(pid int) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byPID[pid]
	return s, ok
}

// All returns a snapshot slice of every session currently in the table,
// finished or not.
func (t *Table) All() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.byPID))
	for _, s := range t.byPID {
		out = append(out, s)
	}
	return out
}

// Remove deletes a session from the table (shell teardown only).
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	delete(t.byPID, pid)
	t.mu.Unlock()
}
