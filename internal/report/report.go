// Package report renders the simulator's human-readable, presentation-layer
// artifacts: rate-limited memory snapshots and free-form text reports
// (spec section 6 "Persisted artifacts"). These are collaborators, not
// core engineering — they read state through the exported APIs of
// internal/process, internal/pager, and internal/tick without mutating any
// of it.
package report

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/csopesy/emulator/internal/pager"
	"github.com/csopesy/emulator/internal/process"
	"github.com/csopesy/emulator/internal/telemetry"
	"github.com/csopesy/emulator/internal/tick"
)

var log = telemetry.New("report")

// MemoryBlock is one occupied byte range in the bottom-up layout listing
// of a memory snapshot.
type MemoryBlock struct {
	PID   int
	Start int
	End   int
}

// Snapshotter rate-limits memory_stamp_<n>.txt emission to at most one
// accepted snapshot per second (spec section 6), grounded on the
// teacher's memory dump idiom (cmd/memoria/dump.go).
type Snapshotter struct {
	mu       sync.Mutex
	last     time.Time
	sequence int
}

// NewSnapshotter returns a ready-to-use rate-limited snapshotter.
func NewSnapshotter() *Snapshotter {
	return &Snapshotter{}
}

// Snapshot writes memory_stamp_<n>.txt if at least one second has
// elapsed since the last accepted snapshot; otherwise it is a silent
// no-op (the rate limit, not an error).
func (s *Snapshotter) Snapshot(table *process.Table, frameSize, frameCount int) error {
	s.mu.Lock()
	now := time.Now()
	if !s.last.IsZero() && now.Sub(s.last) < time.Second {
		s.mu.Unlock()
		return nil
	}
	s.last = now
	n := s.sequence
	s.sequence++
	s.mu.Unlock()

	fname := fmt.Sprintf("memory_stamp_%d.txt", n)
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	sessions := table.All()
	inMemory := 0
	var blocks []MemoryBlock
	for _, sess := range sessions {
		if sess.Finished() {
			continue
		}
		resident := false
		for page, entry := range sess.Layout.Pages {
			if entry.Loaded {
				resident = true
				start := page * sess.Layout.FrameSize
				end := start + sess.Layout.FrameSize
				blocks = append(blocks, MemoryBlock{PID: sess.PID, Start: start, End: end})
			}
		}
		if resident {
			inMemory++
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Start > blocks[j].Start })

	usedBytes := len(blocks) * frameSize
	totalBytes := frameCount * frameSize
	fragKB := float64(totalBytes-usedBytes) / 1024.0

	fmt.Fprintf(f, "Timestamp: %s\n", now.Format("01/02/2006 03:04:05PM"))
	fmt.Fprintf(f, "Processes in memory: %d\n", inMemory)
	fmt.Fprintf(f, "External fragmentation: %.2f KB\n\n", fragKB)
	fmt.Fprintf(f, "----end---- = %d\n", totalBytes)
	for _, b := range blocks {
		fmt.Fprintf(f, "%d\nPID %d\n%d\n\n", b.End, b.PID, b.Start)
	}
	fmt.Fprintf(f, "----start---- = 0\n")

	log.Debug("memory stamp written", "file", fname, "blocks", len(blocks))
	return nil
}

// WriteMemoryReport writes memory_report.txt: per-process memory usage
// and pager statistics (spec section 6).
func WriteMemoryReport(path string, table *process.Table, pg *pager.Pager) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	faults, replacements, framesUsed := pg.Statistics()
	fmt.Fprintf(f, "Memory report generated %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "Page faults: %d\n", faults)
	fmt.Fprintf(f, "Replacements: %d\n", replacements)
	fmt.Fprintf(f, "Frames in use: %d\n\n", framesUsed)

	for _, sess := range table.All() {
		active, idle := sess.Ticks()
		fmt.Fprintf(f, "pid=%d name=%s memory=%d active_ticks=%d idle_ticks=%d finished=%v\n",
			sess.PID, sess.Name, sess.MemorySize, active, idle, sess.Finished())
	}
	return nil
}

// WriteLog writes csopesy-log.txt: a running total of tick counters
// (spec section 6).
func WriteLog(path string, ticks *tick.Counters) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	active, idle := ticks.Snapshot()
	fmt.Fprintf(f, "%s active=%d idle=%d\n", time.Now().Format(time.RFC3339), active, idle)
	return nil
}
