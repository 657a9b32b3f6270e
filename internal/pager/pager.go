// Package pager implements the frame pool and demand-pager: the fixed
// pool of physical frames, the occupancy bitmap and FIFO victim queue,
// the page-fault handler, and the memory-access API every instruction
// routes through (spec section 4.3).
package pager

import (
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/bitarray"

	"github.com/csopesy/emulator/internal/cerrors"
	"github.com/csopesy/emulator/internal/memlayout"
	"github.com/csopesy/emulator/internal/store"
	"github.com/csopesy/emulator/internal/telemetry"
)

var log = telemetry.New("pager")

// frame is one physical frame slot, carrying the bytes currently resident
// in it alongside the bookkeeping fields from spec section 3.
type frame struct {
	pid          int
	page         int
	occupied     bool
	dirty        bool
	lastAccessed time.Time
	data         []byte
}

// Pager owns the frame pool. All mutations happen under mu (spec section
// 4.3 "Concurrency"); the backing store has its own lock, entered only
// after mu is released where possible.
type Pager struct {
	mu         sync.Mutex
	frameSize  int
	frames     []frame
	occupiedBM bitarray.BitArray // authoritative free/occupied state, queried by reserveFrame
	fifo       []int

	layouts map[int]*memlayout.Layout

	faults       int64
	replacements int64

	store *store.Store
}

// New builds a pager with frameCount frames of frameSize bytes each,
// backed by bs for eviction/load traffic.
func New(frameCount, frameSize int, bs *store.Store) *Pager {
	p := &Pager{
		frameSize:  frameSize,
		frames:     make([]frame, frameCount),
		occupiedBM: bitarray.NewBitArray(uint64(frameCount)),
		layouts:    make(map[int]*memlayout.Layout),
		store:      bs,
	}
	for i := range p.frames {
		p.frames[i] = frame{pid: -1, page: -1, data: make([]byte, frameSize)}
	}
	return p
}

// RegisterProcess makes layout visible to the pager for pid, so that
// Access/PageFault can resolve and mutate its page table. Called once at
// submission (spec section 4.6).
func (p *Pager) RegisterProcess(pid int, layout *memlayout.Layout) {
	p.mu.Lock()
	p.layouts[pid] = layout
	p.mu.Unlock()
}

// Access is the only path through which code reads or writes memory
// (spec section 4.3). It resolves the virtual address to a page, faults
// it in if necessary, and returns the byte offset into that page's frame
// so the caller can read or write the underlying bytes.
func (p *Pager) Access(pid, virtualAddr int, isWrite bool) (frameIndex, offsetInFrame int, err error) {
	p.mu.Lock()
	layout, ok := p.layouts[pid]
	if !ok {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: pid %d not registered", cerrors.ErrInvalidAddress, pid)
	}
	if virtualAddr < 0 || virtualAddr >= layout.MemorySize {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: address 0x%x >= memory size %d", cerrors.ErrInvalidAddress, virtualAddr, layout.MemorySize)
	}
	page := layout.PageOf(virtualAddr)
	if page >= layout.NumPages() {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: page %d out of range", cerrors.ErrInvalidAddress, page)
	}
	p.mu.Unlock()

	if !layout.Pages[page].Loaded {
		if err := p.PageFault(pid, page); err != nil {
			return 0, 0, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry := &layout.Pages[page]
	fi := entry.PhysicalFrame
	f := &p.frames[fi]
	f.lastAccessed = time.Now()
	entry.Accessed = true
	if isWrite {
		f.dirty = true
		entry.Dirty = true
	}

	offset := virtualAddr - page*layout.FrameSize
	return fi, offset, nil
}

// PageFault handles a miss on (pid, page): it selects a frame (a free
// frame off the occupancy bitmap first, otherwise the FIFO victim),
// evicts if necessary, loads the page from the backing store, and
// updates the page table (spec section 4.3).
func (p *Pager) PageFault(pid, page int) error {
	p.mu.Lock()
	layout, ok := p.layouts[pid]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: pid %d not registered", cerrors.ErrInvalidAddress, pid)
	}
	if page < 0 || page >= layout.NumPages() {
		p.mu.Unlock()
		return fmt.Errorf("%w: page %d out of range", cerrors.ErrInvalidAddress, page)
	}
	p.faults++

	fi, evicted, evictedPID, evictedPage, evictedData, err := p.reserveFrame()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	if evicted {
		log.Info("evicting frame", "frame", fi, "pid", evictedPID, "page", evictedPage)
		if err := p.store.Store(evictedPID, evictedPage, evictedData); err != nil {
			return err
		}
		if evLayout, ok := p.layoutFor(evictedPID); ok && evictedPage < evLayout.NumPages() {
			p.mu.Lock()
			ev := &evLayout.Pages[evictedPage]
			ev.Loaded = false
			ev.PhysicalFrame = -1
			// Dirty bit is preserved (spec section 4.3).
			p.mu.Unlock()
		}
	}

	data, err := p.store.Load(pid, page)
	if err != nil {
		return err
	}

	p.mu.Lock()
	f := &p.frames[fi]
	f.pid = pid
	f.page = page
	f.occupied = true
	f.dirty = false
	f.lastAccessed = time.Now()
	copy(f.data, data)
	p.occupiedBM.SetBit(uint64(fi))
	p.fifo = append(p.fifo, fi)

	entry := &layout.Pages[page]
	entry.PhysicalFrame = fi
	entry.Loaded = true
	entry.Accessed = true
	p.mu.Unlock()

	log.Debug("page fault resolved", "pid", pid, "page", page, "frame", fi, "faults", p.faults)
	return nil
}

// reserveFrame picks a frame for a new page: the occupancy bitmap is
// queried first for a still-free frame, and only once it reports none
// left does the FIFO head become the victim. Returns whether an eviction
// occurred along with the evicted page's identity and current contents (to
// be persisted by the caller after releasing mu, per the lock-ordering
// rule that backing-store I/O never runs under the frame-pool lock).
// Callers must hold mu.
func (p *Pager) reserveFrame() (fi int, evicted bool, evPID, evPage int, evData []byte, err error) {
	if free, ok := p.firstFreeFrame(); ok {
		return free, false, 0, 0, nil, nil
	}

	if len(p.fifo) == 0 {
		return 0, false, 0, 0, nil, fmt.Errorf("no frames available to evict")
	}
	fi = p.fifo[0]
	p.fifo = p.fifo[1:]

	f := &p.frames[fi]
	if f.occupied {
		evicted = true
		evPID, evPage = f.pid, f.page
		evData = make([]byte, len(f.data))
		copy(evData, f.data)
		p.replacements++
	}
	f.occupied = false
	f.dirty = false
	f.pid = -1
	f.page = -1
	p.occupiedBM.ClearBit(uint64(fi))
	return fi, evicted, evPID, evPage, evData, nil
}

// firstFreeFrame scans the occupancy bitmap for a clear bit. Callers must
// hold mu.
func (p *Pager) firstFreeFrame() (int, bool) {
	for i := range p.frames {
		set, err := p.occupiedBM.GetBit(uint64(i))
		if err == nil && !set {
			return i, true
		}
	}
	return 0, false
}

func (p *Pager) layoutFor(pid int) (*memlayout.Layout, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.layouts[pid]
	return l, ok
}

// FreeProcessPages removes every frame owned by pid from the FIFO queue,
// resets those frames and clears their occupancy bits. Dirty pages are
// not written back (spec section 4.3). Idempotent.
func (p *Pager) FreeProcessPages(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.fifo[:0:0]
	for _, fi := range p.fifo {
		if p.frames[fi].pid == pid {
			p.frames[fi] = frame{pid: -1, page: -1, data: make([]byte, p.frameSize)}
			p.occupiedBM.ClearBit(uint64(fi))
		} else {
			kept = append(kept, fi)
		}
	}
	p.fifo = kept
	delete(p.layouts, pid)
}

// ReadUint16 reads the 16-bit value stored at virtualAddr for pid.
func (p *Pager) ReadUint16(pid, virtualAddr int) (uint16, error) {
	fi, off, err := p.Access(pid, virtualAddr, false)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	data := p.frames[fi].data
	if off+1 >= len(data) {
		return 0, fmt.Errorf("%w: address 0x%x crosses frame boundary", cerrors.ErrInvalidAddress, virtualAddr)
	}
	return uint16(data[off]) | uint16(data[off+1])<<8, nil
}

// WriteUint16 writes value at virtualAddr for pid.
func (p *Pager) WriteUint16(pid, virtualAddr int, value uint16) error {
	fi, off, err := p.Access(pid, virtualAddr, true)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	data := p.frames[fi].data
	if off+1 >= len(data) {
		return fmt.Errorf("%w: address 0x%x crosses frame boundary", cerrors.ErrInvalidAddress, virtualAddr)
	}
	data[off] = byte(value)
	data[off+1] = byte(value >> 8)
	return nil
}

// Statistics returns the fault count, replacement count, and number of
// frames currently in use (spec section 4.3).
func (p *Pager) Statistics() (faults, replacements, framesUsed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := int64(0)
	for i := range p.frames {
		if p.frames[i].occupied {
			used++
		}
	}
	return p.faults, p.replacements, used
}

// FrameSize returns the configured frame size in bytes.
func (p *Pager) FrameSize() int { return p.frameSize }

// FrameCount returns the total number of physical frames in the pool.
func (p *Pager) FrameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}
