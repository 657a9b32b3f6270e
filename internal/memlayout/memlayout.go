// Package memlayout models a process's virtual address space: its fixed
// segment list and its page table. One Layout is created per session, at
// submission time, and lives for the session's lifetime (spec section 3).
package memlayout

// SegmentKind names one of the four fixed segments every process has.
type SegmentKind string

const (
	SymbolTable SegmentKind = "symbol_table"
	Code        SegmentKind = "code"
	Stack       SegmentKind = "stack"
	Heap        SegmentKind = "heap"
)

// SymbolTableBytes is the fixed size of the first segment, reserved for
// DECLAREd variables (spec section 4.4).
const SymbolTableBytes = 64

// Segment describes one fixed, contiguous byte range of a process's
// virtual memory.
type Segment struct {
	Kind  SegmentKind
	Start int
	Size  int
}

// End returns the exclusive end offset of the segment.
func (s Segment) End() int { return s.Start + s.Size }

// PageEntry is one page table entry. PhysicalFrame is -1 when the page is
// not resident; Loaded must always agree (PhysicalFrame != -1 iff Loaded).
type PageEntry struct {
	PhysicalFrame int
	Loaded        bool
	Dirty         bool
	Accessed      bool
}

// Layout is a process's full virtual memory description: its segments and
// its page table. Pages are indexed page# -> PageEntry.
type Layout struct {
	MemorySize int
	FrameSize  int
	Segments   []Segment
	Pages      []PageEntry
}

// New builds the fixed segment layout and an all-unloaded page table for
// memorySize bytes, paged in units of frameSize bytes.
//
// Segment split: [0,64) is symbol_table; the remainder splits 40/30/30
// into code/stack/heap (spec section 3).
func New(memorySize, frameSize int) *Layout {
	rest := memorySize - SymbolTableBytes
	codeSize := rest * 40 / 100
	stackSize := rest * 30 / 100
	heapSize := rest - codeSize - stackSize

	segments := []Segment{
		{Kind: SymbolTable, Start: 0, Size: SymbolTableBytes},
		{Kind: Code, Start: SymbolTableBytes, Size: codeSize},
		{Kind: Stack, Start: SymbolTableBytes + codeSize, Size: stackSize},
		{Kind: Heap, Start: SymbolTableBytes + codeSize + stackSize, Size: heapSize},
	}

	numPages := (memorySize + frameSize - 1) / frameSize
	pages := make([]PageEntry, numPages)
	for i := range pages {
		pages[i] = PageEntry{PhysicalFrame: -1}
	}

	return &Layout{
		MemorySize: memorySize,
		FrameSize:  frameSize,
		Segments:   segments,
		Pages:      pages,
	}
}

// PageOf returns the page number containing virtual address addr.
func (l *Layout) PageOf(addr int) int {
	return addr / l.FrameSize
}

// NumPages returns the page count of this layout.
func (l *Layout) NumPages() int {
	return len(l.Pages)
}
