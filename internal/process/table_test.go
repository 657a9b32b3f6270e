package process

import (
	"testing"
	"time"

	"github.com/csopesy/emulator/internal/memlayout"
)

func TestTableAllocatePIDMonotonic(t *testing.T) {
	tbl := NewTable()
	p1 := tbl.AllocatePID()
	p2 := tbl.AllocatePID()
	p3 := tbl.AllocatePID()
	if p1 != 1 || p2 != 2 || p3 != 3 {
		t.Errorf("unexpected pid sequence: %d, %d, %d", p1, p2, p3)
	}
}

func TestTableAddGetRemove(t *testing.T) {
	tbl := NewTable()
	layout := memlayout.New(64, 16)
	sess := New(1, "proc", 64, nil, layout, time.Now())
	tbl.Add(sess)

	got, ok := tbl.Get(1)
	if !ok || got != sess {
		t.Fatalf("Get(1) = (%v, %v), want (sess, true)", got, ok)
	}

	all := tbl.All()
	if len(all) != 1 {
		t.Fatalf("All() returned %d sessions, want 1", len(all))
	}

	tbl.Remove(1)
	if _, ok := tbl.Get(1); ok {
		t.Error("expected session to be removed")
	}
}
