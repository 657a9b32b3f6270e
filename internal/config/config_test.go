package config

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	src := `num-cpu 4
scheduler rr
quantum-cycles 50
min-ins 2
max-ins 10
num-processes 5
prints-per-process 3
max-overall-mem 16384
mem-per-frame 16
mem-per-proc 1024
min-memory-size 64
max-memory-size 65536
backing-store-size 4096
`
	cfg, err := parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.NumCPU != 4 {
		t.Errorf("NumCPU = %d, want 4", cfg.NumCPU)
	}
	if cfg.Scheduler != SchedulerRR {
		t.Errorf("Scheduler = %v, want rr", cfg.Scheduler)
	}
	if cfg.QuantumCycles != 50 {
		t.Errorf("QuantumCycles = %d, want 50", cfg.QuantumCycles)
	}
	if cfg.NumFrames != cfg.MaxMemorySize/cfg.MemPerFrame {
		t.Errorf("NumFrames = %d, want derived %d", cfg.NumFrames, cfg.MaxMemorySize/cfg.MemPerFrame)
	}
}

// TestMaxMemoryOverridesOverall exercises the resolved Open Question:
// max-memory-size wins over max-overall-mem regardless of file order.
func TestMaxMemoryOverridesOverall(t *testing.T) {
	src := `max-overall-mem 8192
max-memory-size 32768
mem-per-frame 16
`
	cfg, err := parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxMemorySize != 32768 {
		t.Errorf("MaxMemorySize = %d, want 32768", cfg.MaxMemorySize)
	}

	// Order reversed: max-memory-size still wins even though it appears
	// first in the file, since it always sets the authoritative field.
	src2 := `max-memory-size 32768
max-overall-mem 8192
`
	cfg2, err := parse(strings.NewReader(src2))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg2.MaxMemorySize != 32768 {
		t.Errorf("MaxMemorySize = %d, want 32768 (max-memory-size authoritative)", cfg2.MaxMemorySize)
	}
}

func TestParseUnknownKeySkipped(t *testing.T) {
	src := `num-cpu 2
totally-unknown-key 123
scheduler fcfs
`
	cfg, err := parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.NumCPU != 2 || cfg.Scheduler != SchedulerFCFS {
		t.Errorf("unexpected config after unknown key: %+v", cfg)
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.NumCPU != 1 || d.Scheduler != SchedulerFCFS {
		t.Errorf("unexpected defaults: %+v", d)
	}
}
