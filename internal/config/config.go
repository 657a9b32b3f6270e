// Package config loads the emulator's immutable tuning parameters from the
// whitespace "key value" configuration file format described in spec
// section 6 (num-cpu, scheduler, quantum-cycles, ...).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/csopesy/emulator/internal/cerrors"
	"github.com/csopesy/emulator/internal/telemetry"
)

var log = telemetry.New("config")

// Scheduler selects the dispatch discipline used by internal/scheduler.
type Scheduler string

const (
	SchedulerFCFS Scheduler = "fcfs"
	SchedulerRR   Scheduler = "rr"
)

// Config holds the fully-resolved, immutable simulator parameters. Zero
// value is never valid; always obtain one through Load or Defaults.
type Config struct {
	NumCPU              int
	Scheduler           Scheduler
	QuantumCycles       int // milliseconds
	BatchProcessFreq    int // reserved, carried for config-format fidelity
	MinIns              int
	MaxIns              int
	DelaysPerExec       int // reserved, carried for config-format fidelity
	NumProcesses        int
	PrintsPerProcess    int
	MaxOverallMem       int
	MemPerFrame         int
	MemPerProc          int
	MinMemorySize       int
	MaxMemorySize       int
	NumFrames           int
	BackingStoreSize    int
}

// Defaults mirrors the original implementation's built-in defaults, used
// when a config file omits a key outright.
func Defaults() Config {
	return Config{
		NumCPU:           1,
		Scheduler:        SchedulerFCFS,
		QuantumCycles:    100,
		MinIns:           1,
		MaxIns:           50,
		NumProcesses:     10,
		PrintsPerProcess: 100,
		MaxOverallMem:    16384,
		MemPerFrame:      16,
		MemPerProc:       4096,
		MinMemorySize:    64,
		MaxMemorySize:    65536,
		BackingStoreSize: 65536,
	}
}

// Load reads and parses a configuration file at path. Unknown keys are
// skipped with a warning, not treated as fatal (spec section 6).
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", cerrors.ErrConfigIO, err)
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", cerrors.ErrConfigIO, err)
	}
	return cfg, nil
}

func parse(r io.Reader) (Config, error) {
	cfg := Defaults()
	maxMemorySet := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	readInt := func(field string) (int, error) {
		if !sc.Scan() {
			return 0, fmt.Errorf("missing value for %s", field)
		}
		v, err := strconv.Atoi(sc.Text())
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %v", field, err)
		}
		return v, nil
	}
	readStr := func(field string) (string, error) {
		if !sc.Scan() {
			return "", fmt.Errorf("missing value for %s", field)
		}
		return sc.Text(), nil
	}

	for sc.Scan() {
		key := sc.Text()
		var err error
		switch key {
		case "num-cpu":
			cfg.NumCPU, err = readInt(key)
		case "scheduler":
			var s string
			s, err = readStr(key)
			if s == "rr" {
				cfg.Scheduler = SchedulerRR
			} else {
				cfg.Scheduler = SchedulerFCFS
			}
		case "quantum-cycles":
			cfg.QuantumCycles, err = readInt(key)
		case "batch-process-freq":
			cfg.BatchProcessFreq, err = readInt(key)
		case "min-ins":
			cfg.MinIns, err = readInt(key)
		case "max-ins":
			cfg.MaxIns, err = readInt(key)
		case "delays-per-exec":
			cfg.DelaysPerExec, err = readInt(key)
		case "num-processes":
			cfg.NumProcesses, err = readInt(key)
		case "prints-per-process":
			cfg.PrintsPerProcess, err = readInt(key)
		case "max-overall-mem":
			cfg.MaxOverallMem, err = readInt(key)
			if !maxMemorySet {
				cfg.MaxMemorySize = cfg.MaxOverallMem
			}
		case "mem-per-frame":
			cfg.MemPerFrame, err = readInt(key)
		case "mem-per-proc":
			cfg.MemPerProc, err = readInt(key)
		case "min-memory-size":
			cfg.MinMemorySize, err = readInt(key)
		case "max-memory-size":
			cfg.MaxMemorySize, err = readInt(key)
			cfg.MaxOverallMem = cfg.MaxMemorySize
			maxMemorySet = true
			log.Warn("max-memory-size overrides max-overall-mem", "value", cfg.MaxMemorySize)
		case "num-frames":
			cfg.NumFrames, err = readInt(key)
		case "backing-store-size":
			cfg.BackingStoreSize, err = readInt(key)
		default:
			log.Warn("unknown config key, skipping", "key", key)
			if sc.Scan() {
				// discard the associated value
			}
			continue
		}
		if err != nil {
			return Config{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}

	if cfg.NumFrames <= 0 && cfg.MemPerFrame > 0 {
		cfg.NumFrames = cfg.MaxMemorySize / cfg.MemPerFrame
	}
	if cfg.NumCPU < 1 {
		cfg.NumCPU = 1
	}
	return cfg, nil
}
