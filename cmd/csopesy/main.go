// Command csopesy is the host shell: a thin command loop that wires the
// simulator aggregate together and relays operator commands to it (spec
// section 2, "Host shell (collaborator)" — "not specified here", kept
// deliberately minimal).
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/csopesy/emulator/internal/config"
	"github.com/csopesy/emulator/internal/pager"
	"github.com/csopesy/emulator/internal/process"
	"github.com/csopesy/emulator/internal/report"
	"github.com/csopesy/emulator/internal/scheduler"
	"github.com/csopesy/emulator/internal/store"
	"github.com/csopesy/emulator/internal/telemetry"
	"github.com/csopesy/emulator/internal/tick"
)

var log = telemetry.New("shell")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "num_cpu", cfg.NumCPU, "scheduler", cfg.Scheduler)

	bs, err := store.Open("csopesy-backing-store.txt", cfg.MemPerFrame, cfg.BackingStoreSize)
	if err != nil {
		log.Error("failed to open backing store", "err", err)
		os.Exit(1)
	}

	pg := pager.New(cfg.NumFrames, cfg.MemPerFrame, bs)
	table := process.NewTable()
	ticks := tick.NewCounters()
	sched := scheduler.New(cfg, table, pg, ticks)
	snap := report.NewSnapshotter()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nshutting down...")
		sched.Stop()
		os.Exit(0)
	}()

	fmt.Println("CSOPESY emulator ready. Type 'exit' to quit.")
	runShell(sched, table, pg, ticks, snap)
	sched.Stop()
}

func runShell(sched *scheduler.Scheduler, table *process.Table, pg *pager.Pager, ticks *tick.Counters, snap *report.Snapshotter) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("csopesy> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if handleCommand(line, sched, table, pg, ticks, snap) {
			return
		}
	}
}

// handleCommand dispatches one shell line; returns true when the shell
// should exit.
func handleCommand(line string, sched *scheduler.Scheduler, table *process.Table, pg *pager.Pager, ticks *tick.Counters, snap *report.Snapshotter) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "exit":
		return true

	case "screen":
		handleScreen(fields[1:], sched, table)

	case "scheduler-start":
		fmt.Println("scheduler already running; submit processes with 'screen -s'")

	case "scheduler-stop":
		sched.Stop()
		fmt.Println("scheduler stopped")

	case "report-util":
		if err := report.WriteMemoryReport("memory_report.txt", table, pg); err != nil {
			fmt.Println("error writing memory_report.txt:", err)
			return false
		}
		if err := report.WriteLog("csopesy-log.txt", ticks); err != nil {
			fmt.Println("error writing csopesy-log.txt:", err)
			return false
		}
		if err := snap.Snapshot(table, pg.FrameSize(), pg.FrameCount()); err != nil {
			fmt.Println("error writing memory stamp:", err)
		}
		fmt.Println("reports written")

	case "process-smi":
		printProcessSMI(table, ticks)

	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

// handleScreen implements `screen -s <name> <memory-size> [program]` and
// `screen -r <name>` (process submission and status query).
func handleScreen(args []string, sched *scheduler.Scheduler, table *process.Table) {
	if len(args) < 2 {
		fmt.Println("usage: screen -s <name> <memory-size> [program] | screen -r <name>")
		return
	}

	switch args[0] {
	case "-s":
		name := args[1]
		if len(args) < 3 {
			fmt.Println("usage: screen -s <name> <memory-size> [program]")
			return
		}
		memSize, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Println("invalid memory size:", args[2])
			return
		}
		var progSrc string
		if len(args) > 3 {
			progSrc = strings.Join(args[3:], " ")
		}
		pid, err := sched.Submit(name, memSize, progSrc)
		if err != nil {
			fmt.Println("submission failed:", err)
			return
		}
		fmt.Printf("process %q submitted as pid %d\n", name, pid)

	case "-r":
		name := args[1]
		for _, sess := range table.All() {
			if sess.Name == name {
				printSessionStatus(sess)
				return
			}
		}
		fmt.Println("no such process:", name)

	default:
		fmt.Println("unknown screen option:", args[0])
	}
}

func printSessionStatus(sess *process.Session) {
	active, idle := sess.Ticks()
	fmt.Printf("pid=%d name=%s memory=%d finished=%v active_ticks=%d idle_ticks=%d\n",
		sess.PID, sess.Name, sess.MemorySize, sess.Finished(), active, idle)
	if crash := sess.CrashInfo(); crash != nil {
		fmt.Printf("  crashed: %s at 0x%x (%s)\n", crash.Message, crash.InvalidAddress, crash.Time.Format(time.RFC3339))
	}
}

func printProcessSMI(table *process.Table, ticks *tick.Counters) {
	active, idle := ticks.Snapshot()
	fmt.Printf("active ticks: %d, idle ticks: %d\n", active, idle)
	for _, sess := range table.All() {
		printSessionStatus(sess)
	}
}
