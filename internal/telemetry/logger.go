// Package telemetry provides the structured loggers shared by every
// subsystem of the emulator.
package telemetry

import (
	"log/slog"
	"os"
)

// New builds a text-handler logger tagged with the owning module's name,
// the way the teacher's utils.InicializarLogger tags every subsystem.
func New(module string) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("CSOPESY_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("module", module)
}
