// Package cerrors holds the sentinel error taxonomy surfaced to the shell
// (spec section 6). Callers compare with errors.Is; subsystems wrap these
// with fmt.Errorf("...: %w", ...) the way the teacher wraps with %v.
package cerrors

import "errors"

var (
	// ErrNotInitialized is returned by Scheduler.Submit once the scheduler
	// has been stopped.
	ErrNotInitialized = errors.New("scheduler not initialized")
	// ErrInvalidMemorySize is returned when a submitted memory size is not
	// a power of two within the configured bounds.
	ErrInvalidMemorySize = errors.New("invalid memory size")
	// ErrInvalidProgram is returned when a program fails to parse or its
	// instruction count is outside [1, 50].
	ErrInvalidProgram = errors.New("invalid program")
	// ErrInvalidAddress is returned by the pager when an access falls
	// outside a session's memory or page range.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrArithmetic is returned on division by zero.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrAccessViolation marks a crashed session after an out-of-bounds
	// or rejected memory access.
	ErrAccessViolation = errors.New("access violation")
	// ErrConfigIO is returned when the configuration file cannot be read.
	ErrConfigIO = errors.New("config io error")
	// ErrUnknownProcess names a query for an unknown pid. No function in
	// this module returns it; the shell reports unknown names itself.
	ErrUnknownProcess = errors.New("unknown process")
)
