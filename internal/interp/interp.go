// Package interp executes one parsed instruction against a session's
// variables and its virtual memory, through the pager (spec section 4.4).
// Execution is one instruction per call so the scheduler can interleave
// ticks, delays, and preemption between instructions.
package interp

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/csopesy/emulator/internal/cerrors"
	"github.com/csopesy/emulator/internal/pager"
	"github.com/csopesy/emulator/internal/process"
	"github.com/csopesy/emulator/internal/program"
	"github.com/csopesy/emulator/internal/telemetry"
)

var log = telemetry.New("interp")

// Result carries what an instruction produced for the caller to log or
// relay (e.g. a PRINT's output line). Empty when the instruction has no
// output of its own.
type Result struct {
	Output string
}

// Execute runs one instruction for sess, resolving memory through pg.
// Returns a wrapped cerrors.ErrArithmetic or cerrors.ErrAccessViolation
// when the instruction itself is the cause of a session crash (spec
// section 4.4, "Error Handling Design" section 7) — callers must mark the
// session crashed and stop executing it on either.
func Execute(sess *process.Session, pg *pager.Pager, instr program.Instruction, now time.Time) (Result, error) {
	switch instr.Op {
	case program.DECLARE:
		return execDeclare(sess, pg, instr)
	case program.ADD, program.SUB, program.MUL, program.DIV:
		return execArith(sess, pg, instr)
	case program.WRITE:
		return execWrite(sess, pg, instr)
	case program.READ:
		return execRead(sess, pg, instr)
	case program.PRINT:
		return execPrint(sess, instr)
	default:
		return Result{}, fmt.Errorf("unhandled opcode %s", instr.Op)
	}
}

// pagingAddress derives an advisory-only address for the arithmetic
// instructions (ADD/SUB/MUL/DIV), which don't name one explicitly; DECLARE
// writes at its symbol-table slot instead (see execDeclare). Deterministic
// hash of the destination variable's name, folded into [0, memorySize)
// (spec section 4.4, section 9 Open Question resolution). This traffic
// exercises the pager but is never the variable's canonical store — the
// Session's variable map is (spec section 3, "Ownership").
func pagingAddress(name string, memorySize int) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32()) % memorySize
}

func execDeclare(sess *process.Session, pg *pager.Pager, instr program.Instruction) (Result, error) {
	name, raw := instr.Operands[0], instr.Operands[1]
	value, err := parseUint16(raw)
	if err != nil {
		return Result{}, fmt.Errorf("DECLARE: %w", err)
	}

	slot, ok := sess.DeclareVariable(name, value)
	if !ok {
		log.Info("symbol table full, DECLARE ignored", "pid", sess.PID, "name", name)
		return Result{}, nil
	}

	addr := slot * 2 // byte offset into the symbol-table segment (spec section 4.4)
	if err := pg.WriteUint16(sess.PID, addr, value); err != nil {
		log.Warn("advisory paging write failed", "pid", sess.PID, "err", err)
	}
	return Result{}, nil
}

func execArith(sess *process.Session, pg *pager.Pager, instr program.Instruction) (Result, error) {
	dst, lhsTok, rhsTok := instr.Operands[0], instr.Operands[1], instr.Operands[2]

	lhs, ok := resolveOperand(sess, lhsTok)
	if !ok {
		return Result{}, fmt.Errorf("ADD/SUB/MUL/DIV: invalid operand %q", lhsTok)
	}
	rhs, ok := resolveOperand(sess, rhsTok)
	if !ok {
		return Result{}, fmt.Errorf("ADD/SUB/MUL/DIV: invalid operand %q", rhsTok)
	}

	var result int64
	switch instr.Op {
	case program.ADD:
		result = int64(lhs) + int64(rhs)
	case program.SUB:
		result = int64(lhs) - int64(rhs)
	case program.MUL:
		result = int64(lhs) * int64(rhs)
	case program.DIV:
		if rhs == 0 {
			return Result{}, fmt.Errorf("%w: division by zero in %s", cerrors.ErrArithmetic, instr.Op)
		}
		result = int64(lhs) / int64(rhs)
	}
	value := clampUint16(result)

	if _, ok := sess.DeclareVariable(dst, value); !ok {
		log.Info("symbol table full, arithmetic result discarded", "pid", sess.PID, "name", dst)
		return Result{}, nil
	}

	addr := pagingAddress(dst, sess.MemorySize)
	if err := pg.WriteUint16(sess.PID, addr, value); err != nil {
		log.Warn("advisory paging write failed", "pid", sess.PID, "err", err)
	}
	return Result{}, nil
}

func execWrite(sess *process.Session, pg *pager.Pager, instr program.Instruction) (Result, error) {
	addrTok, srcTok := instr.Operands[0], instr.Operands[1]
	addr, err := parseHexAddress(addrTok)
	if err != nil {
		return Result{}, err
	}

	value, ok := resolveOperand(sess, srcTok)
	if !ok {
		return Result{}, fmt.Errorf("WRITE: invalid source %q", srcTok)
	}

	if err := pg.WriteUint16(sess.PID, addr, value); err != nil {
		if errors.Is(err, cerrors.ErrInvalidAddress) {
			return Result{}, fmt.Errorf("%w: %v", cerrors.ErrAccessViolation, err)
		}
		return Result{}, err
	}
	return Result{}, nil
}

func execRead(sess *process.Session, pg *pager.Pager, instr program.Instruction) (Result, error) {
	dst, addrTok := instr.Operands[0], instr.Operands[1]
	addr, err := parseHexAddress(addrTok)
	if err != nil {
		return Result{}, err
	}

	value, err := pg.ReadUint16(sess.PID, addr)
	if err != nil {
		if errors.Is(err, cerrors.ErrInvalidAddress) {
			return Result{}, fmt.Errorf("%w: %v", cerrors.ErrAccessViolation, err)
		}
		return Result{}, err
	}

	if _, ok := sess.DeclareVariable(dst, value); !ok {
		log.Info("symbol table full, READ result discarded", "pid", sess.PID, "name", dst)
	}
	return Result{}, nil
}

// execPrint renders PRINT's argument: a bare variable name prints its
// value; a `"literal" + var` form concatenates the literal with the
// variable's value; a `"quoted"` literal prints without its quotes;
// anything else prints as given (original_source/src/instruction.cpp executeInstructionWithPaging,
// InstructionType::PRINT case).
func execPrint(sess *process.Session, instr program.Instruction) (Result, error) {
	content := instr.Operands[0]

	if v, ok := sess.Variable(content); ok {
		return Result{Output: strconv.Itoa(int(v))}, nil
	}

	const sep = " + "
	if idx := indexOf(content, sep); idx >= 0 {
		left := trimQuotes(trimSpace(content[:idx]))
		right := trimSpace(content[idx+len(sep):])
		if v, ok := sess.Variable(right); ok {
			return Result{Output: left + strconv.Itoa(int(v))}, nil
		}
		return Result{Output: left + right}, nil
	}

	return Result{Output: trimQuotes(content)}, nil
}

func resolveOperand(sess *process.Session, tok string) (uint16, bool) {
	if v, ok := sess.Variable(tok); ok {
		return v, true
	}
	v, err := parseUint16(tok)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseUint16(tok string) (uint16, error) {
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %q", tok)
	}
	return clampUint16(n), nil
}

func parseHexAddress(tok string) (int, error) {
	if !program.ValidAddress(tok) {
		return 0, fmt.Errorf("%w: malformed address %q", cerrors.ErrInvalidAddress, tok)
	}
	n, err := strconv.ParseInt(tok[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", cerrors.ErrInvalidAddress, err)
	}
	return int(n), nil
}

// clampUint16 saturates out-of-range arithmetic results to the uint16
// domain (spec section 4.4: "values are unsigned 16-bit; overflow and
// underflow saturate rather than wrap").
func clampUint16(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
