package vm

import "errors"

// Instruction errors. None of them stops the machine: the failing
// instruction is skipped and the next Step proceeds normally.
var (
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrOutOfBounds     = errors.New("address out of bounds")
	ErrUnmatchedOpcode = errors.New("unmatched opcode")
)

var ErrProgramTooLarge = errors.New("program too large")
