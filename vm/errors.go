package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded reports an operand stack, scope stack or locals
	// table overflow. It always terminates execution.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrStackUnderflow reports a pop from an empty operand or scope stack.
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrBadOpcode reports an undefined opcode in the instruction stream.
	ErrBadOpcode = errors.New("invalid opcode")

	// ErrBadOperand reports an immediate or operand of the wrong shape.
	ErrBadOperand = errors.New("invalid operand")
)

// RuntimeError locates a fatal execution error.
type RuntimeError struct {
	PC  int
	Op  Opcode
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("vm: pc %d (%s): %v", e.PC, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
