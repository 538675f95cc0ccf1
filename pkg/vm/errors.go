package vm

import (
	"errors"
	"fmt"

	"github.com/brane-project/brane/pkg/ir"
)

// Sentinel VM errors, one per kind named in . The micro-ops
// wrap these with their failing ProgramCounter by StepError. A plugin's
// task error (CustomError) and a parallel branch failure (ErrSpawn) are
// returned without a StepError, so they carry no PC.
var (
	ErrPcOutOfBounds       = errors.New("pc out of bounds")
	ErrEmptyStack          = errors.New("operand stack is empty")
	ErrStackType           = errors.New("operand has unexpected type")
	ErrLhsRhsType          = errors.New("operand types are incompatible")
	ErrArrayIndexOOB       = errors.New("array index out of bounds")
	ErrCast                = errors.New("cast error")
	ErrProjUnknownField    = errors.New("unknown field in projection")
	ErrVarNotDeclared      = errors.New("variable not declared")
	ErrVarAlreadyDeclared  = errors.New("variable already declared")
	ErrFrameStackOverflow  = errors.New("frame stack overflow")
	ErrFrameStackUnderflow = errors.New("frame stack underflow")
	ErrReturnType          = errors.New("return value does not match declared return type")
	ErrSpawn               = errors.New("failed to spawn parallel branch")
	ErrIllegalBranchType   = errors.New("branch condition must be boolean")
	ErrBranchType          = errors.New("merge branches disagree on type")
	ErrUnresolvedLocation  = errors.New("node has no planned location")
	ErrUnknownInput        = errors.New("unknown node input")
	ErrUnplannedInput      = errors.New("node input has no resolved availability")
	ErrFunctionType        = errors.New("call target is not callable")
	ErrUnknownResult       = errors.New("unknown intermediate result")
	ErrDivideByZero        = errors.New("division by zero")
)

// StepError wraps any VM error with the ProgramCounter at which it
// occurred, so callers can report file:line:col-equivalent diagnostics
// even though the VM only has PCs once it is running compiled IR.
type StepError struct {
	PC  ir.ProgramCounter
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("vm error at %s: %v", e.PC, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func step(pc ir.ProgramCounter, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{PC: pc, Err: err}
}

// CustomError wraps an error returned by the VmPlugin
// Custom{plugin error} kind.
type CustomError struct {
	Err error
}

func (e *CustomError) Error() string { return fmt.Sprintf("plugin error: %v", e.Err) }
func (e *CustomError) Unwrap() error { return e.Err }
