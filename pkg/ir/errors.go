package ir

import (
	"errors"
	"fmt"
)

// Package-level sentinel errors for the IR/compile layer, grounded on the
// teacher's pkg/models/errors.go var block style.
var (
	ErrInvalidWorkflow   = errors.New("invalid workflow")
	ErrUnknownFunction    = errors.New("unknown function")
	ErrUnknownResult      = errors.New("unknown intermediate result")
	ErrUnknownDataset     = errors.New("unknown dataset")
	ErrUnplannedLocation  = errors.New("node has no planned location")
	ErrUnplannedInput     = errors.New("node input has no resolved availability")
)

// ResolveError, TypeError, NullError, LocationError, PruneError and
// FlattenError each carry the ProgramCounter of the failing edge for
// diagnostics, mirroring the source-range-carrying errors 
// describes for the IR/compile layer (PCs stand in for source ranges
// once compilation has produced the IR).

type ResolveError struct {
	PC     ProgramCounter
	Detail string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve error at %s: %s", e.PC, e.Detail)
}

type TypeError struct {
	PC   ProgramCounter
	Want DataType
	Have DataType
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at %s: want %s, have %s", e.PC, e.Want, e.Have)
}

type NullError struct {
	PC     ProgramCounter
	Detail string
}

func (e *NullError) Error() string {
	return fmt.Sprintf("null error at %s: %s", e.PC, e.Detail)
}

type LocationError struct {
	PC     ProgramCounter
	Domain string
	Detail string
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location error at %s (domain %s): %s", e.PC, e.Domain, e.Detail)
}

type PruneError struct {
	PC     ProgramCounter
	Detail string
}

func (e *PruneError) Error() string {
	return fmt.Sprintf("prune error at %s: %s", e.PC, e.Detail)
}

type FlattenError struct {
	PC     ProgramCounter
	Detail string
}

func (e *FlattenError) Error() string {
	return fmt.Sprintf("flatten error at %s: %s", e.PC, e.Detail)
}

// PcOutOfBoundsError is raised when a ProgramCounter names an edge index
// beyond the end of its function body.
type PcOutOfBoundsError struct {
	PC  ProgramCounter
	Len int
}

func (e *PcOutOfBoundsError) Error() string {
	return fmt.Sprintf("pc out of bounds: %s (body has %d edges)", e.PC, e.Len)
}
