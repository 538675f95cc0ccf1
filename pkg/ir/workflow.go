package ir

import "fmt"

// Workflow is the compiled, typed dataflow graph: (graph, funcs, table,
// metadata).
type Workflow struct {
	Graph    []Edge           // the main body's ordered edge sequence
	Funcs    map[int64][]Edge // function-id -> edge sequence
	Table    *Table
	Metadata map[string]string

	// EndUser is the workflow's declared end-user, checked against the
	// caller identity on a workflow-result transfer request .
	EndUser string
	UseCase string
}

// Body returns the edge sequence for a FunctionID.
func (w *Workflow) Body(fn FunctionID) ([]Edge, bool) {
	if fn.Main {
		return w.Graph, true
	}
	body, ok := w.Funcs[fn.Func]
	return body, ok
}

// EdgeAt resolves a ProgramCounter to its Edge, or an error if the PC is
// out of bounds.
func (w *Workflow) EdgeAt(pc ProgramCounter) (*Edge, error) {
	body, ok := w.Body(pc.Func)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, pc.Func)
	}
	if pc.Edge < 0 || pc.Edge >= len(body) {
		return nil, &PcOutOfBoundsError{PC: pc, Len: len(body)}
	}
	return &body[pc.Edge], nil
}

// Validate checks the invariants  requires of a workflow before
// it is handed to the planner. It does not check planning-stage
// invariants (Node.At, input availability, table.Results completeness) —
// those are checked by Workflow.ValidatePlanned after planning.
func (w *Workflow) Validate() error {
	if w.Table == nil {
		return fmt.Errorf("%w: workflow has no symbol table", ErrInvalidWorkflow)
	}
	seen := map[string]bool{}
	var walk func(body []Edge, fn FunctionID) error
	walk = func(body []Edge, fn FunctionID) error {
		for i, e := range body {
			pc := ProgramCounter{Func: fn, Edge: i}
			switch e.Kind {
			case EdgeNode:
				for _, in := range e.Input {
					if in.Name.Name == "" {
						return &ResolveError{PC: pc, Detail: "node input has empty data name"}
					}
				}
				if e.Result != "" {
					seen[e.Result] = true
				}
			case EdgeParallel:
				for _, branch := range e.Branches {
					if err := walk(branch, fn); err != nil {
						return err
					}
				}
				if err := checkMergeArity(pc, e.Merge); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(w.Graph, MainFunctionID()); err != nil {
		return err
	}
	for id, body := range w.Funcs {
		if err := walk(body, FuncFunctionID(id)); err != nil {
			return err
		}
	}
	return nil
}

func checkMergeArity(pc ProgramCounter, m MergeStrategy) error {
	switch m {
	case MergeFirst, MergeFirstBlocking, MergeLast, MergeSum, MergeProduct, MergeMax, MergeMin, MergeAll, MergeNone:
		return nil
	default:
		return &ResolveError{PC: pc, Detail: fmt.Sprintf("unknown merge strategy %q", m)}
	}
}

// ValidatePlanned checks the post-planning invariants of : every
// Node.At is set, every input is resolved, and table.Results contains
// every produced IntermediateResult name.
func (w *Workflow) ValidatePlanned() error {
	produced := map[string]bool{}
	var walk func(body []Edge) error
	walk = func(body []Edge) error {
		for _, e := range body {
			switch e.Kind {
			case EdgeNode:
				if e.At == "" {
					return fmt.Errorf("%w: task %q", ErrUnplannedLocation, e.Task)
				}
				for _, in := range e.Input {
					if !in.Avail.IsSet() {
						return fmt.Errorf("%w: %s for task %q", ErrUnplannedInput, in.Name, e.Task)
					}
				}
				if e.Result != "" {
					produced[e.Result] = true
				}
			case EdgeParallel:
				for _, branch := range e.Branches {
					if err := walk(branch); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := walk(w.Graph); err != nil {
		return err
	}
	for _, body := range w.Funcs {
		if err := walk(body); err != nil {
			return err
		}
	}
	for name := range produced {
		if _, ok := w.Table.Results[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResult, name)
		}
	}
	return nil
}
