package vm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brane-project/brane/pkg/ir"
	"golang.org/x/sync/errgroup"
)

// Thread interprets one edge sequence of a workflow. Each Thread owns its
// operand stack, frame stack, and local plugin state; it shares the
// global plugin state via a reader/writer lock.
//
// curBody is the edge slice t.pc.Edge currently indexes into. It is not
// always workflow.Funcs[t.pc.Func]: a Parallel branch is a bare edge
// sequence with no function id of its own, so forked threads start
// pointed at that literal slice instead. Call/Return push and restore
// curBody explicitly (via Frame.CallerBody) so both cases compose.
type Thread struct {
	workflow *ir.Workflow
	plugin   VmPlugin
	global   *GlobalState
	local    *LocalState
	scope    string

	operand *OperandStack
	frames  *FrameStack

	pc      ir.ProgramCounter
	curBody []ir.Edge
}

// NewThread creates the root thread for a workflow execution. scope is an
// opaque execution/use-case identifier forwarded to every plugin call.
func NewThread(workflow *ir.Workflow, plugin VmPlugin, global *GlobalState, scope string) *Thread {
	frames := NewFrameStack()
	_ = frames.Push(Frame{Sentinel: true, ReturnType: ir.TypeAny, VarScope: make(map[int64]ir.Value)})
	return &Thread{
		workflow: workflow,
		plugin:   plugin,
		global:   global,
		local:    NewLocalState(),
		scope:    scope,
		operand:  NewOperandStack(),
		frames:   frames,
		pc:       ir.ProgramCounter{Func: ir.MainFunctionID(), Edge: 0},
		curBody:  workflow.Graph,
	}
}

// forkChild creates an independent child thread for one Parallel branch.
// Child execution shares only the global state; its
// operand/frame stacks and local state start fresh. fn is the enclosing
// function id, carried only for PC labeling/diagnostics since branches
// have no function id of their own.
func (t *Thread) forkChild(branch []ir.Edge, fn ir.FunctionID) *Thread {
	frames := NewFrameStack()
	_ = frames.Push(Frame{Sentinel: true, ReturnType: ir.TypeAny, VarScope: make(map[int64]ir.Value)})
	return &Thread{
		workflow: t.workflow,
		plugin:   t.plugin,
		global:   t.global,
		local:    t.local.Fork(),
		scope:    t.scope,
		operand:  NewOperandStack(),
		frames:   frames,
		pc:       ir.ProgramCounter{Func: fn, Edge: 0},
		curBody:  branch,
	}
}

// Run drives the root thread to completion, returning the workflow's
// result value.
func (t *Thread) Run(ctx context.Context) (ir.Value, error) {
	return t.runLoop(ctx)
}

// runAsBranch drives a forked branch to completion. Distinct name from
// Run only for readability at call sites; the interpreter loop itself is
// identical, since Call/Return already generalize over "body" via
// curBody/Frame.CallerBody.
func (t *Thread) runAsBranch(ctx context.Context) (ir.Value, error) {
	return t.runLoop(ctx)
}

func (t *Thread) runLoop(ctx context.Context) (ir.Value, error) {
	for {
		select {
		case <-ctx.Done():
			return ir.Value{}, step(t.pc, ctx.Err())
		default:
		}

		if t.pc.Edge < 0 || t.pc.Edge >= len(t.curBody) {
			// Falling off the end of a bare edge sequence (a Parallel
			// branch with no trailing Return/Stop) is an implicit Void
			// return, matching how a function body would have to end in
			// an explicit Return.
			return ir.VoidValue(), nil
		}
		edge := &t.curBody[t.pc.Edge]

		result, next, done, err := t.step(ctx, edge)
		if err != nil {
			return ir.Value{}, err
		}
		if done {
			return result, nil
		}
		t.pc = next
	}
}

// step executes one edge and reports either the next PC to jump to, or
// (done=true, result) if the thread terminated (Return/Stop).
func (t *Thread) step(ctx context.Context, edge *ir.Edge) (result ir.Value, next ir.ProgramCounter, done bool, err error) {
	switch edge.Kind {
	case ir.EdgeNode:
		v, jerr := t.stepNode(ctx, edge)
		if jerr != nil {
			return ir.Value{}, next, false, jerr
		}
		t.operand.Push(v)
		return ir.Value{}, t.advance(edge.Next), false, nil

	case ir.EdgeLinear:
		jump, jerr := t.stepLinear(ctx, edge)
		if jerr != nil {
			return ir.Value{}, next, false, jerr
		}
		return ir.Value{}, t.advance(jump), false, nil

	case ir.EdgeBranch:
		cond, perr := t.operand.Pop()
		if perr != nil {
			return ir.Value{}, next, false, step(t.pc, perr)
		}
		if cond.DataType() != ir.TypeBoolean {
			return ir.Value{}, next, false, step(t.pc, ErrIllegalBranchType)
		}
		if cond.Bool() {
			return ir.Value{}, t.advance(edge.TrueNext), false, nil
		}
		if edge.HasFalse {
			return ir.Value{}, t.advance(edge.FalseNext), false, nil
		}
		// Absent false_next with false acts as Stop.
		return ir.VoidValue(), next, true, nil

	case ir.EdgeParallel:
		v, perr := t.stepParallel(ctx, edge)
		if perr != nil {
			return ir.Value{}, next, false, perr
		}
		t.operand.Push(v)
		return ir.Value{}, t.advance(edge.JoinNext), false, nil

	case ir.EdgeJoin:
		// Joins are consumed synchronously inside stepParallel; a bare
		// Join edge standing alone simply falls through.
		return ir.Value{}, t.advance(edge.Next), false, nil

	case ir.EdgeLoop:
		// Entering a Loop edge is an unconditional jump to the absolute
		// edge index that executes the condition; that cond block ends
		// in an ordinary Branch which drives the loop (see ir.Edge.CondPC).
		return ir.Value{}, ir.ProgramCounter{Func: t.pc.Func, Edge: edge.CondPC}, false, nil

	case ir.EdgeCall:
		jerr := t.stepCall(ctx, edge)
		if jerr != nil {
			return ir.Value{}, next, false, jerr
		}
		return ir.Value{}, t.pc, false, nil // stepCall already repositioned t.pc/t.curBody

	case ir.EdgeReturn:
		v, rerr := t.stepReturn(ctx, edge)
		if rerr != nil {
			return ir.Value{}, next, false, rerr
		}
		return v.value, v.resumePC, v.terminal, nil

	case ir.EdgeStop:
		return ir.VoidValue(), next, true, nil

	default:
		return ir.Value{}, next, false, step(t.pc, fmt.Errorf("unknown edge kind %d", edge.Kind))
	}
}

func (t *Thread) advance(delta int) ir.ProgramCounter {
	return ir.ProgramCounter{Func: t.pc.Func, Edge: t.pc.Edge + delta}
}

// returnOutcome is stepReturn's result: either the thread terminates with
// value (the sentinel frame was popped), or execution resumes at
// resumePC with the returned value already pushed back onto the operand
// stack for the caller.
type returnOutcome struct {
	value    ir.Value
	resumePC ir.ProgramCounter
	terminal bool
}

func (t *Thread) stepReturn(ctx context.Context, edge *ir.Edge) (returnOutcome, error) {
	retVal, err := t.operand.Pop()
	if err != nil {
		return returnOutcome{}, step(t.pc, err)
	}
	frame, err := t.frames.Pop()
	if err != nil {
		return returnOutcome{}, step(t.pc, err)
	}
	if !ir.AllowedBy(frame.ReturnType, retVal.DataType()) {
		return returnOutcome{}, step(t.pc, fmt.Errorf("%w: declared %s, got %s", ErrReturnType, frame.ReturnType, retVal.DataType()))
	}
	if frame.Sentinel {
		return returnOutcome{value: retVal, terminal: true}, nil
	}
	t.curBody = frame.CallerBody
	t.operand.Push(retVal)
	return returnOutcome{resumePC: frame.ReturnPC, terminal: false}, nil
}

// stepCall pops the callee (Function or Method) and repositions t.pc/
// t.curBody at its first edge, pushing a new frame so Return can restore
// the caller's body and resume at the call site. Method values splice
// their bound receiver onto the stack ahead of the already-pushed
// arguments, restoring arity-correct order.
func (t *Thread) stepCall(ctx context.Context, edge *ir.Edge) error {
	callee, err := t.operand.Pop()
	if err != nil {
		return step(t.pc, err)
	}

	var funcDefID int64
	switch callee.DataType() {
	case ir.TypeFunction:
		funcDefID = callee.FuncDefID()
	case ir.TypeMethod:
		funcDefID = callee.MethodFuncDefID()
		for _, v := range callee.MethodValues() {
			t.operand.Push(v)
		}
	default:
		return step(t.pc, ErrFunctionType)
	}

	def, ok := t.workflow.Table.Func(funcDefID)
	if !ok {
		return step(t.pc, fmt.Errorf("%w: func id %d", ErrFunctionType, funcDefID))
	}
	calleeBody, ok := t.workflow.Funcs[funcDefID]
	if !ok {
		return step(t.pc, fmt.Errorf("%w: no body for func id %d", ErrFunctionType, funcDefID))
	}

	returnPC := t.advance(edge.Next)
	if err := t.frames.Push(Frame{
		ReturnPC:   returnPC,
		ReturnType: def.ReturnType,
		CallerBody: t.curBody,
		VarScope:   make(map[int64]ir.Value),
	}); err != nil {
		return step(t.pc, err)
	}
	t.curBody = calleeBody
	t.pc = ir.ProgramCounter{Func: ir.FuncFunctionID(funcDefID), Edge: 0}
	return nil
}

func (t *Thread) currentVarScope() (map[int64]ir.Value, error) {
	frame, err := t.frames.Top()
	if err != nil {
		return nil, err
	}
	return frame.VarScope, nil
}

// encodeValueForStdout renders a Value the way task stdout decoding
// expects downstream: a compact JSON encoding.
func encodeValueForStdout(v ir.Value) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// joinScopeID derives a stable scope label for a forked child, used only
// for plugin call tracing (e.g. request correlation).
func joinScopeID(parent string, branch int) string {
	return fmt.Sprintf("%s/branch-%d", parent, branch)
}

// runParallelBranches forks one thread per branch on the ambient executor
// (here, one goroutine per branch via errgroup) and awaits all of them.
func (t *Thread) runParallelBranches(ctx context.Context, branches [][]ir.Edge) ([]ir.Value, error) {
	results := make([]ir.Value, len(branches))
	g, gctx := errgroup.WithContext(ctx)
	for i, branch := range branches {
		i, branch := i, branch
		g.Go(func() error {
			child := t.forkChild(branch, t.pc.Func)
			child.scope = joinScopeID(t.scope, i)
			v, err := child.runAsBranch(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	return results, nil
}
