package vm

import (
	"context"
	"fmt"

	"github.com/brane-project/brane/pkg/ir"
)

// stepNode resolves a task's inputs through the plugin's Preprocess hook,
// pops its plain-value arguments off the operand stack in declaration
// order, and hands the assembled TaskInfo to VmPlugin.Execute.
func (t *Thread) stepNode(ctx context.Context, edge *ir.Edge) (ir.Value, error) {
	if edge.At == "" {
		return ir.Value{}, step(t.pc, ErrUnresolvedLocation)
	}

	def, ok := t.workflow.Table.Func(edge.TaskFunc)
	if !ok {
		return ir.Value{}, step(t.pc, fmt.Errorf("%w: task %q", ErrFunctionType, edge.Task))
	}

	args, err := t.operand.PopN(len(def.Parameters))
	if err != nil {
		return ir.Value{}, step(t.pc, err)
	}
	arguments := make(map[string]ir.Value, len(def.Parameters))
	for i, p := range def.Parameters {
		arguments[p.Name] = args[i]
	}

	inputs := make(map[ir.DataName]ir.AccessKind, len(edge.Input))
	for _, in := range edge.Input {
		if !in.Avail.IsSet() {
			return ir.Value{}, step(t.pc, fmt.Errorf("%w: %s", ErrUnplannedInput, in.Name))
		}
		resolved, perr := t.plugin.Preprocess(ctx, t.global, t.local, t.pc, edge.At, in.Name, in.Avail, t.scope)
		if perr != nil {
			return ir.Value{}, &CustomError{Err: perr}
		}
		inputs[in.Name] = resolved
	}

	info := TaskInfo{
		PC:             t.pc,
		TaskDefID:      edge.TaskFunc,
		FunctionName:   def.Name,
		PackageName:    def.PackageName,
		PackageVersion: def.PackageVersion,
		Capabilities:   def.Capabilities,
		Arguments:      arguments,
		Location:       edge.At,
		Inputs:         inputs,
		Result:         edge.Result,
	}
	ret, err := t.plugin.Execute(ctx, t.global, t.local, info, t.scope)
	if err != nil {
		return ir.Value{}, &CustomError{Err: err}
	}
	if ret == nil {
		return ir.VoidValue(), nil
	}
	if !ir.AllowedBy(def.ReturnType, ret.DataType()) {
		return ir.Value{}, step(t.pc, fmt.Errorf("%w: task %q declared %s, got %s", ErrReturnType, edge.Task, def.ReturnType, ret.DataType()))
	}
	return *ret, nil
}

// stepParallel forks one thread per branch and reconciles their results
// with the edge's declared merge strategy. Both First and FirstBlocking
// wait for every branch to finish in this implementation: the VM never
// kills an already-launched task, so there is no way to "abandon" a
// slower branch early without leaking its container .
func (t *Thread) stepParallel(ctx context.Context, edge *ir.Edge) (ir.Value, error) {
	results, err := t.runParallelBranches(ctx, edge.Branches)
	if err != nil {
		return ir.Value{}, err
	}
	merged, err := ApplyMerge(edge.Merge, results)
	if err != nil {
		return ir.Value{}, step(t.pc, err)
	}
	return merged, nil
}

// stepLinear runs a Linear edge's straight-line micro-op sequence to
// completion, returning the edge-level jump (always edge.Next: internal
// branches only move the instruction pointer within this edge's own
// Instrs slice, e.g. for short-circuit boolean operators).
func (t *Thread) stepLinear(ctx context.Context, edge *ir.Edge) (int, error) {
	scope, err := t.currentVarScope()
	if err != nil {
		return 0, step(t.pc, err)
	}

	for ip := 0; ip < len(edge.Instrs); ip++ {
		instr := &edge.Instrs[ip]
		jump, err := t.execInstr(instr, scope)
		if err != nil {
			return 0, step(t.pc, err)
		}
		if jump != 0 {
			ip += jump - 1 // loop's ip++ accounts for the remaining +1
		}
	}
	return edge.Next, nil
}

// execInstr runs one micro-op. A non-zero return is an instruction-pointer
// delta relative to the current instruction (for OpBranch/OpBranchNot).
func (t *Thread) execInstr(instr *ir.Instr, scope map[int64]ir.Value) (int, error) {
	switch instr.Op {
	case ir.OpPushBool:
		t.operand.Push(ir.BoolValue(instr.BoolLit))
	case ir.OpPushInt:
		t.operand.Push(ir.IntValue(instr.IntLit))
	case ir.OpPushReal:
		t.operand.Push(ir.RealValue(instr.RealLit))
	case ir.OpPushString:
		t.operand.Push(ir.StringValue(instr.StringLit))
	case ir.OpPushFunction:
		t.operand.Push(ir.FunctionValue(instr.FuncLit))

	case ir.OpCast:
		v, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		cast, err := castValue(v, instr.CastTo)
		if err != nil {
			return 0, err
		}
		t.operand.Push(cast)

	case ir.OpPop:
		if _, err := t.operand.Pop(); err != nil {
			return 0, err
		}

	case ir.OpPopMarker:
		// No-op scope boundary marker; the values it would bound are
		// already cleaned up by their own Pop/VarUndec instructions.

	case ir.OpDynamicPop:
		count, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if count.DataType() != ir.TypeInteger {
			return 0, ErrStackType
		}
		if _, err := t.operand.PopN(int(count.Int())); err != nil {
			return 0, err
		}

	case ir.OpBranch:
		return instr.Offset, nil

	case ir.OpBranchNot:
		cond, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if cond.DataType() != ir.TypeBoolean {
			return 0, ErrIllegalBranchType
		}
		if !cond.Bool() {
			return instr.Offset, nil
		}

	case ir.OpNot:
		v, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if v.DataType() != ir.TypeBoolean {
			return 0, ErrStackType
		}
		t.operand.Push(ir.BoolValue(!v.Bool()))

	case ir.OpNeg:
		v, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		switch v.DataType() {
		case ir.TypeInteger:
			t.operand.Push(ir.IntValue(-v.Int()))
		case ir.TypeReal:
			t.operand.Push(ir.RealValue(-v.Real()))
		default:
			return 0, ErrStackType
		}

	case ir.OpAnd, ir.OpOr:
		rhs, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		lhs, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if lhs.DataType() != ir.TypeBoolean || rhs.DataType() != ir.TypeBoolean {
			return 0, ErrLhsRhsType
		}
		if instr.Op == ir.OpAnd {
			t.operand.Push(ir.BoolValue(lhs.Bool() && rhs.Bool()))
		} else {
			t.operand.Push(ir.BoolValue(lhs.Bool() || rhs.Bool()))
		}

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		v, err := t.execArith(instr.Op)
		if err != nil {
			return 0, err
		}
		t.operand.Push(v)

	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		v, err := t.execCompare(instr.Op)
		if err != nil {
			return 0, err
		}
		t.operand.Push(v)

	case ir.OpArray:
		elems, err := t.operand.PopN(instr.ArrayLen)
		if err != nil {
			return 0, err
		}
		for _, e := range elems {
			if instr.ElemType != ir.TypeAny && e.DataType() != instr.ElemType {
				return 0, ErrStackType
			}
		}
		t.operand.Push(ir.ArrayValue(elems))

	case ir.OpArrayIndex:
		idx, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		arr, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if arr.DataType() != ir.TypeArray || idx.DataType() != ir.TypeInteger {
			return 0, ErrStackType
		}
		elems := arr.Array()
		i := idx.Int()
		if i < 0 || int(i) >= len(elems) {
			return 0, ErrArrayIndexOOB
		}
		t.operand.Push(elems[i])

	case ir.OpInstance:
		v, err := t.execInstance(instr)
		if err != nil {
			return 0, err
		}
		t.operand.Push(v)

	case ir.OpProj:
		v, err := t.execProj(instr)
		if err != nil {
			return 0, err
		}
		t.operand.Push(v)

	case ir.OpVarDec:
		v, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if _, exists := scope[instr.VarDefID]; exists {
			return 0, ErrVarAlreadyDeclared
		}
		scope[instr.VarDefID] = v

	case ir.OpVarUndec:
		delete(scope, instr.VarDefID)

	case ir.OpVarGet:
		v, ok := scope[instr.VarDefID]
		if !ok {
			return 0, ErrVarNotDeclared
		}
		t.operand.Push(v)

	case ir.OpVarSet:
		v, err := t.operand.Pop()
		if err != nil {
			return 0, err
		}
		if _, ok := scope[instr.VarDefID]; !ok {
			return 0, ErrVarNotDeclared
		}
		scope[instr.VarDefID] = v

	default:
		return 0, fmt.Errorf("unknown instruction op %d", instr.Op)
	}
	return 0, nil
}

func (t *Thread) execArith(op ir.InstrOp) (ir.Value, error) {
	rhs, err := t.operand.Pop()
	if err != nil {
		return ir.Value{}, err
	}
	lhs, err := t.operand.Pop()
	if err != nil {
		return ir.Value{}, err
	}

	if op == ir.OpAdd && lhs.DataType() == ir.TypeString && rhs.DataType() == ir.TypeString {
		return ir.StringValue(lhs.Str() + rhs.Str()), nil
	}
	if lhs.DataType() != rhs.DataType() || !ir.IsNumeric(lhs.DataType()) {
		return ir.Value{}, ErrLhsRhsType
	}

	if lhs.DataType() == ir.TypeInteger {
		a, b := lhs.Int(), rhs.Int()
		switch op {
		case ir.OpAdd:
			return ir.IntValue(a + b), nil
		case ir.OpSub:
			return ir.IntValue(a - b), nil
		case ir.OpMul:
			return ir.IntValue(a * b), nil
		case ir.OpDiv:
			if b == 0 {
				return ir.Value{}, ErrDivideByZero
			}
			return ir.IntValue(a / b), nil
		case ir.OpMod:
			if b == 0 {
				return ir.Value{}, ErrDivideByZero
			}
			return ir.IntValue(a % b), nil
		}
	}

	a, b := lhs.Real(), rhs.Real()
	switch op {
	case ir.OpAdd:
		return ir.RealValue(a + b), nil
	case ir.OpSub:
		return ir.RealValue(a - b), nil
	case ir.OpMul:
		return ir.RealValue(a * b), nil
	case ir.OpDiv:
		if b == 0 {
			return ir.Value{}, ErrDivideByZero
		}
		return ir.RealValue(a / b), nil
	case ir.OpMod:
		return ir.Value{}, ErrStackType // Mod is integer-only
	}
	return ir.Value{}, ErrStackType
}

func (t *Thread) execCompare(op ir.InstrOp) (ir.Value, error) {
	rhs, err := t.operand.Pop()
	if err != nil {
		return ir.Value{}, err
	}
	lhs, err := t.operand.Pop()
	if err != nil {
		return ir.Value{}, err
	}

	if op == ir.OpEq {
		return ir.BoolValue(valuesEqual(lhs, rhs)), nil
	}
	if op == ir.OpNe {
		return ir.BoolValue(!valuesEqual(lhs, rhs)), nil
	}

	if lhs.DataType() != rhs.DataType() {
		return ir.Value{}, ErrLhsRhsType
	}
	switch lhs.DataType() {
	case ir.TypeInteger:
		a, b := lhs.Int(), rhs.Int()
		return ir.BoolValue(intCompare(op, a, b)), nil
	case ir.TypeReal:
		a, b := lhs.Real(), rhs.Real()
		return ir.BoolValue(realCompare(op, a, b)), nil
	case ir.TypeString:
		a, b := lhs.Str(), rhs.Str()
		return ir.BoolValue(stringCompare(op, a, b)), nil
	default:
		return ir.Value{}, ErrStackType
	}
}

func intCompare(op ir.InstrOp, a, b int64) bool {
	switch op {
	case ir.OpLt:
		return a < b
	case ir.OpLe:
		return a <= b
	case ir.OpGt:
		return a > b
	case ir.OpGe:
		return a >= b
	}
	return false
}

func realCompare(op ir.InstrOp, a, b float64) bool {
	switch op {
	case ir.OpLt:
		return a < b
	case ir.OpLe:
		return a <= b
	case ir.OpGt:
		return a > b
	case ir.OpGe:
		return a >= b
	}
	return false
}

func stringCompare(op ir.InstrOp, a, b string) bool {
	switch op {
	case ir.OpLt:
		return a < b
	case ir.OpLe:
		return a <= b
	case ir.OpGt:
		return a > b
	case ir.OpGe:
		return a >= b
	}
	return false
}

func valuesEqual(a, b ir.Value) bool {
	if a.DataType() != b.DataType() {
		return false
	}
	switch a.DataType() {
	case ir.TypeVoid:
		return true
	case ir.TypeBoolean:
		return a.Bool() == b.Bool()
	case ir.TypeInteger:
		return a.Int() == b.Int()
	case ir.TypeReal:
		return a.Real() == b.Real()
	case ir.TypeString:
		return a.Str() == b.Str()
	case ir.TypeData, ir.TypeIntermediateResult:
		return a.DataName() == b.DataName()
	case ir.TypeArray:
		ea, eb := a.Array(), b.Array()
		if len(ea) != len(eb) {
			return false
		}
		for i := range ea {
			if !valuesEqual(ea[i], eb[i]) {
				return false
			}
		}
		return true
	case ir.TypeInstance:
		if a.InstanceClassID() != b.InstanceClassID() {
			return false
		}
		fa, fb := a.InstanceFields(), b.InstanceFields()
		if len(fa) != len(fb) {
			return false
		}
		for k, v := range fa {
			ov, ok := fb[k]
			if !ok || !valuesEqual(v, ov) {
				return false
			}
		}
		return true
	case ir.TypeFunction:
		return a.FuncDefID() == b.FuncDefID()
	default:
		return false
	}
}

func castValue(v ir.Value, to ir.DataType) (ir.Value, error) {
	if v.DataType() == to {
		return v, nil
	}
	switch {
	case v.DataType() == ir.TypeInteger && to == ir.TypeReal:
		return ir.RealValue(float64(v.Int())), nil
	case v.DataType() == ir.TypeReal && to == ir.TypeInteger:
		return ir.IntValue(int64(v.Real())), nil
	case to == ir.TypeAny:
		return v, nil
	default:
		return ir.Value{}, ErrCast
	}
}

// execInstance builds an Instance value, special-casing the two builtin
// classes that wrap a bare data name  instead of going
// through the symbol table's class definitions.
func (t *Thread) execInstance(instr *ir.Instr) (ir.Value, error) {
	switch instr.ClassID {
	case ir.BuiltinClassData:
		name, err := t.operand.Pop()
		if err != nil {
			return ir.Value{}, err
		}
		if name.DataType() != ir.TypeString {
			return ir.Value{}, ErrStackType
		}
		return ir.DataValue(name.Str()), nil
	case ir.BuiltinClassIntermediateResult:
		name, err := t.operand.Pop()
		if err != nil {
			return ir.Value{}, err
		}
		if name.DataType() != ir.TypeString {
			return ir.Value{}, ErrStackType
		}
		return ir.ResultValue(name.Str()), nil
	}

	class, ok := t.workflow.Table.Class(instr.ClassID)
	if !ok {
		return ir.Value{}, fmt.Errorf("%w: class id %d", ErrStackType, instr.ClassID)
	}
	values, err := t.operand.PopN(len(class.Properties))
	if err != nil {
		return ir.Value{}, err
	}
	fields := make(map[string]ir.Value, len(class.Properties))
	for i, p := range class.Properties {
		fields[p.Name] = values[i]
	}
	return ir.InstanceValue(instr.ClassID, fields), nil
}

// execProj reads a field or binds a method off an Instance, dispatching
// dynamically by class id since the static type only narrows to "some
// instance of this class's declared type".
func (t *Thread) execProj(instr *ir.Instr) (ir.Value, error) {
	recv, err := t.operand.Pop()
	if err != nil {
		return ir.Value{}, err
	}
	if recv.DataType() != ir.TypeInstance {
		return ir.Value{}, ErrStackType
	}
	if v, ok := recv.InstanceFields()[instr.Field]; ok {
		return v, nil
	}
	class, ok := t.workflow.Table.Class(recv.InstanceClassID())
	if !ok {
		return ir.Value{}, fmt.Errorf("%w: class id %d", ErrProjUnknownField, recv.InstanceClassID())
	}
	for _, m := range class.Methods {
		if m.Name == instr.Field {
			return ir.MethodValue([]ir.Value{recv}, recv.InstanceClassID(), m.FuncID), nil
		}
	}
	return ir.Value{}, fmt.Errorf("%w: %q", ErrProjUnknownField, instr.Field)
}
