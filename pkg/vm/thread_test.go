package vm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/vm"
	"github.com/brane-project/brane/pkg/vm/localplugin"
)

func newWorkflow(graph []ir.Edge, funcs map[int64][]ir.Edge, table *ir.Table) *ir.Workflow {
	if table == nil {
		table = ir.NewTable()
	}
	return &ir.Workflow{Graph: graph, Funcs: funcs, Table: table, Metadata: map[string]string{}}
}

func runRoot(t *testing.T, wf *ir.Workflow, plugin vm.VmPlugin) (ir.Value, error) {
	t.Helper()
	th := vm.NewThread(wf, plugin, vm.NewGlobalState(), "test")
	return th.Run(context.Background())
}

// 2 + 3 via Linear arithmetic, then Return.
func TestArithmeticAddAndReturn(t *testing.T) {
	graph := []ir.Edge{
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{
			{Op: ir.OpPushInt, IntLit: 2},
			{Op: ir.OpPushInt, IntLit: 3},
			{Op: ir.OpAdd},
		}, Next: 1},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, nil)
	v, err := runRoot(t, wf, localplugin.New(nil))
	require.NoError(t, err)
	assert.Equal(t, ir.TypeInteger, v.DataType())
	assert.Equal(t, int64(5), v.Int())
}

func TestDivideByZero(t *testing.T) {
	graph := []ir.Edge{
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{
			{Op: ir.OpPushInt, IntLit: 10},
			{Op: ir.OpPushInt, IntLit: 0},
			{Op: ir.OpDiv},
		}, Next: 1},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, nil)
	_, err := runRoot(t, wf, localplugin.New(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrDivideByZero)
}

// A single Node edge that calls out to the "double" task via the plugin.
func TestNodeExecutesTask(t *testing.T) {
	table := ir.NewTable()
	table.Funcs[1] = &ir.FuncDef{
		ID:         1,
		Name:       "double",
		Parameters: []ir.Property{{Name: "x", Type: ir.TypeInteger}},
		ReturnType: ir.TypeInteger,
	}
	graph := []ir.Edge{
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushInt, IntLit: 21}}, Next: 1},
		{Kind: ir.EdgeNode, Task: "double", TaskFunc: 1, At: "worker-a", Result: "r1", Next: 1},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, table)
	plugin := localplugin.New(map[string]localplugin.TaskFunc{
		"double": func(args map[string]ir.Value) (*ir.Value, error) {
			v := ir.IntValue(args["x"].Int() * 2)
			return &v, nil
		},
	})
	v, err := runRoot(t, wf, plugin)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
}

// Two parallel branches summed at Join.
func TestParallelMergeSum(t *testing.T) {
	graph := []ir.Edge{
		{
			Kind: ir.EdgeParallel,
			Branches: [][]ir.Edge{
				{
					{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushInt, IntLit: 4}}, Next: 1},
					{Kind: ir.EdgeReturn},
				},
				{
					{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushInt, IntLit: 9}}, Next: 1},
					{Kind: ir.EdgeReturn},
				},
			},
			Merge:    ir.MergeSum,
			JoinNext: 1,
		},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, nil)
	v, err := runRoot(t, wf, localplugin.New(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(13), v.Int())
}

func TestParallelMergeAllProducesArray(t *testing.T) {
	graph := []ir.Edge{
		{
			Kind: ir.EdgeParallel,
			Branches: [][]ir.Edge{
				{{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushBool, BoolLit: true}}, Next: 1}, {Kind: ir.EdgeReturn}},
				{{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushBool, BoolLit: false}}, Next: 1}, {Kind: ir.EdgeReturn}},
			},
			Merge:    ir.MergeAll,
			JoinNext: 1,
		},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, nil)
	v, err := runRoot(t, wf, localplugin.New(nil))
	require.NoError(t, err)
	require.Equal(t, ir.TypeArray, v.DataType())
	assert.Len(t, v.Array(), 2)
}

// Call a zero-arg user function via a Call edge, exercising frame
// push/pop and curBody save/restore across the call boundary.
func TestCallAndReturn(t *testing.T) {
	table := ir.NewTable()
	table.Funcs[8] = &ir.FuncDef{ID: 8, Name: "fortytwo", ReturnType: ir.TypeInteger}
	funcs := map[int64][]ir.Edge{
		8: {
			{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushInt, IntLit: 42}}, Next: 1},
			{Kind: ir.EdgeReturn},
		},
	}
	graph := []ir.Edge{
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpPushFunction, FuncLit: 8}}, Next: 1},
		{Kind: ir.EdgeCall, Next: 1},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, funcs, table)
	v, err := runRoot(t, wf, localplugin.New(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())
}

func TestStructuredLoopSumsToTen(t *testing.T) {
	// Locals: 0 = i (starts 0), 1 = acc (starts 0).
	// cond (edge 2) computes i < 5; the branch (edge 3) jumps true into
	// the body (edge 4) or false past the loop to edge 5.
	graph := []ir.Edge{
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{
			{Op: ir.OpPushInt, IntLit: 0},
			{Op: ir.OpVarDec, VarDefID: 0, VarType: ir.TypeInteger},
			{Op: ir.OpPushInt, IntLit: 0},
			{Op: ir.OpVarDec, VarDefID: 1, VarType: ir.TypeInteger},
		}, Next: 1},
		{Kind: ir.EdgeLoop, CondPC: 2},
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{
			{Op: ir.OpVarGet, VarDefID: 0},
			{Op: ir.OpPushInt, IntLit: 5},
			{Op: ir.OpLt},
		}, Next: 1},
		{Kind: ir.EdgeBranch, TrueNext: 1, HasFalse: true, FalseNext: 2},
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{
			{Op: ir.OpVarGet, VarDefID: 1},
			{Op: ir.OpVarGet, VarDefID: 0},
			{Op: ir.OpAdd},
			{Op: ir.OpVarSet, VarDefID: 1},
			{Op: ir.OpVarGet, VarDefID: 0},
			{Op: ir.OpPushInt, IntLit: 1},
			{Op: ir.OpAdd},
			{Op: ir.OpVarSet, VarDefID: 0},
		}, Next: -3}, // jump back to the Loop edge (index 1) to re-enter
		{Kind: ir.EdgeLinear, Instrs: []ir.Instr{{Op: ir.OpVarGet, VarDefID: 1}}, Next: 1},
		{Kind: ir.EdgeReturn},
	}
	wf := newWorkflow(graph, nil, nil)
	v, err := runRoot(t, wf, localplugin.New(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0+1+2+3+4), v.Int())
}
