package ir

// MergeStrategy is the law applied when a Join reconciles the return
// values of a Parallel's branches.
type MergeStrategy string

const (
	MergeFirst         MergeStrategy = "first"
	MergeFirstBlocking MergeStrategy = "first_blocking"
	MergeLast          MergeStrategy = "last"
	MergeSum           MergeStrategy = "sum"
	MergeProduct       MergeStrategy = "product"
	MergeMax           MergeStrategy = "max"
	MergeMin           MergeStrategy = "min"
	MergeAll           MergeStrategy = "all"
	MergeNone          MergeStrategy = "none"
)

// EdgeKind discriminates the Edge sum type.
type EdgeKind int

const (
	EdgeNode EdgeKind = iota
	EdgeLinear
	EdgeBranch
	EdgeParallel
	EdgeJoin
	EdgeLoop
	EdgeCall
	EdgeReturn
	EdgeStop
)

// NodeInput is the planned availability of one named datum feeding a Node.
type NodeInput struct {
	Name        DataName
	Avail       AvailabilityKind // zero value until the planner fills it in
}

// Edge is the sum type of the workflow graph's dynamic steps. Exactly one
// of the Kind-tagged field groups is meaningful for any given Edge value.
type Edge struct {
	Kind EdgeKind

	// Node
	Task     string // human-readable task/function name, for logging and dispatch
	TaskFunc int64  // Table.Funcs id backing this task's signature
	Locs     []string // nil/empty means "All": planner may choose any capable domain
	At       string   // filled in by the planner; empty until planned
	Input    []NodeInput
	Result   string // name of the produced IntermediateResult, if any
	Metadata map[string]string
	Next     int // signed delta to the next edge index within the same function body

	// Linear
	Instrs []Instr

	// Branch
	TrueNext  int
	FalseNext int
	HasFalse  bool
	Merge     MergeStrategy // only meaningful when this Branch feeds a Join

	// Parallel
	Branches [][]Edge // each branch is its own independent edge sequence
	// Merge reused from above for Parallel/Join

	// Join
	JoinNext int

	// Loop: entering the edge jumps to the absolute edge index CondPC
	// within the same function body, which executes the condition and
	// ends in an ordinary Branch: true jumps into the loop body, and the
	// body's last edge jumps back to CondPC to re-enter: structured loops
	// are expressed by re-entering the cond block. False jumps to the
	// Branch's false_next, past the loop; with no false_next the thread
	// stops.
	CondPC int

	// Call
	CallInput  int // arity, informational; actual values come off the stack
	CallResult string

	// Return: value comes off the top of the operand stack
}

// Instr is one straight-line stack micro-op inside a Linear edge.
type InstrOp int

const (
	OpPushBool InstrOp = iota
	OpPushInt
	OpPushReal
	OpPushString
	OpPushFunction
	OpCast
	OpPop
	OpPopMarker
	OpDynamicPop
	OpBranch
	OpBranchNot
	OpNot
	OpNeg
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpArray
	OpArrayIndex
	OpInstance
	OpProj
	OpVarDec
	OpVarUndec
	OpVarGet
	OpVarSet
)

// Instr carries the operand for whichever OpXxx it names; unused fields
// are zero.
type Instr struct {
	Op InstrOp

	BoolLit   bool
	IntLit    int64
	RealLit   float64
	StringLit string
	FuncLit   int64

	CastTo DataType

	Offset int // Branch/BranchNot signed jump delta

	ArrayLen  int
	ElemType  DataType

	ResType DataType // ArrayIndex result type

	ClassID int64 // Instance

	Field string // Proj

	VarDefID int64 // VarDec/VarUndec/VarGet/VarSet
	VarType  DataType // VarDec
}

// builtin class ids reserved for the special-cased Data/IntermediateResult
// instance construction mentioned in .
const (
	BuiltinClassData               int64 = -1
	BuiltinClassIntermediateResult int64 = -2
)
