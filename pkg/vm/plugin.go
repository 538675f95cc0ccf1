package vm

import (
	"context"
	"sync"

	"github.com/brane-project/brane/pkg/ir"
)

// TaskInfo is everything VmPlugin.Execute needs to run a task at its
// planned location.
type TaskInfo struct {
	PC             ir.ProgramCounter
	TaskDefID      int64
	FunctionName   string
	PackageName    string
	PackageVersion string
	Capabilities   []string
	Arguments      map[string]ir.Value
	Location       string
	Inputs         map[ir.DataName]ir.AccessKind
	Result         string // empty if the task has no declared result name
}

// GlobalState is the plugin state shared across all threads forked from
// one workflow execution. Access is mediated by a reader/writer lock per
// ; write access is expected to be rare and short.
type GlobalState struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewGlobalState() *GlobalState {
	return &GlobalState{data: make(map[string]any)}
}

func (g *GlobalState) Get(key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.data[key]
	return v, ok
}

func (g *GlobalState) Set(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[key] = value
}

// LocalState is a single thread's private plugin state; it is never
// shared across threads, including forked children.
type LocalState struct {
	data map[string]any
}

func NewLocalState() *LocalState {
	return &LocalState{data: make(map[string]any)}
}

func (l *LocalState) Get(key string) (any, bool) {
	v, ok := l.data[key]
	return v, ok
}

func (l *LocalState) Set(key string, value any) {
	l.data[key] = value
}

// Fork produces a child thread's independent local state. Forked
// threads are independent except for shared global state, so the child
// starts from a fresh LocalState rather than inheriting the
// parent's.
func (l *LocalState) Fork() *LocalState {
	return NewLocalState()
}

// VmPlugin is the abstract boundary the VM is parametric over. Every
// method is async and is a defined suspension point for the
// owning Thread.
type VmPlugin interface {
	// Preprocess makes a remote datum locally accessible, returning the
	// AccessKind the task should use to read it. how carries both the
	// planner's access hint and, for Unavailable data, the source domain
	// to fetch it from.
	Preprocess(ctx context.Context, global *GlobalState, local *LocalState, pc ir.ProgramCounter, at string, name ir.DataName, how ir.AvailabilityKind, scope string) (ir.AccessKind, error)

	// Execute runs a task at its planned location. A nil returned Value
	// pointer means the task produced no return value (Void).
	Execute(ctx context.Context, global *GlobalState, local *LocalState, task TaskInfo, scope string) (*ir.Value, error)

	// Publicize marks an intermediate result as reachable for the next
	// consumer, without promoting it to a first-class dataset.
	Publicize(ctx context.Context, global *GlobalState, local *LocalState, at, resultName, resultPath, scope string) error

	// Commit promotes an intermediate result to a first-class dataset.
	Commit(ctx context.Context, global *GlobalState, local *LocalState, at, resultName, resultPath string, dataName string, scope string) error

	Stdout(ctx context.Context, global *GlobalState, local *LocalState, text string, newline bool, scope string) error
	Stderr(ctx context.Context, global *GlobalState, local *LocalState, text string, newline bool, scope string) error
}
