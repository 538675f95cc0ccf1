// Package localplugin is an in-memory VmPlugin used by unit tests that
// exercise the VM without a real worker/registry/checker stack: no
// containers are launched, and Preprocess/Execute are driven entirely by
// a caller-supplied table of pure functions keyed by task name.
package localplugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/vm"
)

// TaskFunc computes a task's result purely from its arguments, standing
// in for a real container execution.
type TaskFunc func(args map[string]ir.Value) (*ir.Value, error)

// Plugin is a deterministic, in-memory VmPlugin.
type Plugin struct {
	mu      sync.Mutex
	tasks   map[string]TaskFunc
	stdout  []string
	stderr  []string
	commits []Commit
}

// Commit records one call to Plugin.Commit, for test assertions.
type Commit struct {
	At, ResultName, ResultPath, DataName, Scope string
}

func New(tasks map[string]TaskFunc) *Plugin {
	return &Plugin{tasks: tasks}
}

func (p *Plugin) Preprocess(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, _ ir.ProgramCounter, _ string, _ ir.DataName, how ir.AvailabilityKind, _ string) (ir.AccessKind, error) {
	return how.How, nil
}

func (p *Plugin) Execute(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, task vm.TaskInfo, _ string) (*ir.Value, error) {
	fn, ok := p.tasks[task.FunctionName]
	if !ok {
		return nil, fmt.Errorf("localplugin: no such task %q", task.FunctionName)
	}
	return fn(task.Arguments)
}

func (p *Plugin) Publicize(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, _, _, _, _ string) error {
	return nil
}

func (p *Plugin) Commit(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, at, resultName, resultPath, dataName, scope string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commits = append(p.commits, Commit{At: at, ResultName: resultName, ResultPath: resultPath, DataName: dataName, Scope: scope})
	return nil
}

func (p *Plugin) Stdout(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, text string, newline bool, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if newline {
		text += "\n"
	}
	p.stdout = append(p.stdout, text)
	return nil
}

func (p *Plugin) Stderr(_ context.Context, _ *vm.GlobalState, _ *vm.LocalState, text string, newline bool, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if newline {
		text += "\n"
	}
	p.stderr = append(p.stderr, text)
	return nil
}

func (p *Plugin) Stdouts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stdout...)
}

func (p *Plugin) Commits() []Commit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Commit(nil), p.commits...)
}
