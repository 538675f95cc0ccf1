package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/registry/assetstore"
	"github.com/brane-project/brane/pkg/vm"
)

// WorkerClient is the orchestrator-side abstraction over one domain's
// worker, covering exactly the gRPC entry points  lists for it
// (Preprocess, Execute, Commit — CheckWorkflow/CheckTask are internal to
// Execute's own authorization step and never surface here). A Dialer
// resolves a domain name to its WorkerClient; the Local backend's
// implementation is LocalWorkerClient below.
type WorkerClient interface {
	Preprocess(ctx context.Context, name ir.DataName, how ir.AvailabilityKind, useCase string, workflow json.RawMessage, pc *ir.ProgramCounter) (ir.AccessKind, error)
	Execute(ctx context.Context, req ExecuteRequest, emit StatusFunc) (*ir.Value, error)
	Commit(ctx context.Context, resultName, resultPath, dataName string) error
}

// Dialer resolves a domain name to the WorkerClient that serves it.
type Dialer func(domain string) (WorkerClient, error)

// LocalWorkerClient implements WorkerClient entirely in-process, wiring a
// Transferer, Executor and assetstore.Store together without a network
// hop — only mandatory backend (`Local`) run as a single
// process serving its own domain.
type LocalWorkerClient struct {
	Transfer *Transferer
	Exec     *Executor
	Assets   assetstore.Store
}

func (c *LocalWorkerClient) Preprocess(ctx context.Context, name ir.DataName, how ir.AvailabilityKind, useCase string, workflow json.RawMessage, pc *ir.ProgramCounter) (ir.AccessKind, error) {
	return c.Transfer.Preprocess(ctx, name, how, useCase, workflow, pc)
}

func (c *LocalWorkerClient) Execute(ctx context.Context, req ExecuteRequest, emit StatusFunc) (*ir.Value, error) {
	return c.Exec.Execute(ctx, req, emit)
}

func (c *LocalWorkerClient) Commit(ctx context.Context, resultName, resultPath, dataName string) error {
	info := assetstore.AssetInfo{Name: dataName, SourceDomain: c.Exec.Domain}
	return c.Assets.Put(ctx, info, resultPath)
}

// resultLocationIndex records, after the Publicize suspension point,
// which domain now holds a just-produced IntermediateResult. It is
// stored once per workflow execution in the
// Thread tree's shared GlobalState (under globalResultLocationsKey) so
// every Thread sees the same view without a network round trip: the
// result already lives wherever the task that produced it ran.
type resultLocationIndex struct {
	mu   sync.Mutex
	locs map[string]string
}

const globalResultLocationsKey = "worker.resultLocations"

func resultLocations(global *vm.GlobalState) *resultLocationIndex {
	if v, ok := global.Get(globalResultLocationsKey); ok {
		return v.(*resultLocationIndex)
	}
	idx := &resultLocationIndex{locs: make(map[string]string)}
	global.Set(globalResultLocationsKey, idx)
	return idx
}

func (idx *resultLocationIndex) put(name, domain string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.locs[name] = domain
}

func (idx *resultLocationIndex) get(name string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	d, ok := idx.locs[name]
	return d, ok
}

// Plugin is the vm.VmPlugin the orchestrator drives a workflow's VM
// Thread tree over: it dispatches every call to whichever domain's
// WorkerClient the edge or task names, scoped to one workflow execution
// (the workflow JSON and use-case/end-user never change mid-run).
type Plugin struct {
	dial         Dialer
	workflowJSON json.RawMessage
	useCase      string
	endUser      string
	onStatus     StatusFunc

	mu     sync.Mutex
	stdout []string
	stderr []string
}

// NewPlugin constructs a Plugin for one workflow execution. onStatus may
// be nil.
func NewPlugin(dial Dialer, workflow *ir.Workflow, useCase, endUser string, onStatus StatusFunc) (*Plugin, error) {
	workflowJSON, err := json.Marshal(workflow)
	if err != nil {
		return nil, fmt.Errorf("worker: marshaling workflow: %w", err)
	}
	return &Plugin{dial: dial, workflowJSON: workflowJSON, useCase: useCase, endUser: endUser, onStatus: onStatus}, nil
}

func (p *Plugin) Preprocess(ctx context.Context, _ *vm.GlobalState, _ *vm.LocalState, pc ir.ProgramCounter, at string, name ir.DataName, how ir.AvailabilityKind, _ string) (ir.AccessKind, error) {
	client, err := p.dial(at)
	if err != nil {
		return ir.AccessKind{}, fmt.Errorf("worker: dialing domain %q: %w", at, err)
	}
	return client.Preprocess(ctx, name, how, p.useCase, p.workflowJSON, &pc)
}

func (p *Plugin) Execute(ctx context.Context, _ *vm.GlobalState, _ *vm.LocalState, task vm.TaskInfo, _ string) (*ir.Value, error) {
	client, err := p.dial(task.Location)
	if err != nil {
		return nil, fmt.Errorf("worker: dialing domain %q: %w", task.Location, err)
	}
	req := ExecuteRequest{
		Workflow:       p.workflowJSON,
		PC:             task.PC,
		TaskDefID:      task.TaskDefID,
		FunctionName:   task.FunctionName,
		PackageName:    task.PackageName,
		PackageVersion: task.PackageVersion,
		Capabilities:   task.Capabilities,
		Args:           task.Arguments,
		Inputs:         task.Inputs,
		Result:         task.Result,
		UseCase:        p.useCase,
		EndUser:        p.endUser,
	}
	return client.Execute(ctx, req, p.onStatus)
}

func (p *Plugin) Publicize(_ context.Context, global *vm.GlobalState, _ *vm.LocalState, at, resultName, _, _ string) error {
	resultLocations(global).put(resultName, at)
	return nil
}

func (p *Plugin) Commit(ctx context.Context, _ *vm.GlobalState, _ *vm.LocalState, at, resultName, resultPath, dataName, _ string) error {
	client, err := p.dial(at)
	if err != nil {
		return fmt.Errorf("worker: dialing domain %q: %w", at, err)
	}
	return client.Commit(ctx, resultName, resultPath, dataName)
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

func (p *Plugin) Stderrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stderr...)
}
