package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/vm"
	"github.com/brane-project/brane/pkg/worker"
)

type fakeWorkerClient struct {
	preprocessResult ir.AccessKind
	preprocessErr    error
	executeResult    *ir.Value
	executeErr       error
	commitErr        error

	lastPreprocessName ir.DataName
	lastExecuteReq     worker.ExecuteRequest
	lastCommit         [3]string
}

func (c *fakeWorkerClient) Preprocess(_ context.Context, name ir.DataName, _ ir.AvailabilityKind, _ string, _ json.RawMessage, _ *ir.ProgramCounter) (ir.AccessKind, error) {
	c.lastPreprocessName = name
	return c.preprocessResult, c.preprocessErr
}

func (c *fakeWorkerClient) Execute(_ context.Context, req worker.ExecuteRequest, _ worker.StatusFunc) (*ir.Value, error) {
	c.lastExecuteReq = req
	return c.executeResult, c.executeErr
}

func (c *fakeWorkerClient) Commit(_ context.Context, resultName, resultPath, dataName string) error {
	c.lastCommit = [3]string{resultName, resultPath, dataName}
	return c.commitErr
}

func testWorkflow(t *testing.T) *ir.Workflow {
	t.Helper()
	return &ir.Workflow{
		Graph: []ir.Edge{{Kind: ir.EdgeReturn}},
		Table: ir.NewTable(),
	}
}

func TestPlugin_PreprocessDialsTheNamedDomain(t *testing.T) {
	client := &fakeWorkerClient{preprocessResult: ir.FileAccess("/data/weather")}
	var dialed string
	dial := func(domain string) (worker.WorkerClient, error) {
		dialed = domain
		return client, nil
	}

	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	access, err := p.Preprocess(context.Background(), nil, nil, ir.ProgramCounter{}, "domain-b", ir.Dataset("weather"), ir.Unavailable(ir.FileAccess("weather"), "domain-a"), "scope")
	require.NoError(t, err)
	assert.Equal(t, "domain-b", dialed)
	assert.Equal(t, ir.Dataset("weather"), client.lastPreprocessName)
	assert.Equal(t, "/data/weather", access.Path)
}

func TestPlugin_PreprocessDialFailurePropagates(t *testing.T) {
	dial := func(string) (worker.WorkerClient, error) { return nil, fmt.Errorf("unreachable") }
	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	_, err = p.Preprocess(context.Background(), nil, nil, ir.ProgramCounter{}, "domain-b", ir.Dataset("weather"), ir.AvailabilityKind{}, "scope")
	assert.Error(t, err)
}

func TestPlugin_ExecuteCarriesWorkflowAndUseCaseThrough(t *testing.T) {
	client := &fakeWorkerClient{executeResult: intPtr(ir.IntValue(7))}
	dial := func(string) (worker.WorkerClient, error) { return client, nil }

	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	task := vm.TaskInfo{Location: "domain-a", FunctionName: "add", Result: "out"}
	value, err := p.Execute(context.Background(), nil, nil, task, "scope")
	require.NoError(t, err)
	assert.Equal(t, int64(7), value.Int())
	assert.Equal(t, "usecase-1", client.lastExecuteReq.UseCase)
	assert.Equal(t, "alice", client.lastExecuteReq.EndUser)
	assert.Equal(t, "out", client.lastExecuteReq.Result)
	assert.NotEmpty(t, client.lastExecuteReq.Workflow)
}

func TestPlugin_PublicizeRecordsLocationInGlobalState(t *testing.T) {
	dial := func(string) (worker.WorkerClient, error) { return nil, nil }
	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	global := vm.NewGlobalState()
	require.NoError(t, p.Publicize(context.Background(), global, nil, "domain-b", "res1", "/tmp/res1", "scope"))
	first, ok := global.Get("worker.resultLocations")
	require.True(t, ok)

	// A second Plugin instance sharing the same GlobalState records into
	// the same location index: Publicize is GlobalState-scoped, not
	// Plugin-scoped, matching one workflow execution's shared state.
	p2, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, p2.Publicize(context.Background(), global, nil, "domain-c", "res2", "/tmp/res2", "scope"))
	second, ok := global.Get("worker.resultLocations")
	require.True(t, ok)
	assert.Same(t, first, second)
}

func TestPlugin_CommitDialsTheNamedDomain(t *testing.T) {
	client := &fakeWorkerClient{}
	var dialed string
	dial := func(domain string) (worker.WorkerClient, error) {
		dialed = domain
		return client, nil
	}
	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	err = p.Commit(context.Background(), nil, nil, "domain-b", "res1", "/tmp/res1", "final", "scope")
	require.NoError(t, err)
	assert.Equal(t, "domain-b", dialed)
	assert.Equal(t, [3]string{"res1", "/tmp/res1", "final"}, client.lastCommit)
}

func TestPlugin_StdoutAccumulatesWithNewlines(t *testing.T) {
	dial := func(string) (worker.WorkerClient, error) { return nil, nil }
	p, err := worker.NewPlugin(dial, testWorkflow(t), "usecase-1", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, p.Stdout(context.Background(), nil, nil, "hello", true, "scope"))
	require.NoError(t, p.Stdout(context.Background(), nil, nil, "world", false, "scope"))
	assert.Equal(t, []string{"hello\n", "world"}, p.Stdouts())
}

func intPtr(v ir.Value) *ir.Value { return &v }
