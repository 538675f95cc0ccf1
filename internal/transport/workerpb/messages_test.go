package workerpb_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/internal/transport/workerpb"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/worker"
)

func TestExecuteRequestRoundTripsThroughWireForm(t *testing.T) {
	req := worker.ExecuteRequest{
		Workflow: json.RawMessage(`{"end_user":"alice"}`),
		PC:       ir.ProgramCounter{Func: ir.MainFunctionID(), Edge: 2},
		FunctionName: "add", PackageName: "math", PackageVersion: "1.0.0",
		Capabilities: []string{"net"},
		Args:         map[string]ir.Value{"x": ir.IntValue(7)},
		Inputs:       map[ir.DataName]ir.AccessKind{ir.Dataset("weather"): ir.FileAccess("/data/weather")},
		Result:       "out", UseCase: "uc-1", EndUser: "alice",
	}

	wire := workerpb.FromExecuteRequest(req)
	raw, err := json.Marshal(wire)
	require.NoError(t, err)

	var decoded workerpb.ExecuteRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back := workerpb.ToExecuteRequest(&decoded)
	assert.Equal(t, req.FunctionName, back.FunctionName)
	assert.Equal(t, req.PC, back.PC)
	assert.Equal(t, int64(7), back.Args["x"].Int())
	access, ok := back.Inputs[ir.Dataset("weather")]
	require.True(t, ok)
	assert.Equal(t, "/data/weather", access.Path)
}

func TestUpdateRoundTripsThroughWireForm(t *testing.T) {
	v := ir.IntValue(42)
	u := worker.Update{Status: worker.StatusFinished, Value: &v, ExitCode: 0, Stdout: "hi"}

	wire := workerpb.FromUpdate(u)
	raw, err := json.Marshal(wire)
	require.NoError(t, err)

	var decoded workerpb.ExecuteReply
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back := workerpb.ToUpdate(&decoded)
	assert.Equal(t, worker.StatusFinished, back.Status)
	require.NotNil(t, back.Value)
	assert.Equal(t, int64(42), back.Value.Int())
	assert.Equal(t, "hi", back.Stdout)
	assert.NoError(t, back.Err)
}

func TestUpdateCarriesErrorMessageAcrossTheWire(t *testing.T) {
	u := worker.Update{Status: worker.StatusAuthorizationFailed, Err: errors.New("policy denied")}
	wire := workerpb.FromUpdate(u)
	back := workerpb.ToUpdate(wire)
	require.Error(t, back.Err)
	assert.Equal(t, "policy denied", back.Err.Error())
}
