// Package workerpb defines the wire messages for the worker gRPC surface
//  (Preprocess/Execute/Commit). Since this workspace has
// no protoc toolchain, these are plain Go structs marshaled by
// workergrpc's custom JSON codec instead of protoc-generated types; see
// DESIGN.md for why that's the right tradeoff here.
package workerpb

import (
	"encoding/json"

	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/worker"
)

// PreprocessRequest is the wire form of a VmPlugin.Preprocess call.
type PreprocessRequest struct {
	PC       ir.ProgramCounter   `json:"pc"`
	Name     ir.DataName         `json:"name"`
	How      ir.AvailabilityKind `json:"how"`
	UseCase  string              `json:"use_case"`
	Workflow json.RawMessage     `json:"workflow"`
}

// PreprocessReply carries the AccessKind the caller should read the
// datum through.
type PreprocessReply struct {
	Access ir.AccessKind `json:"access"`
}

// InputBinding pairs a planned input's DataName with its resolved
// AccessKind — a slice rather than a map, since a Go struct can't be a
// JSON object key.
type InputBinding struct {
	Name   ir.DataName   `json:"name"`
	Access ir.AccessKind `json:"access"`
}

// ExecuteRequest is the wire form of worker.ExecuteRequest.
type ExecuteRequest struct {
	Workflow       json.RawMessage     `json:"workflow"`
	PC             ir.ProgramCounter   `json:"pc"`
	TaskDefID      int64               `json:"task_def_id"`
	FunctionName   string              `json:"function_name"`
	PackageName    string              `json:"package_name"`
	PackageVersion string              `json:"package_version"`
	Capabilities   []string            `json:"capabilities"`
	Args           map[string]ir.Value `json:"args"`
	Inputs         []InputBinding      `json:"inputs"`
	Result         string              `json:"result"`
	UseCase        string              `json:"use_case"`
	EndUser        string              `json:"end_user"`
}

// FromExecuteRequest converts an in-process worker.ExecuteRequest into
// its wire form.
func FromExecuteRequest(req worker.ExecuteRequest) *ExecuteRequest {
	bindings := make([]InputBinding, 0, len(req.Inputs))
	for name, access := range req.Inputs {
		bindings = append(bindings, InputBinding{Name: name, Access: access})
	}
	return &ExecuteRequest{
		Workflow: req.Workflow, PC: req.PC, TaskDefID: req.TaskDefID,
		FunctionName: req.FunctionName, PackageName: req.PackageName, PackageVersion: req.PackageVersion,
		Capabilities: req.Capabilities, Args: req.Args, Inputs: bindings,
		Result: req.Result, UseCase: req.UseCase, EndUser: req.EndUser,
	}
}

// ToExecuteRequest converts a wire ExecuteRequest back into the
// in-process shape pkg/worker.Executor consumes.
func ToExecuteRequest(req *ExecuteRequest) worker.ExecuteRequest {
	inputs := make(map[ir.DataName]ir.AccessKind, len(req.Inputs))
	for _, b := range req.Inputs {
		inputs[b.Name] = b.Access
	}
	return worker.ExecuteRequest{
		Workflow: req.Workflow, PC: req.PC, TaskDefID: req.TaskDefID,
		FunctionName: req.FunctionName, PackageName: req.PackageName, PackageVersion: req.PackageVersion,
		Capabilities: req.Capabilities, Args: req.Args, Inputs: inputs,
		Result: req.Result, UseCase: req.UseCase, EndUser: req.EndUser,
	}
}

// ExecuteReply is one item of the status stream Execute RPC
// returns — the wire form of worker.Update.
type ExecuteReply struct {
	Status   string   `json:"status"`
	Value    *ir.Value `json:"value,omitempty"`
	ExitCode int64    `json:"exit_code,omitempty"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// FromUpdate converts a worker.Update into its wire form.
func FromUpdate(u worker.Update) *ExecuteReply {
	reply := &ExecuteReply{
		Status: u.Status.String(), Value: u.Value, ExitCode: u.ExitCode,
		Stdout: u.Stdout, Stderr: u.Stderr, Reasons: u.Reasons,
	}
	if u.Err != nil {
		reply.Error = u.Err.Error()
	}
	return reply
}

// ToUpdate converts a wire ExecuteReply back into a worker.Update. The
// Err field, if Error is non-empty, carries only the message: the
// original error's type/Unwrap chain doesn't survive the wire, matching
// how any RPC boundary necessarily flattens errors.
func ToUpdate(reply *ExecuteReply) worker.Update {
	u := worker.Update{
		Value: reply.Value, ExitCode: reply.ExitCode,
		Stdout: reply.Stdout, Stderr: reply.Stderr, Reasons: reply.Reasons,
	}
	for s := worker.StatusReceived; s <= worker.StatusAuthorizationFailed; s++ {
		if s.String() == reply.Status {
			u.Status = s
			break
		}
	}
	if reply.Error != "" {
		u.Err = errString(reply.Error)
	}
	return u
}

type errString string

func (e errString) Error() string { return string(e) }

// CommitRequest is the wire form of a VmPlugin.Commit call.
type CommitRequest struct {
	ResultName string `json:"result_name"`
	ResultPath string `json:"result_path"`
	DataName   string `json:"data_name"`
}

// CommitReply is empty:  no response fields for Commit.
type CommitReply struct{}
