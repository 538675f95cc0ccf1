package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brane-project/brane/internal/container"
	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/profile"
)

// containerDataRoot and containerResultRoot are the fixed mount points
// inside every task container; the host side of each bind is translated
// from a Data/IntermediateResult argument's resolved AccessKind.
const (
	containerDataRoot   = "/brane/data"
	containerResultRoot = "/brane/result"
)

// CheckerClient is the subset of *checker.Client the Executor consults
// for per-task authorization, narrowed to an interface so tests can
// supply a canned Verdict without a live HTTP server.
type CheckerClient interface {
	CheckTask(ctx context.Context, req checker.TaskRequest) (checker.Verdict, error)
}

// ContainerRuntime is the subset of *container.Client the Executor needs
// to launch a task, narrowed to an interface so tests can run without a
// live Docker daemon. *container.Client satisfies it directly.
type ContainerRuntime interface {
	LoadImage(ctx context.Context, tarPath string) (string, error)
	Run(ctx context.Context, spec container.RunSpec) (*container.RunResult, error)
}

// Executor implements execute contract for one worker
// domain: package materialization, optional task authorization, argument
// translation, container launch and status streaming. One Executor is
// shared across all Execute calls a worker process serves.
type Executor struct {
	Domain         string
	Packages       *PackageCache
	Docker         ContainerRuntime
	Checker        CheckerClient
	HashContainers bool
	ResultsDir     string // root of the results/<name> staging layout
	Profiler       *profile.Profiler // nil is a valid no-op profiler
}

// ExecuteRequest is one task invocation, already planned and with its
// inputs resolved to local AccessKinds by prior Preprocess calls.
type ExecuteRequest struct {
	Workflow       json.RawMessage
	PC             ir.ProgramCounter
	TaskDefID      int64
	FunctionName   string
	PackageName    string
	PackageVersion string
	Capabilities   []string
	Args           map[string]ir.Value
	Inputs         map[ir.DataName]ir.AccessKind
	Result         string // name of the produced IntermediateResult, if any
	UseCase        string
	EndUser        string
}

// Execute runs req to completion, streaming status Updates to emit (which
// may be nil) and returning the task's decoded return value.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest, emit StatusFunc) (*ir.Value, error) {
	if emit == nil {
		emit = func(Update) {}
	}
	emit(Update{Status: StatusReceived})

	pkg, err := e.Packages.Ensure(ctx, req.PackageName, req.PackageVersion)
	if err != nil {
		emit(Update{Status: StatusCreationFailed, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	if e.HashContainers {
		if err := e.authorize(ctx, req, emit); err != nil {
			return nil, err
		}
	}

	imageRef, err := e.Docker.LoadImage(ctx, pkg.TarPath)
	if err != nil {
		emit(Update{Status: StatusCreationFailed, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	args, binds, err := e.translate(req)
	if err != nil {
		emit(Update{Status: StatusCreationFailed, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	argJSON, err := json.Marshal(args)
	if err != nil {
		emit(Update{Status: StatusCreationFailed, Err: err})
		return nil, fmt.Errorf("%w: encoding args: %v", ErrCreationFailed, err)
	}

	argv := []string{
		"-d",
		"--application-id", req.UseCase,
		"--location-id", e.Domain,
		"--job-id", req.PC.String(),
		"compute",
		req.FunctionName,
		base64.StdEncoding.EncodeToString(argJSON),
	}

	emit(Update{Status: StatusCreated})
	emit(Update{Status: StatusStarted})

	launchCtx, scope := e.Profiler.Start(ctx, "container_launch", map[string]string{
		"task": req.FunctionName, "package": req.PackageName,
	})
	result, err := e.Docker.Run(launchCtx, container.RunSpec{Image: imageRef, Argv: argv, Binds: binds})
	if err != nil {
		scope.End("error", err)
		emit(Update{Status: StatusCompletionFailed, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	scope.End("success", nil)
	if result.ExitCode != 0 {
		emit(Update{Status: StatusFailed, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr})
		return nil, fmt.Errorf("task exited with code %d", result.ExitCode)
	}
	emit(Update{Status: StatusCompleted, ExitCode: 0, Stdout: result.Stdout, Stderr: result.Stderr})

	value, err := decodeReturnValue(result.Stdout)
	if err != nil {
		emit(Update{Status: StatusDecodingFailed, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrDecodingFailed, err)
	}

	// E2: a task declared to produce an IntermediateResult but whose
	// container writes its output into the bound result directory
	// instead of printing JSON yields Void from decodeReturnValue; the
	// already-allocated result name is the real return value in that
	// case.
	if value.DataType() == ir.TypeVoid && req.Result != "" {
		v := ir.ResultValue(req.Result)
		value = &v
	}

	emit(Update{Status: StatusFinished, Value: value})
	return value, nil
}

func (e *Executor) authorize(ctx context.Context, req ExecuteRequest, emit StatusFunc) error {
	argStrings := make(map[string]string, len(req.Args))
	for k, v := range req.Args {
		argStrings[k] = v.String()
	}

	verdict, err := e.Checker.CheckTask(ctx, checker.TaskRequest{
		PC:           req.PC,
		TaskName:     req.FunctionName,
		Domain:       e.Domain,
		Capabilities: req.Capabilities,
		Arguments:    argStrings,
		EndUser:      req.EndUser,
	})
	if err != nil {
		emit(Update{Status: StatusAuthorizationFailed, Err: err})
		return fmt.Errorf("%w: %v", ErrAuthorizationError, err)
	}
	if !verdict.Allowed {
		emit(Update{Status: StatusDenied, Reasons: verdict.Reasons})
		return fmt.Errorf("%w: %v", ErrAuthorizationFailure, verdict.Reasons)
	}
	emit(Update{Status: StatusAuthorized})
	return nil
}

// translate implements : every Data/IntermediateResult
// argument is replaced by its container-local mount path, with one bind
// per distinct resolved AccessKind, plus a bind for the result directory
// if the task declares one.
func (e *Executor) translate(req ExecuteRequest) (map[string]any, []container.Bind, error) {
	var binds []container.Bind
	mounted := make(map[string]string, len(req.Inputs))

	mountFor := func(name ir.DataName) (string, error) {
		access, ok := req.Inputs[name]
		if !ok {
			return "", fmt.Errorf("%s has no resolved access", name)
		}
		if cp, ok := mounted[access.Path]; ok {
			return cp, nil
		}
		containerPath := fmt.Sprintf("%s/%d", containerDataRoot, len(binds))
		binds = append(binds, container.Bind{HostPath: access.Path, ContainerPath: containerPath, ReadOnly: true})
		mounted[access.Path] = containerPath
		return containerPath, nil
	}

	args := make(map[string]any, len(req.Args))
	for k, v := range req.Args {
		switch v.DataType() {
		case ir.TypeData:
			cp, err := mountFor(ir.Dataset(v.DataName()))
			if err != nil {
				return nil, nil, err
			}
			args[k] = cp
		case ir.TypeIntermediateResult:
			cp, err := mountFor(ir.IntermediateResult(v.DataName()))
			if err != nil {
				return nil, nil, err
			}
			args[k] = cp
		default:
			args[k] = v
		}
	}

	if req.Result != "" {
		resultDir := filepath.Join(e.ResultsDir, req.Result)
		if err := os.MkdirAll(resultDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating result dir: %w", err)
		}
		binds = append(binds, container.Bind{HostPath: resultDir, ContainerPath: containerResultRoot, ReadOnly: false})
	}

	return args, binds, nil
}

// decodeReturnValue implements : the last non-empty
// line of stdout must be a Base64-encoded JSON Value; an absent or
// entirely blank stdout yields Void.
func decodeReturnValue(stdout string) (*ir.Value, error) {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			last = s
			break
		}
	}
	if last == "" {
		v := ir.VoidValue()
		return &v, nil
	}

	raw, err := base64.StdEncoding.DecodeString(last)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	var v ir.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &v, nil
}
