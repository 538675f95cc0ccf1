package workergrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/grpc"

	"github.com/brane-project/brane/internal/transport/workerpb"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/worker"
)

// stubClient is the hand-written equivalent of a protoc-gen-go-grpc
// client stub for the Worker service.
type stubClient struct {
	cc grpc.ClientConnInterface
}

func (c *stubClient) Preprocess(ctx context.Context, in *workerpb.PreprocessRequest, opts ...grpc.CallOption) (*workerpb.PreprocessReply, error) {
	out := new(workerpb.PreprocessReply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Preprocess", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *stubClient) Commit(ctx context.Context, in *workerpb.CommitRequest, opts ...grpc.CallOption) (*workerpb.CommitReply, error) {
	out := new(workerpb.CommitReply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Commit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *stubClient) Execute(ctx context.Context, in *workerpb.ExecuteRequest, opts ...grpc.CallOption) (Worker_ExecuteClient, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/Execute", opts...)
	if err != nil {
		return nil, err
	}
	x := &workerExecuteClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// remoteWorkerClient implements worker.WorkerClient by dispatching every
// call over a gRPC connection to a remote domain's Server, the
// network-crossing counterpart to worker.LocalWorkerClient.
type remoteWorkerClient struct {
	stub *stubClient
}

func (r *remoteWorkerClient) Preprocess(ctx context.Context, name ir.DataName, how ir.AvailabilityKind, useCase string, workflow json.RawMessage, pc *ir.ProgramCounter) (ir.AccessKind, error) {
	req := &workerpb.PreprocessRequest{Name: name, How: how, UseCase: useCase, Workflow: workflow}
	if pc != nil {
		req.PC = *pc
	}
	reply, err := r.stub.Preprocess(ctx, req)
	if err != nil {
		return ir.AccessKind{}, err
	}
	return reply.Access, nil
}

func (r *remoteWorkerClient) Execute(ctx context.Context, req worker.ExecuteRequest, emit worker.StatusFunc) (*ir.Value, error) {
	stream, err := r.stub.Execute(ctx, workerpb.FromExecuteRequest(req))
	if err != nil {
		return nil, err
	}

	var final *ir.Value
	for {
		reply, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		update := workerpb.ToUpdate(reply)
		if emit != nil {
			emit(update)
		}
		if update.Value != nil {
			final = update.Value
		}
		if update.Err != nil {
			return nil, update.Err
		}
	}
	return final, nil
}

func (r *remoteWorkerClient) Commit(ctx context.Context, resultName, resultPath, dataName string) error {
	_, err := r.stub.Commit(ctx, &workerpb.CommitRequest{ResultName: resultName, ResultPath: resultPath, DataName: dataName})
	return err
}

// NewClient wraps an already-dialed gRPC connection as a
// worker.WorkerClient. Callers that manage their own *grpc.ClientConn
// (for example over a test bufconn.Listener) use this directly; NewDialer
// below is the usual path for a live worker.Plugin.
func NewClient(cc grpc.ClientConnInterface) worker.WorkerClient {
	return &remoteWorkerClient{stub: &stubClient{cc: cc}}
}

// NewDialer builds a worker.Dialer that resolves a domain name to a gRPC
// target address via resolve, then dials it with the json content
// subtype every call on this service must use. dialOpts are appended
// after that default, so a caller can still add TLS credentials or
// interceptors.
func NewDialer(resolve func(domain string) (string, error), dialOpts ...grpc.DialOption) worker.Dialer {
	return func(domain string) (worker.WorkerClient, error) {
		addr, err := resolve(domain)
		if err != nil {
			return nil, fmt.Errorf("workergrpc: resolving domain %q: %w", domain, err)
		}
		opts := append([]grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))}, dialOpts...)
		conn, err := grpc.NewClient(addr, opts...)
		if err != nil {
			return nil, fmt.Errorf("workergrpc: dialing domain %q at %q: %w", domain, addr, err)
		}
		return NewClient(conn), nil
	}
}
