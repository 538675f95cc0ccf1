// Package workergrpc serves and dials the worker gRPC surface
// (Preprocess/Execute/Commit) without a protoc toolchain: the
// service descriptor, stream wrappers, and codec below are hand-written
// in place of protoc-gen-go-grpc output, carrying the same method names,
// streaming shape, and semantics a generated client/server pair would.
package workergrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/brane-project/brane/internal/transport/workerpb"
)

const serviceName = "brane.worker.Worker"

// WorkerServer is the interface a worker domain implements to serve
// Preprocess/Execute/Commit over gRPC. See server.go for the adapter
// that implements it over pkg/worker.LocalWorkerClient.
type WorkerServer interface {
	Preprocess(context.Context, *workerpb.PreprocessRequest) (*workerpb.PreprocessReply, error)
	Execute(*workerpb.ExecuteRequest, Worker_ExecuteServer) error
	Commit(context.Context, *workerpb.CommitRequest) (*workerpb.CommitReply, error)
}

// Worker_ExecuteServer is the server-side handle to the status stream
// Execute RPC returns.
type Worker_ExecuteServer interface {
	Send(*workerpb.ExecuteReply) error
	grpc.ServerStream
}

type workerExecuteServer struct {
	grpc.ServerStream
}

func (x *workerExecuteServer) Send(m *workerpb.ExecuteReply) error {
	return x.ServerStream.SendMsg(m)
}

// Worker_ExecuteClient is the client-side handle to the same stream.
type Worker_ExecuteClient interface {
	Recv() (*workerpb.ExecuteReply, error)
	grpc.ClientStream
}

type workerExecuteClient struct {
	grpc.ClientStream
}

func (x *workerExecuteClient) Recv() (*workerpb.ExecuteReply, error) {
	m := new(workerpb.ExecuteReply)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func registerWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&serviceDesc, srv)
}

// RegisterServer attaches any WorkerServer implementation directly to a
// *grpc.Server. Server.Register in server.go is the shorthand for a
// Server (which always wraps a worker.LocalWorkerClient); this also serves
// callers, including tests, that implement WorkerServer some other way.
func RegisterServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	registerWorkerServer(s, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Preprocess", Handler: preprocessHandler},
		{MethodName: "Commit", Handler: commitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Execute", Handler: executeHandler, ServerStreams: true},
	},
	Metadata: "workergrpc/worker.go",
}

func preprocessHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(workerpb.PreprocessRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Preprocess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Preprocess"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Preprocess(ctx, req.(*workerpb.PreprocessRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func commitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(workerpb.CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Commit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Commit(ctx, req.(*workerpb.CommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv any, stream grpc.ServerStream) error {
	m := new(workerpb.ExecuteRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkerServer).Execute(m, &workerExecuteServer{stream})
}
