package workergrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/brane-project/brane/internal/transport/workerpb"
	"github.com/brane-project/brane/pkg/worker"
)

// Server adapts a worker.LocalWorkerClient to the WorkerServer gRPC
// interface, matching this domain's local execution/transfer/asset-store
// wiring to the wire protocol a remote orchestrator's worker.Dialer
// dials into.
type Server struct {
	Local *worker.LocalWorkerClient
}

// Register attaches Server to an existing *grpc.Server.
func (s *Server) Register(grpcServer *grpc.Server) {
	registerWorkerServer(grpcServer, s)
}

func (s *Server) Preprocess(ctx context.Context, in *workerpb.PreprocessRequest) (*workerpb.PreprocessReply, error) {
	pc := in.PC
	access, err := s.Local.Preprocess(ctx, in.Name, in.How, in.UseCase, in.Workflow, &pc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "preprocess: %v", err)
	}
	return &workerpb.PreprocessReply{Access: access}, nil
}

func (s *Server) Execute(in *workerpb.ExecuteRequest, stream Worker_ExecuteServer) error {
	req := workerpb.ToExecuteRequest(in)
	var sendErr error
	var last worker.Update
	_, execErr := s.Local.Execute(stream.Context(), req, func(u worker.Update) {
		if sendErr != nil {
			return
		}
		last = u
		sendErr = stream.Send(workerpb.FromUpdate(u))
	})
	if sendErr != nil {
		return sendErr
	}
	// A failed task is reported as a Failed/*Failed status update in the
	// stream, not as an RPC error. Some failure updates (a non-zero exit,
	// a checker denial) carry no Err, so execErr is then sent once more on
	// the same status: the last update carries execErr whenever it is set.
	if execErr != nil && last.Err == nil {
		return stream.Send(workerpb.FromUpdate(worker.Update{Status: last.Status, Err: execErr}))
	}
	return nil
}

func (s *Server) Commit(ctx context.Context, in *workerpb.CommitRequest) (*workerpb.CommitReply, error) {
	if err := s.Local.Commit(ctx, in.ResultName, in.ResultPath, in.DataName); err != nil {
		return nil, status.Errorf(codes.Internal, "commit: %v", err)
	}
	return &workerpb.CommitReply{}, nil
}
