// Package orchestratorapi implements the orchestrator node's workflow
// submission HTTP surface: accept an already-compiled workflow, plan it
// with pkg/planner, then drive it to completion with a pkg/vm.Thread
// over a pkg/worker.Plugin dispatching to every planned domain.
// One gin.Engine, one handler per route, bind-then-validate-then-respond,
// and the same APIError envelope pkg/registry already uses.
package orchestratorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brane-project/brane/internal/infrastructure/logger"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/planner"
	"github.com/brane-project/brane/pkg/profile"
	"github.com/brane-project/brane/pkg/registry"
	"github.com/brane-project/brane/pkg/vm"
	"github.com/brane-project/brane/pkg/worker"
)

// Runner executes one already-planned workflow end to end and returns its
// final value. Split out from Server so the HTTP layer above stays free
// of VM wiring details.
type Runner struct {
	Dial     worker.Dialer
	Profiler *profile.Profiler
	Logger   *logger.Logger // may be nil; status updates are dropped silently then
}

func (r *Runner) Run(ctx context.Context, wf *ir.Workflow, useCase, endUser string) (*ir.Value, error) {
	runCtx, scope := r.Profiler.Start(ctx, "workflow", map[string]string{"use_case": useCase})
	defer func() { scope.End("done", nil) }()

	onStatus := func(u worker.Update) {
		if r.Logger == nil {
			return
		}
		r.Logger.Info("task status", "status", u.Status, "exit_code", u.ExitCode)
	}

	plugin, err := worker.NewPlugin(r.Dial, wf, useCase, endUser, onStatus)
	if err != nil {
		return nil, fmt.Errorf("orchestratorapi: building plugin: %w", err)
	}
	global := vm.NewGlobalState()
	thread := vm.NewThread(wf, plugin, global, useCase)

	result, err := thread.Run(runCtx)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecutionStore records the outcome of every workflow run this
// orchestrator has driven, keyed by a generated execution id — enough for
// the submit-then-poll flow a caller needs since Server.handleSubmit runs
// the workflow synchronously but a caller may still want to look the
// result back up by id later (e.g. after a client-side timeout).
type ExecutionStore struct {
	mu   sync.Mutex
	byID map[string]Execution
}

type Execution struct {
	ID     string    `json:"id"`
	Status string    `json:"status"` // "succeeded" or "failed"
	Value  *ir.Value `json:"value,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{byID: make(map[string]Execution)}
}

func (s *ExecutionStore) Put(e Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.ID] = e
}

func (s *ExecutionStore) Get(id string) (Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	return e, ok
}

// Server serves the orchestrator's submission API.
type Server struct {
	Planner    *planner.Planner
	Runner     *Runner
	Executions *ExecutionStore
	Logger     *logger.Logger

	engine *gin.Engine
}

func New(p *planner.Planner, r *Runner, executions *ExecutionStore, log *logger.Logger) *Server {
	s := &Server{Planner: p, Runner: r, Executions: executions, Logger: log}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) Handler() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.POST("/workflows", s.handleSubmit)
	s.engine.GET("/executions/:id", s.handleGetExecution)
}

type submitRequest struct {
	Workflow json.RawMessage `json:"workflow" binding:"required"`
	UseCase  string          `json:"use_case" binding:"required"`
	EndUser  string          `json:"end_user"`
}

type submitResponse struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Value  *ir.Value `json:"value,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// handleSubmit implements 's submit-plan-execute path: a
// caller posts an already-compiled workflow, this orchestrator plans its
// domain assignments, runs it synchronously, and returns the final
// value. The execution is also recorded under a generated id so a
// caller that hit a client-side timeout mid-run can poll for it after
// the fact via GET /executions/:id.
func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, registry.NewAPIError("INVALID_REQUEST_BODY", err.Error(), 400))
		return
	}

	var wf ir.Workflow
	if err := json.Unmarshal(req.Workflow, &wf); err != nil {
		respondError(c, registry.NewAPIError("INVALID_WORKFLOW", fmt.Sprintf("decoding workflow: %v", err), 400))
		return
	}
	wf.UseCase = req.UseCase
	wf.EndUser = req.EndUser
	if err := wf.Validate(); err != nil {
		respondError(c, registry.NewAPIError("INVALID_WORKFLOW", err.Error(), 400))
		return
	}

	id := uuid.NewString()
	ctx := c.Request.Context()

	if err := s.Planner.Plan(ctx, &wf); err != nil {
		exec := Execution{ID: id, Status: "failed", Error: err.Error()}
		s.Executions.Put(exec)
		respondError(c, registry.NewAPIError("PLANNING_FAILED", err.Error(), 502))
		return
	}

	value, err := s.Runner.Run(ctx, &wf, req.UseCase, req.EndUser)
	if err != nil {
		exec := Execution{ID: id, Status: "failed", Error: err.Error()}
		s.Executions.Put(exec)
		c.JSON(200, submitResponse{ID: id, Status: "failed", Error: err.Error()})
		return
	}

	exec := Execution{ID: id, Status: "succeeded", Value: value}
	s.Executions.Put(exec)
	c.JSON(200, submitResponse{ID: id, Status: "succeeded", Value: value})
}

var errExecutionNotFound = registry.NewAPIError("EXECUTION_NOT_FOUND", "execution not found", 404)

func (s *Server) handleGetExecution(c *gin.Context) {
	exec, ok := s.Executions.Get(c.Param("id"))
	if !ok {
		respondError(c, errExecutionNotFound)
		return
	}
	c.JSON(200, exec)
}

func respondError(c *gin.Context, err *registry.APIError) {
	c.JSON(err.HTTPStatus, err)
}
