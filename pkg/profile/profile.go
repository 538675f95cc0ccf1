// Package profile implements a profiling component: nested timing
// scopes a caller opens and closes around a unit of work (a workflow
// run, a node's execution, a container launch), reported both as plain
// duration data and, when a tracer/Metrics is configured, as
// OpenTelemetry spans and Prometheus metrics.
package profile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Scope is one open nested timing measurement. Callers obtain one from
// Profiler.Start and must call End exactly once.
type Scope struct {
	name     string
	start    time.Time
	parent   *Scope
	profiler *Profiler
	span     trace.Span
	attrs    map[string]string
}

// Profiler opens nested Scopes and reports their durations. The zero
// value works as a no-op profiler with no tracer and no metrics; use New
// to wire a tracer/metrics.
type Profiler struct {
	tracer  trace.Tracer
	metrics *Metrics
}

// contextKey is unexported so only this package can stash a *Scope in a
// context.Context.
type contextKey struct{}

// New constructs a Profiler. tracer may be nil (spans are skipped);
// metrics may be nil (Prometheus recording is skipped).
func New(tracer trace.Tracer, metrics *Metrics) *Profiler {
	return &Profiler{tracer: tracer, metrics: metrics}
}

// Start opens a new Scope named name, nested under whatever Scope ctx
// already carries (if any), and returns the child context to pass down
// along with the Scope to End when the unit of work finishes.
func (p *Profiler) Start(ctx context.Context, name string, attrs map[string]string) (context.Context, *Scope) {
	parent, _ := ctx.Value(contextKey{}).(*Scope)

	scope := &Scope{name: name, start: time.Now(), parent: parent, profiler: p, attrs: attrs}

	if p != nil && p.tracer != nil {
		spanCtx, span := p.tracer.Start(ctx, name)
		for k, v := range attrs {
			span.SetAttributes(attribute.String(k, v))
		}
		scope.span = span
		ctx = spanCtx
	}

	ctx = context.WithValue(ctx, contextKey{}, scope)
	return ctx, scope
}

// End closes the Scope, recording its elapsed duration. status is a
// short outcome label ("success", "error", "denied", ...) reported to
// both tracing and metrics backends; err, if non-nil, marks the span as
// failed and is recorded on it. Metrics see only the status label.
func (s *Scope) End(status string, err error) time.Duration {
	elapsed := time.Since(s.start)

	if s.span != nil {
		if err != nil {
			s.span.SetStatus(codes.Error, err.Error())
			s.span.RecordError(err)
		}
		s.span.SetAttributes(attribute.String("profile.status", status))
		s.span.End()
	}

	if s.profiler != nil && s.profiler.metrics != nil {
		s.profiler.metrics.RecordScope(s.name, elapsed, status)
	}

	return elapsed
}

// Path returns the dot-joined chain of scope names from the outermost
// open scope down to this one, e.g. "workflow.node.container_launch".
func (s *Scope) Path() string {
	if s.parent == nil {
		return s.name
	}
	return fmt.Sprintf("%s.%s", s.parent.Path(), s.name)
}
