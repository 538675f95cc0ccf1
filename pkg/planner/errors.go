package planner

import (
	"errors"
	"fmt"
)

// Package-level sentinel errors for the planning layer, grounded on the
// same sentinel+wrapper-struct style as pkg/ir/errors.go.
var (
	ErrUnsupportedCapabilities = errors.New("no domain supports the required capabilities")
	ErrUnknownDataset          = errors.New("unknown dataset")
	ErrUnknownIntermediateResult = errors.New("unknown intermediate result")
	ErrDatasetUnavailable      = errors.New("dataset not reachable from any known domain")
	ErrPlanningFailure         = errors.New("planning failure")
)

// AmbiguousLocationError is raised when more than one domain equally
// satisfies a Node's capability and input-reachability constraints and
// the workflow author did not pin a single location.
type AmbiguousLocationError struct {
	Task        string
	Candidates  []string
}

func (e *AmbiguousLocationError) Error() string {
	return fmt.Sprintf("ambiguous location for task %q: candidates %v", e.Task, e.Candidates)
}

// CheckerDeniedError is raised when a target domain's checker denies the
// workflow-validation request issued before planning is finalized.
type CheckerDeniedError struct {
	Domain  string
	Reasons []string
}

func (e *CheckerDeniedError) Error() string {
	return fmt.Sprintf("checker on domain %q denied workflow: %v", e.Domain, e.Reasons)
}
