// Package worker implements the worker-side task execution protocol:
// container materialization, checker consultation, argument
// translation, container launch, and status streaming.
package worker

import "github.com/brane-project/brane/pkg/ir"

// Status is one stage of an Execute call's progress, streamed to the
// caller as the ExecuteReply status enum.
type Status int

const (
	StatusReceived Status = iota
	StatusAuthorized
	StatusDenied
	StatusCreated
	StatusStarted
	StatusCompleted
	StatusFailed
	StatusFinished
	StatusCreationFailed
	StatusCompletionFailed
	StatusDecodingFailed
	StatusAuthorizationFailed
)

func (s Status) String() string {
	switch s {
	case StatusReceived:
		return "Received"
	case StatusAuthorized:
		return "Authorized"
	case StatusDenied:
		return "Denied"
	case StatusCreated:
		return "Created"
	case StatusStarted:
		return "Started"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusFinished:
		return "Finished"
	case StatusCreationFailed:
		return "CreationFailed"
	case StatusCompletionFailed:
		return "CompletionFailed"
	case StatusDecodingFailed:
		return "DecodingFailed"
	case StatusAuthorizationFailed:
		return "AuthorizationFailed"
	default:
		return "Unknown"
	}
}

// Update is one status transition emitted during Execute. Only the
// fields relevant to Status are populated.
type Update struct {
	Status   Status
	Value    *ir.Value
	ExitCode int64
	Stdout   string
	Stderr   string
	Reasons  []string
	Err      error
}

// StatusFunc receives each Update in order as Execute progresses.
type StatusFunc func(Update)
