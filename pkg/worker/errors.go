package worker

import "errors"

// Package-level sentinel errors for the Worker layer.
var (
	ErrUnknownPackage       = errors.New("unknown package")
	ErrAuthorizationFailure = errors.New("checker denied task authorization")
	ErrAuthorizationError   = errors.New("checker consult failed")
	ErrCreationFailed       = errors.New("container creation failed")
	ErrCompletionFailed     = errors.New("container completion failed")
	ErrDecodingFailed       = errors.New("task return value decoding failed")
	ErrBackendUnsupported   = errors.New("backend method unsupported")
)
