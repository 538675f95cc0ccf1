package container

import "errors"

// Package-level sentinel errors for the worker's container
// materialization layer: digest/hash computation, and each Docker
// lifecycle stage (connect, create, start, wait, inspect, remove) gets
// its own wrapped sentinel so callers can tell which stage failed
// without string-matching.
var (
	ErrConnect = errors.New("docker: connect failed")
	ErrLoad    = errors.New("docker: image load failed")
	ErrDigest  = errors.New("docker: manifest digest error")
	ErrHash    = errors.New("docker: content hash error")
	ErrCreate  = errors.New("docker: container create failed")
	ErrStart   = errors.New("docker: container start failed")
	ErrWait    = errors.New("docker: container wait failed")
	ErrInspect = errors.New("docker: container inspect failed")
	ErrRemove  = errors.New("docker: container remove failed")
)
