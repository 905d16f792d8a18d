package common

import (
	"github.com/pkg/errors"
)

// Errors visible to callers of the node, wrapper and module APIs.
//
// Errors returned by these APIs are usually wrapped with context; use errors.Cause to compare,
// or the Is* helpers below.
var (
	// ErrTimeout is returned when a query deadline elapsed without a response
	ErrTimeout = errors.New("timeout")
	// ErrChannelClosed is returned when the connection of a pending query dropped
	ErrChannelClosed = errors.New("channel closed")
	// ErrCancelled is returned by tasks which were cancelled before completion
	ErrCancelled = errors.New("cancelled")
	// ErrRemote is returned when the remote handler of a query failed
	ErrRemote = errors.New("remote error")

	// ErrDependencyCycle is returned when module prerequisites form a cycle
	ErrDependencyCycle = errors.New("dependency cycle")
	// ErrDependencyResolutionFailed is returned when a module dependency can not be downloaded or verified
	ErrDependencyResolutionFailed = errors.New("dependency resolution failed")
	// ErrPrerequisiteNotReady is returned when a prerequisite module is not loaded or started
	ErrPrerequisiteNotReady = errors.New("prerequisite not ready")

	// ErrInvalidLifecycleTransition is returned for lifecycle commands not allowed in the current state
	ErrInvalidLifecycleTransition = errors.New("invalid lifecycle transition")
	// ErrMaterializationFailed is returned when templates or inclusions can not be copied into a service
	ErrMaterializationFailed = errors.New("materialization failed")

	// ErrNotFound is returned when a service, group, task, template or module does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique name is registered twice
	ErrAlreadyExists = errors.New("already exists")
	// ErrNoNodeCapacity is returned when no node can host a service
	ErrNoNodeCapacity = errors.New("no node with enough capacity")
)

// IsTimeout checks if the error is caused by a query timeout
func IsTimeout(err error) bool {
	return err != nil && errors.Cause(err) == ErrTimeout
}

// IsChannelClosed checks if the error is caused by a closed channel
func IsChannelClosed(err error) bool {
	return err != nil && errors.Cause(err) == ErrChannelClosed
}

// IsNotFound checks if the error is caused by a missing object
func IsNotFound(err error) bool {
	return err != nil && errors.Cause(err) == ErrNotFound
}
