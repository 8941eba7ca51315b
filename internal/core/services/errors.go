package services

import "errors"

// Queue errors
var (
	ErrTaskNotFound        = errors.New("queue: task not found")
	ErrTaskInvalidKind     = errors.New("queue: invalid task kind")
	ErrTaskNoItems         = errors.New("queue: no items provided for bulk operation")
	ErrTaskInvalidItem     = errors.New("queue: invalid task item")
	ErrTaskNotCancellable  = errors.New("queue: task cannot be cancelled")
	ErrTaskCreateFailed    = errors.New("queue: failed to persist task")
)

// Hypervisor errors
var (
	ErrServerNotFound      = errors.New("hypervisor: server not found")
	ErrServerInvalidInput  = errors.New("hypervisor: invalid server input")
	ErrServerNoCredentials = errors.New("hypervisor: no usable credentials configured")
)

// Allocation errors
var (
	ErrAllocationRelease = errors.New("allocation: release failed")
)
