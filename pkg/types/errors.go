// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrQueueClosed indicates the work queue no longer accepts messages
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrPoolStopped indicates the dispatcher has been shut down
	ErrPoolStopped = errors.New("dispatcher is shut down")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidThreadCount indicates a negative thread count
	ErrInvalidThreadCount = errors.New("thread count must not be negative")

	// ErrHeadersNotCommitted indicates Write was called before the status was committed
	ErrHeadersNotCommitted = errors.New("start_response was not called before write")

	// ErrStartResponseTwice indicates a second status commit without error context
	ErrStartResponseTwice = errors.New("start_response called a second time without error context")

	// ErrInvalidHeader indicates a malformed status line or header pair
	ErrInvalidHeader = errors.New("invalid response header")

	// ErrJustTesting terminates the worker that services the task returning it.
	// Only test harnesses should use it.
	ErrJustTesting = errors.New("just testing")
)

// TaskError represents a failure while servicing a task
type TaskError struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// TaskID identifies the failing task
	TaskID string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("task error in operation %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("task %s error in operation %s: %v", e.TaskID, e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError(operation, taskID string, cause error) *TaskError {
	return &TaskError{
		Operation: operation,
		TaskID:    taskID,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}
