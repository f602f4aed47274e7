// Package types defines core interfaces and types shared by the dispatcher and tasks
package types

import (
	"time"
)

// Task is a unit of work serviced by exactly one worker.
type Task interface {
	// Service runs the task to completion
	Service() error

	// Defer is called before the task is queued; it must be idempotent
	Defer() error

	// Cancel is called when the task will never be serviced
	Cancel()

	// ID returns the task ID (for tracking)
	ID() string
}

// WorkerPool defines the dispatcher interface consumed by channels
type WorkerPool interface {
	// AddTask queues a task for service
	AddTask(task Task) error

	// SetThreadCount adjusts the number of live workers
	SetThreadCount(n int) error

	// Shutdown stops all workers, optionally cancelling pending tasks
	Shutdown(cancelPending bool, timeout time.Duration) bool

	// Stats returns worker pool statistics
	Stats() WorkerPoolStats
}

// WorkerPoolStats defines basic statistics for worker pools
type WorkerPoolStats struct {
	// PoolSize is the number of live worker slots
	PoolSize int

	// ActiveWorkers is the number of workers currently servicing a task
	ActiveWorkers int

	// PendingStops is the number of workers asked to exit that have not yet done so
	PendingStops int

	// QueueSize is the current number of messages in the queue
	QueueSize int

	// TotalServiced is the number of tasks serviced without error
	TotalServiced int64

	// TotalFailed is the number of tasks whose service failed or panicked
	TotalFailed int64

	// TotalCancelled is the number of tasks cancelled by AddTask or Shutdown
	TotalCancelled int64
}

// ErrorHandler is called with every task failure after it has been logged
type ErrorHandler func(error) error
