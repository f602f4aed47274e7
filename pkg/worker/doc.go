/*
Package worker provides the threaded task dispatcher that services request
tasks on a resizable set of worker goroutines.

# Overview

The dispatcher decouples task production (channels parsing requests) from
task consumption (workers calling Service). It supports:
- Resizing the worker set at any time with SetThreadCount
- An unbounded FIFO queue with a blocking Pop
- Panic recovery and structured failure logging
- Graceful shutdown with a timeout, optionally cancelling pending tasks
- OpenTelemetry counters for serviced, failed and cancelled tasks

# Core Components

## ThreadedDispatcher

Owns the WorkQueue and the map of live worker slots. New workers take the
lowest unused slot number. Shrinking pushes one Stop message per surplus
worker; whichever worker pops it exits. Live slot count therefore matches
the last SetThreadCount value once every Stop has been consumed.

## WorkQueue

A mutex-guarded slice of tagged messages, Work(task) or Stop. Pop blocks
until a message arrives, the queue is closed, or the context is done.

## Worker

Bookkeeping for one slot: state, statistics and panic recovery around
Service. The goroutine draining the queue belongs to the dispatcher.

## FuncTask

A types.Task built from plain functions, for housekeeping work that shares
the dispatcher with request tasks.

# Usage Examples

	d, err := worker.NewThreadedDispatcher(&worker.ThreadedDispatcherConfig{
		PollInterval: 100 * time.Millisecond,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := d.SetThreadCount(4); err != nil {
		return err
	}

	if err := d.AddTask(task); err != nil {
		// the task has already been cancelled
		return err
	}

	// on exit: stop workers, cancel whatever is still queued
	d.Shutdown(true, 5*time.Second)

# Error Handling

A task whose Service returns an error, or panics, is logged at error level
with its ID, the worker slot and a stack trace, then passed to the optional
ErrorHandler. The worker keeps running, except for types.ErrJustTesting,
which makes that single worker exit.
*/
package worker
