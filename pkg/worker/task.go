package worker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jzx17/taskserve/pkg/types"
)

// taskIDCounter is the global task ID counter
var taskIDCounter int64

// FuncTask is a types.Task backed by plain functions. It is useful for
// housekeeping work that shares the dispatcher with request tasks.
type FuncTask struct {
	id       string
	fn       func() error
	onDefer  func() error
	onCancel func()

	cancelled atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

// NewFuncTask creates a task that runs fn when serviced
func NewFuncTask(fn func() error) *FuncTask {
	id := atomic.AddInt64(&taskIDCounter, 1)
	return NewFuncTaskWithID(fmt.Sprintf("task-%d", id), fn)
}

// NewFuncTaskWithID creates a task with a custom ID
func NewFuncTaskWithID(id string, fn func() error) *FuncTask {
	return &FuncTask{
		id:   id,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// OnDefer sets a hook run when the task is queued; an error returned
// from it rejects the task
func (t *FuncTask) OnDefer(fn func() error) *FuncTask {
	t.onDefer = fn
	return t
}

// OnCancel sets a hook run when the task is cancelled
func (t *FuncTask) OnCancel(fn func()) *FuncTask {
	t.onCancel = fn
	return t
}

// Service runs the task function
func (t *FuncTask) Service() error {
	defer t.finish()

	if t.fn == nil {
		return fmt.Errorf("task %s has no service function", t.id)
	}
	return t.fn()
}

// Defer runs the defer hook, if any
func (t *FuncTask) Defer() error {
	if t.onDefer == nil {
		return nil
	}
	return t.onDefer()
}

// Cancel marks the task cancelled and runs the cancel hook once
func (t *FuncTask) Cancel() {
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}
	if t.onCancel != nil {
		t.onCancel()
	}
	t.finish()
}

// ID returns the task ID
func (t *FuncTask) ID() string {
	return t.id
}

// Cancelled reports whether Cancel was called
func (t *FuncTask) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the task has been serviced or cancelled
func (t *FuncTask) Done() <-chan struct{} {
	return t.done
}

func (t *FuncTask) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

var _ types.Task = (*FuncTask)(nil)
