package worker

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jzx17/taskserve/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is the bookkeeping for one dispatcher slot. The goroutine that
// drains the queue for the slot is owned by ThreadedDispatcher.
type Worker struct {
	slot  int
	state int32 // atomic state

	// statistics
	totalServiced int64
	totalFailed   int64
	lastTaskTime  int64 // Unix nanosecond timestamp

	// time operations
	clock types.Clock
}

// newWorker creates the bookkeeping for a slot
func newWorker(slot int, clock types.Clock) *Worker {
	return &Worker{
		slot:  slot,
		state: int32(WorkerStateIdle),
		clock: types.OrRealClock(clock),
	}
}

// Slot returns the worker slot number
func (w *Worker) Slot() int {
	return w.slot
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

func (w *Worker) markStopped() {
	atomic.StoreInt32(&w.state, int32(WorkerStateStopped))
}

// processTask services a single task and updates the worker statistics
func (w *Worker) processTask(task types.Task) (time.Duration, error) {
	atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	err := w.serviceTask(task)
	elapsed := w.clock.Since(startTime)

	if err != nil {
		atomic.AddInt64(&w.totalFailed, 1)
	} else {
		atomic.AddInt64(&w.totalServiced, 1)
	}
	return elapsed, err
}

// serviceTask runs task.Service with panic recovery support
func (w *Worker) serviceTask(task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			case string:
				cause = fmt.Errorf("panic: %s", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			err = types.NewTaskError("service", task.ID(), cause).
				WithContext("stack_trace", string(buf[:n])).
				WithContext("worker_slot", w.slot)
		}
	}()

	return task.Service()
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Slot:          w.slot,
		State:         w.State(),
		TotalServiced: atomic.LoadInt64(&w.totalServiced),
		TotalFailed:   atomic.LoadInt64(&w.totalFailed),
		LastTaskTime:  time.Unix(0, atomic.LoadInt64(&w.lastTaskTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	Slot          int
	State         WorkerState
	TotalServiced int64
	TotalFailed   int64
	LastTaskTime  time.Time
}

// IsActive checks if Worker is active
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// GetErrorRate gets the error rate
func (ws WorkerStats) GetErrorRate() float64 {
	total := ws.TotalServiced + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalFailed) / float64(total)
}
