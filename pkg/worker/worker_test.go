package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/taskserve/internal/testutils"
	"github.com/jzx17/taskserve/pkg/types"
)

func TestNewWorker(t *testing.T) {
	worker := newWorker(3, nil)

	assert.Equal(t, 3, worker.Slot())
	assert.Equal(t, WorkerStateIdle, worker.State())
}

func TestWorkerState(t *testing.T) {
	assert.Equal(t, "idle", WorkerStateIdle.String())
	assert.Equal(t, "working", WorkerStateWorking.String())
	assert.Equal(t, "stopped", WorkerStateStopped.String())
	assert.Equal(t, "unknown", WorkerState(999).String())

	worker := newWorker(0, nil)
	worker.markStopped()
	assert.Equal(t, WorkerStateStopped, worker.State())
}

func TestWorker_ProcessTask(t *testing.T) {
	start := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	mock, clock := testutils.FixedClock(t, start)
	worker := newWorker(0, clock)

	var stateDuringService WorkerState
	task := NewFuncTask(func() error {
		stateDuringService = worker.State()
		mock.Set(mock.Now().Add(250 * time.Millisecond))
		return nil
	})

	elapsed, err := worker.processTask(task)
	require.NoError(t, err)

	assert.Equal(t, WorkerStateWorking, stateDuringService)
	assert.Equal(t, WorkerStateIdle, worker.State())
	assert.Equal(t, 250*time.Millisecond, elapsed)

	stats := worker.Stats()
	assert.Equal(t, int64(1), stats.TotalServiced)
	assert.Equal(t, int64(0), stats.TotalFailed)
	assert.True(t, stats.LastTaskTime.Equal(start))
}

func TestWorker_ProcessTaskFailure(t *testing.T) {
	worker := newWorker(1, nil)
	boom := errors.New("boom")

	_, err := worker.processTask(NewFuncTask(func() error { return boom }))
	assert.ErrorIs(t, err, boom)

	stats := worker.Stats()
	assert.Equal(t, int64(0), stats.TotalServiced)
	assert.Equal(t, int64(1), stats.TotalFailed)
}

func TestWorker_PanicRecovery(t *testing.T) {
	sentinel := errors.New("sentinel")

	tests := []struct {
		name      string
		value     interface{}
		wantIs    error
		wantCause string
	}{
		{"string panic", "kaboom", nil, "panic: kaboom"},
		{"error panic", sentinel, sentinel, "panic: sentinel"},
		{"other panic", 42, nil, "panic: 42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := newWorker(7, nil)
			task := NewFuncTaskWithID("panicky", func() error { panic(tt.value) })

			_, err := worker.processTask(task)
			require.Error(t, err)

			var taskErr *types.TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, "service", taskErr.Operation)
			assert.Equal(t, "panicky", taskErr.TaskID)
			assert.Equal(t, tt.wantCause, taskErr.Cause.Error())
			assert.Equal(t, 7, taskErr.Context["worker_slot"])
			assert.Contains(t, taskErr.Context["stack_trace"], "goroutine")
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}

			assert.Equal(t, WorkerStateIdle, worker.State())
			assert.Equal(t, int64(1), worker.Stats().TotalFailed)
		})
	}
}

func TestWorkerStats_ErrorRate(t *testing.T) {
	tests := []struct {
		name     string
		stats    WorkerStats
		expected float64
	}{
		{"no tasks", WorkerStats{}, 0},
		{"all serviced", WorkerStats{TotalServiced: 4}, 0},
		{"quarter failed", WorkerStats{TotalServiced: 3, TotalFailed: 1}, 0.25},
		{"all failed", WorkerStats{TotalFailed: 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.stats.GetErrorRate(), 1e-9)
		})
	}

	assert.True(t, WorkerStats{State: WorkerStateWorking}.IsActive())
	assert.False(t, WorkerStats{State: WorkerStateIdle}.IsActive())
}
