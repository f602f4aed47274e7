package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/jzx17/taskserve/pkg/types"
)

// ThreadedDispatcherConfig contains configuration for the dispatcher
type ThreadedDispatcherConfig struct {
	// PollInterval is how often Shutdown checks for exited workers
	PollInterval time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger receives task failures and shutdown warnings (optional)
	Logger *zap.Logger

	// MeterProvider records dispatcher metrics (optional, defaults to the
	// global otel provider)
	MeterProvider metric.MeterProvider

	// ErrorHandler is called with every task failure after it is logged
	ErrorHandler types.ErrorHandler
}

// DefaultThreadedDispatcherConfig returns default configuration
func DefaultThreadedDispatcherConfig() *ThreadedDispatcherConfig {
	return &ThreadedDispatcherConfig{
		PollInterval: 100 * time.Millisecond,
		Clock:        types.NewRealClock(),
		Logger:       zap.NewNop(),
	}
}

// ThreadedDispatcher runs tasks on a resizable set of worker goroutines
// fed by a single WorkQueue. Workers are identified by the lowest free
// non-negative slot number.
type ThreadedDispatcher struct {
	config  *ThreadedDispatcherConfig
	queue   *WorkQueue
	metrics *dispatcherMetrics
	logger  *zap.Logger

	// mu guards threads and stopCount
	mu        sync.Mutex
	threads   map[int]*Worker
	stopCount int

	shut           atomic.Bool
	totalCancelled int64
	wg             sync.WaitGroup

	// counts carried over from workers that have exited
	retiredServiced int64
	retiredFailed   int64
}

// NewThreadedDispatcher creates a dispatcher with no running workers;
// call SetThreadCount to start them
func NewThreadedDispatcher(config *ThreadedDispatcherConfig) (*ThreadedDispatcher, error) {
	if config == nil {
		config = DefaultThreadedDispatcherConfig()
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", config.PollInterval)
	}

	config.Clock = types.OrRealClock(config.Clock)
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	metrics, err := newDispatcherMetrics(config.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher metrics: %w", err)
	}

	return &ThreadedDispatcher{
		config:  config,
		queue:   NewWorkQueue(),
		metrics: metrics,
		logger:  config.Logger.Named("dispatcher"),
		threads: make(map[int]*Worker),
	}, nil
}

// SetThreadCount adjusts the number of live workers to exactly n. New
// workers take the lowest unused slots; surplus workers are asked to exit
// with one Stop message each.
func (p *ThreadedDispatcher) SetThreadCount(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidThreadCount, n)
	}
	if n > 0 && p.shut.Load() {
		return types.ErrPoolStopped
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	running := len(p.threads) - p.stopCount
	slot := 0
	for running < n {
		for {
			if _, taken := p.threads[slot]; !taken {
				break
			}
			slot++
		}
		w := newWorker(slot, p.config.Clock)
		p.threads[slot] = w
		running++

		p.wg.Add(1)
		p.metrics.workerStarted()
		go p.handlerThread(w)
		slot++
	}

	if running > n {
		toStop := running - n
		for i := 0; i < toStop; i++ {
			if err := p.queue.Push(StopMessage()); err != nil {
				return err
			}
			p.stopCount++
		}
	}

	return nil
}

// AddTask defers the task and queues it. If either step fails the task is
// cancelled before the error is returned.
func (p *ThreadedDispatcher) AddTask(task types.Task) (err error) {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	defer func() {
		if err != nil {
			task.Cancel()
			atomic.AddInt64(&p.totalCancelled, 1)
			p.metrics.taskCancelled(1)
		}
	}()

	if p.shut.Load() {
		return types.ErrPoolStopped
	}
	if err := task.Defer(); err != nil {
		return err
	}
	return p.queue.Push(WorkMessage(task))
}

// handlerThread drains the queue for one worker slot
func (p *ThreadedDispatcher) handlerThread(w *Worker) {
	stopped := false
	defer func() {
		p.workerExited(w, stopped)
	}()

	for p.isLive(w.slot) {
		msg, err := p.queue.Pop(context.Background())
		if err != nil {
			return
		}
		if msg.Kind == MessageStop {
			stopped = true
			return
		}

		_, err = w.processTask(msg.Task)
		if err == nil {
			p.metrics.taskServiced()
			continue
		}

		p.metrics.taskFailed()
		p.logTaskFailure(w, msg.Task, err)
		if errors.Is(err, types.ErrJustTesting) {
			return
		}
	}
}

func (p *ThreadedDispatcher) isLive(slot int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.threads[slot]
	return ok
}

func (p *ThreadedDispatcher) workerExited(w *Worker, consumedStop bool) {
	w.markStopped()

	ws := w.Stats()
	atomic.AddInt64(&p.retiredServiced, ws.TotalServiced)
	atomic.AddInt64(&p.retiredFailed, ws.TotalFailed)

	p.mu.Lock()
	if consumedStop && p.stopCount > 0 {
		p.stopCount--
	}
	delete(p.threads, w.slot)
	p.mu.Unlock()

	p.metrics.workerExited()
	p.wg.Done()
}

func (p *ThreadedDispatcher) logTaskFailure(w *Worker, task types.Task, err error) {
	fields := []zap.Field{
		zap.String("task_id", task.ID()),
		zap.Int("slot", w.slot),
		zap.Error(err),
	}

	// panics carry the stack of the failing task; plain errors get ours
	var taskErr *types.TaskError
	if stack, ok := panicStack(err, &taskErr); ok {
		fields = append(fields, zap.String("stack", stack))
	} else {
		fields = append(fields, zap.Stack("stack"))
	}

	p.logger.Error("Exception when servicing task", fields...)

	if handler := p.config.ErrorHandler; handler != nil {
		if handledErr := handler(err); handledErr != nil {
			p.logger.Warn("Error handler failed", zap.Error(handledErr))
		}
	}
}

func panicStack(err error, target **types.TaskError) (string, bool) {
	if !errors.As(err, target) {
		return "", false
	}
	stack, ok := (*target).Context["stack_trace"].(string)
	return stack, ok
}

// Shutdown stops every worker, waiting up to timeout for them to exit. It
// never interrupts a task being serviced. When cancelPending is true the
// queued tasks are cancelled and Shutdown returns true.
func (p *ThreadedDispatcher) Shutdown(cancelPending bool, timeout time.Duration) bool {
	_ = p.SetThreadCount(0)
	p.shut.Store(true)

	clock := p.config.Clock
	ticker := clock.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	start := clock.Now()
	for {
		remaining := p.ThreadCount()
		if remaining == 0 {
			break
		}
		if clock.Since(start) >= timeout {
			p.logger.Warn("Threads still running after shutdown timeout",
				zap.Int("remaining", remaining),
				zap.Duration("timeout", timeout))
			break
		}
		<-ticker.C()
	}

	if !cancelPending {
		return false
	}

	cancelled, drainedStops := 0, 0
	for _, msg := range p.queue.Drain() {
		if msg.Kind == MessageStop {
			drainedStops++
			continue
		}
		if msg.Task == nil {
			continue
		}
		msg.Task.Cancel()
		cancelled++
	}

	// workers still busy past the timeout lost their Stop message to the
	// drain; closing the queue makes them exit once their task returns
	p.mu.Lock()
	p.stopCount -= drainedStops
	if p.stopCount < 0 {
		p.stopCount = 0
	}
	p.mu.Unlock()
	p.queue.Close()

	atomic.AddInt64(&p.totalCancelled, int64(cancelled))
	p.metrics.taskCancelled(cancelled)
	return true
}

// Wait blocks until every worker goroutine has exited
func (p *ThreadedDispatcher) Wait() {
	p.wg.Wait()
}

// ThreadCount returns the number of live worker slots, including workers
// that have been asked to stop but have not exited yet
func (p *ThreadedDispatcher) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Slots returns the live worker slot numbers in ascending order
func (p *ThreadedDispatcher) Slots() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := make([]int, 0, len(p.threads))
	for slot := range p.threads {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// QueueLength returns the number of queued messages
func (p *ThreadedDispatcher) QueueLength() int {
	return p.queue.Len()
}

// IsShutdown reports whether Shutdown has been called
func (p *ThreadedDispatcher) IsShutdown() bool {
	return p.shut.Load()
}

// Stats returns worker pool statistics
func (p *ThreadedDispatcher) Stats() types.WorkerPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := types.WorkerPoolStats{
		PoolSize:       len(p.threads),
		PendingStops:   p.stopCount,
		QueueSize:      p.queue.Len(),
		TotalCancelled: atomic.LoadInt64(&p.totalCancelled),
	}
	for _, w := range p.threads {
		ws := w.Stats()
		if ws.IsActive() {
			stats.ActiveWorkers++
		}
	}
	stats.TotalServiced, stats.TotalFailed = p.totalsLocked()
	return stats
}

func (p *ThreadedDispatcher) totalsLocked() (serviced, failed int64) {
	for _, w := range p.threads {
		ws := w.Stats()
		serviced += ws.TotalServiced
		failed += ws.TotalFailed
	}
	return serviced + atomic.LoadInt64(&p.retiredServiced), failed + atomic.LoadInt64(&p.retiredFailed)
}

// WorkerStats returns statistics for every live worker ordered by slot
func (p *ThreadedDispatcher) WorkerStats() []WorkerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]WorkerStats, 0, len(p.threads))
	for _, w := range p.threads {
		stats = append(stats, w.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Slot < stats[j].Slot })
	return stats
}
