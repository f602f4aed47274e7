package worker

import (
	"context"
	"sync"

	"github.com/jzx17/taskserve/pkg/types"
)

// MessageKind tags a queued message
type MessageKind int

const (
	// MessageWork carries a task to service
	MessageWork MessageKind = iota
	// MessageStop asks the worker that receives it to exit
	MessageStop
)

// String returns the string representation of MessageKind
func (k MessageKind) String() string {
	switch k {
	case MessageWork:
		return "work"
	case MessageStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Message is the tagged variant flowing through a WorkQueue
type Message struct {
	Kind MessageKind
	Task types.Task
}

// WorkMessage wraps a task for queueing
func WorkMessage(task types.Task) Message {
	return Message{Kind: MessageWork, Task: task}
}

// StopMessage returns the message that stops one worker
func StopMessage() Message {
	return Message{Kind: MessageStop}
}

// WorkQueue is an unbounded FIFO of messages with a blocking Pop.
// Push never blocks, so a channel feeding tasks is never stalled by
// slow workers.
type WorkQueue struct {
	mu     sync.Mutex
	items  []Message
	ready  chan struct{}
	closed chan struct{}
	isShut bool
}

// NewWorkQueue creates an empty queue
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Push appends a message to the tail of the queue
func (q *WorkQueue) Push(msg Message) error {
	q.mu.Lock()
	if q.isShut {
		q.mu.Unlock()
		return types.ErrQueueClosed
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop removes the message at the head of the queue, blocking until one is
// available, the queue is closed and empty, or ctx is done
func (q *WorkQueue) Pop(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = Message{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()

			// pass the wakeup on to the next waiting worker
			if more {
				q.signal()
			}
			return msg, nil
		}
		shut := q.isShut
		q.mu.Unlock()

		if shut {
			return Message{}, types.ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.closed:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Drain removes and returns every pending message
func (q *WorkQueue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.items
	q.items = nil
	return drained
}

// Len returns the number of pending messages
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes every blocked Pop. Messages
// already queued can still be popped.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isShut {
		return
	}
	q.isShut = true
	close(q.closed)
}

func (q *WorkQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
