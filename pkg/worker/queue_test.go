package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/taskserve/pkg/types"
)

func TestMessageKind_String(t *testing.T) {
	assert.Equal(t, "work", MessageWork.String())
	assert.Equal(t, "stop", MessageStop.String())
	assert.Equal(t, "unknown", MessageKind(42).String())
}

func TestWorkQueue_FIFO(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()

	first := NewFuncTaskWithID("first", nil)
	second := NewFuncTaskWithID("second", nil)

	require.NoError(t, q.Push(WorkMessage(first)))
	require.NoError(t, q.Push(StopMessage()))
	require.NoError(t, q.Push(WorkMessage(second)))
	assert.Equal(t, 3, q.Len())

	msg, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageWork, msg.Kind)
	assert.Equal(t, "first", msg.Task.ID())

	msg, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageStop, msg.Kind)
	assert.Nil(t, msg.Task)

	msg, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Task.ID())
	assert.Equal(t, 0, q.Len())
}

func TestWorkQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewWorkQueue()

	got := make(chan Message, 1)
	go func() {
		msg, err := q.Pop(context.Background())
		if err == nil {
			got <- msg
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(StopMessage()))

	select {
	case msg := <-got:
		assert.Equal(t, MessageStop, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestWorkQueue_PopContextCancelled(t *testing.T) {
	q := NewWorkQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkQueue_Close(t *testing.T) {
	t.Run("wakes blocked pops", func(t *testing.T) {
		q := NewWorkQueue()

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := q.Pop(context.Background())
				errs <- err
			}()
		}

		time.Sleep(10 * time.Millisecond)
		q.Close()
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.ErrorIs(t, err, types.ErrQueueClosed)
		}
	})

	t.Run("rejects pushes but drains queued messages", func(t *testing.T) {
		q := NewWorkQueue()
		require.NoError(t, q.Push(StopMessage()))

		q.Close()
		q.Close()

		assert.ErrorIs(t, q.Push(StopMessage()), types.ErrQueueClosed)

		msg, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, MessageStop, msg.Kind)

		_, err = q.Pop(context.Background())
		assert.ErrorIs(t, err, types.ErrQueueClosed)
	})
}

func TestWorkQueue_Drain(t *testing.T) {
	q := NewWorkQueue()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(WorkMessage(NewFuncTaskWithID(fmt.Sprintf("t%d", i), nil))))
	}

	drained := q.Drain()
	require.Len(t, drained, 5)
	for i, msg := range drained {
		assert.Equal(t, fmt.Sprintf("t%d", i), msg.Task.ID())
	}
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestWorkQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := NewWorkQueue()
	const producers, perProducer, consumers = 8, 250, 6
	total := producers * perProducer

	var mu sync.Mutex
	seen := make(map[string]int, total)

	var consumerWG sync.WaitGroup
	for i := 0; i < consumers; i++ {
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			for {
				msg, err := q.Pop(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[msg.Task.ID()]++
				mu.Unlock()
			}
		}()
	}

	var producerWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producerWG.Add(1)
		go func(p int) {
			defer producerWG.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Push(WorkMessage(NewFuncTaskWithID(fmt.Sprintf("p%d-%d", p, i), nil)))
			}
		}(p)
	}
	producerWG.Wait()

	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, time.Millisecond)
	q.Close()
	consumerWG.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s popped more than once", id)
	}
}
