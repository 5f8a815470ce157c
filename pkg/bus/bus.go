// Package bus decouples task producers (gateway, CLI) from the agent worker
// pool with a bounded in-process queue.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restwell/sleepagent/pkg/task"
)

const publishTimeout = 100 * time.Millisecond

// TaskBus carries task requests to the workers and routes each result back
// to the submitter that is waiting on it.
type TaskBus struct {
	inbound chan task.Request
	waiters map[string]chan task.Result
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func NewTaskBus(buffer int) *TaskBus {
	if buffer <= 0 {
		buffer = 100
	}
	return &TaskBus{
		inbound: make(chan task.Request, buffer),
		waiters: make(map[string]chan task.Result),
	}
}

// Publish enqueues a request for the workers. When the queue stays full past
// the publish timeout the request is dropped and counted rather than
// blocking the caller forever.
func (tb *TaskBus) Publish(req task.Request) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if tb.closed {
		return false
	}

	select {
	case tb.inbound <- req:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case tb.inbound <- req:
			return true
		case <-timer.C:
			tb.dropped.Add(1)
			return false
		}
	}
}

// Consume blocks until a request is available or the context ends.
func (tb *TaskBus) Consume(ctx context.Context) (task.Request, bool) {
	select {
	case req, ok := <-tb.inbound:
		if !ok {
			return task.Request{}, false
		}
		return req, true
	case <-ctx.Done():
		return task.Request{}, false
	}
}

// Submit enqueues a request and blocks until its result arrives or the
// context ends. Each task id gets a dedicated waiter channel.
func (tb *TaskBus) Submit(ctx context.Context, req task.Request) (task.Result, error) {
	waiter := make(chan task.Result, 1)

	tb.mu.Lock()
	if tb.closed {
		tb.mu.Unlock()
		return task.Result{}, fmt.Errorf("task bus closed")
	}
	if _, exists := tb.waiters[req.TaskID]; exists {
		tb.mu.Unlock()
		return task.Result{}, fmt.Errorf("task %s already in flight", req.TaskID)
	}
	tb.waiters[req.TaskID] = waiter
	tb.mu.Unlock()

	defer func() {
		tb.mu.Lock()
		delete(tb.waiters, req.TaskID)
		tb.mu.Unlock()
	}()

	if !tb.Publish(req) {
		return task.Result{}, fmt.Errorf("task queue full")
	}

	select {
	case result := <-waiter:
		return result, nil
	case <-ctx.Done():
		return task.Result{}, ctx.Err()
	}
}

// Resolve delivers a finished result to its waiting submitter, if any. Fire
// and forget submissions have no waiter; their results are discarded here.
func (tb *TaskBus) Resolve(result task.Result) {
	tb.mu.RLock()
	waiter, ok := tb.waiters[result.TaskID]
	tb.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case waiter <- result:
	default:
	}
}

// Depth reports how many requests are queued.
func (tb *TaskBus) Depth() int {
	return len(tb.inbound)
}

// Dropped reports how many requests were discarded on a full queue.
func (tb *TaskBus) Dropped() uint64 {
	return tb.dropped.Load()
}

func (tb *TaskBus) Close() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.closed {
		return
	}
	tb.closed = true
	close(tb.inbound)
}
