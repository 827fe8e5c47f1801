package parseredux

import (
	"context"
	"sync"

	"github.com/lemol/parse-redux/utils"
)

// Task is the work phase of a queued unit: typically a network request.
// Work for one identity may run concurrently and complete in any order.
// The returned Effect is the state-mutating continuation; the queue
// applies effects strictly in enqueue order per identity. A nil effect
// is fine for work with nothing to reconcile.
type Task func(ctx context.Context) (Effect, error)

// Effect applies a completed task's outcome to object state, e.g. a
// commit of server changes. Runs after every earlier task for the same
// identity has applied its own effect.
type Effect func() error

// TaskHandle reports one task's outcome to the caller that enqueued it.
type TaskHandle struct {
	done chan struct{}
	err  error
}

func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Err is valid once Done is closed.
func (h *TaskHandle) Err() error { return h.err }

func (h *TaskHandle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// taskQueue orders task effects for a single identity. Completions that
// arrive ahead of their turn are parked until every earlier sequence
// number has applied.
type taskQueue struct {
	lock     sync.Mutex
	last     uint64 // next sequence number to hand out
	next     uint64 // sequence number whose effect applies next
	ready    utils.Heap[uint64]
	parked   map[uint64]*taskRun
	applying bool
}

type taskRun struct {
	effect Effect
	err    error
	handle *TaskHandle
}

func newTaskQueue() *taskQueue {
	return &taskQueue{parked: make(map[uint64]*taskRun)}
}

func (q *taskQueue) enqueue(ctx context.Context, task Task) *TaskHandle {
	handle := &TaskHandle{done: make(chan struct{})}
	q.lock.Lock()
	seq := q.last
	q.last++
	q.lock.Unlock()
	TaskQueueDepth.Inc()

	go func() {
		run := &taskRun{handle: handle}
		run.effect, run.err = task(ctx)
		q.complete(seq, run)
	}()
	return handle
}

// complete parks the finished run and drains every run whose turn has
// come. Only one goroutine drains at a time; effects are applied
// outside q.lock since they dispatch back into the store.
func (q *taskQueue) complete(seq uint64, run *taskRun) {
	q.lock.Lock()
	q.parked[seq] = run
	q.ready.Push(seq)
	if q.applying {
		q.lock.Unlock()
		return
	}
	q.applying = true
	for {
		batch := q.takeRunnableLocked()
		if len(batch) == 0 {
			q.applying = false
			q.lock.Unlock()
			return
		}
		q.lock.Unlock()
		for _, r := range batch {
			r.finish()
		}
		q.lock.Lock()
	}
}

func (q *taskQueue) takeRunnableLocked() (batch []*taskRun) {
	for q.ready.Len() > 0 && q.ready.Peek() == q.next {
		seq := q.ready.Pop()
		batch = append(batch, q.parked[seq])
		delete(q.parked, seq)
		q.next++
	}
	return
}

// finish applies the effect and resolves the handle. A failed task
// reports only to its own caller; tasks behind it proceed.
func (r *taskRun) finish() {
	if r.err == nil && r.effect != nil {
		r.err = r.effect()
	}
	r.handle.err = r.err
	close(r.handle.done)
	TaskQueueDepth.Dec()
	if r.err != nil {
		TaskCount.WithLabelValues("failure").Inc()
	} else {
		TaskCount.WithLabelValues("success").Inc()
	}
}
