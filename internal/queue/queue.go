// Package queue provides the in-memory FIFO feeding the render pipeline.
//
// FIFO admission order is the only ordering guarantee. There is no
// priority and no cancellation: once enqueued, a request stays until the
// dispatcher pops it.
package queue

import "sync"

// FIFO is a mutex-guarded in-memory queue. The zero value is not usable;
// call New.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends item at the tail and signals the wake channel.
func (q *FIFO[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head. The second return is false when the
// queue is empty.
func (q *FIFO[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	head := q.items[0]
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	return head, true
}

// Depth returns the number of pending items.
func (q *FIFO[T]) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake returns a channel that receives a signal after an enqueue. The
// channel is buffered with capacity one, so a signal is never lost between
// an empty Dequeue and a subsequent wait.
func (q *FIFO[T]) Wake() <-chan struct{} {
	return q.wake
}
