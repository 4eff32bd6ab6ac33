package tools

import (
	"context"
	"errors"
	"io"
	"sync"
)

var ErrQueueFull = errors.New("queue is full")

// ConcurrentQueue is a bounded FIFO queue that is thread safe. Pop waits
// for an element until the queue is closed.
type ConcurrentQueue[T any] struct {
	queue    []T
	capacity int
	head     int
	tail     int
	size     int
	closed   bool
	// signal holds a token while the queue is not empty or is closed
	signal chan struct{}
	sync.Mutex
}

// NewConcurrentQueue returns a new empty ConcurrentQueue with the given max capacity
func NewConcurrentQueue[T any](capacity int) *ConcurrentQueue[T] {
	return &ConcurrentQueue[T]{
		queue:    make([]T, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// notify must be called with the lock held
func (q *ConcurrentQueue[T]) notify() {
	if q.size == 0 && !q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Push adds an element at the tail. It fails if the queue is full or closed.
func (q *ConcurrentQueue[T]) Push(el T) error {
	q.Lock()
	defer q.Unlock()
	if q.closed {
		return io.ErrClosedPipe
	}
	if q.size == q.capacity {
		return ErrQueueFull
	}

	q.queue[q.tail] = el
	q.tail = (q.tail + 1) % q.capacity
	q.size++
	q.notify()
	return nil
}

// TryPop removes the oldest element if there is one
func (q *ConcurrentQueue[T]) TryPop() (T, bool) {
	q.Lock()
	defer q.Unlock()
	var zero T
	if q.size == 0 {
		return zero, false
	}
	el := q.queue[q.head]
	q.queue[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.size--
	return el, true
}

// Pop removes the oldest element, waiting for one if the queue is empty.
// Once the queue is closed and drained it returns io.EOF.
func (q *ConcurrentQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.Lock()
		if q.size > 0 {
			el := q.queue[q.head]
			q.queue[q.head] = zero
			q.head = (q.head + 1) % q.capacity
			q.size--
			q.notify()
			q.Unlock()
			return el, nil
		}
		if q.closed {
			q.notify()
			q.Unlock()
			return zero, io.EOF
		}
		q.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops accepting elements. Queued elements can still be popped.
func (q *ConcurrentQueue[T]) Close() {
	q.Lock()
	defer q.Unlock()
	q.closed = true
	q.notify()
}

func (q *ConcurrentQueue[T]) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.size
}

func (q *ConcurrentQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *ConcurrentQueue[T]) IsFull() bool {
	q.Lock()
	defer q.Unlock()
	return q.size == q.capacity
}
