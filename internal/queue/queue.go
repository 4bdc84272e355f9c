// Package queue provides a generic thread-safe priority queue. Events with a
// lower priority value are drained first; ties keep insertion order.
package queue

import (
	"sort"
	"sync"
)

// Priority is a mutex-guarded queue ordered by a caller-supplied priority
// accessor. Lower values are more urgent.
type Priority[T any] struct {
	mu       sync.Mutex
	items    []T
	priority func(T) int
}

// NewPriority creates an empty priority queue using the given accessor.
func NewPriority[T any](priority func(T) int) *Priority[T] {
	return &Priority[T]{
		items:    make([]T, 0),
		priority: priority,
	}
}

// Push appends items and restores priority order. The sort is stable, so
// items of equal priority stay in arrival order.
func (q *Priority[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.priority(q.items[i]) < q.priority(q.items[j])
	})
}

// Pop removes and returns the most urgent item. Returns the zero value if
// the queue is empty.
func (q *Priority[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// PopBatch removes and returns up to n of the most urgent items.
func (q *Priority[T]) PopBatch(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	return batch
}

// Empty returns true if the queue has no items.
func (q *Priority[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Priority[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the queue.
func (q *Priority[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// FIFO is a mutex-guarded queue in arrival order, used to buffer archive rows
// between producers and the flush loop.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewFIFO creates an empty FIFO queue.
func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{items: make([]T, 0)}
}

// Push appends items in arrival order.
func (q *FIFO[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Drain removes and returns all queued items.
func (q *FIFO[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = make([]T, 0)
	return items
}

// Len returns the number of items in the queue.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
