// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"sync"
	"sync/atomic"
)

// =============================================================================
// Ring Buffer Interface
// =============================================================================

// RingBufferable defines the interface for bounded ring buffer operations.
//
// # Description
//
// RingBufferable provides a fixed-size buffer that drops oldest items
// when full, preventing unbounded memory growth. Used for container log
// tailing, where only the most recent lines matter, and for any
// producer-consumer scenario where dropping old data is acceptable.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
//
// # Example
//
//	var tail RingBufferable[string] = NewRingBuffer[string](200)
//	tail.Push(logLine)
//	lines := tail.Drain()
//
// # Limitations
//
//   - No blocking operations; drops silently when full
type RingBufferable[T any] interface {
	// Push adds an item to the buffer. Returns true if an item was dropped.
	Push(item T) bool

	// Pop removes and returns the oldest item. Returns zero value and false if empty.
	Pop() (T, bool)

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Drain removes and returns all items.
	Drain() []T

	// ToSlice returns a copy of all items without removing them.
	ToSlice() []T

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum capacity.
	Capacity() int

	// IsFull returns true if buffer is at capacity.
	IsFull() bool

	// IsEmpty returns true if buffer has no items.
	IsEmpty() bool

	// DroppedCount returns total items dropped due to capacity.
	DroppedCount() int64

	// Clear removes all items and resets dropped count.
	Clear()
}

// =============================================================================
// Ring Buffer Struct
// =============================================================================

// RingBuffer is a thread-safe, fixed-size circular buffer.
//
// # Description
//
// RingBuffer implements a circular buffer that automatically drops the
// oldest items when full, bounding memory for unbounded producers.
//
// # Use Cases
//
//   - Tailing container logs where recent lines matter most
//   - Buffering reconciliation events before rendering
//   - Sliding window calculations
//
// # How It Works
//
//  1. Items are added at the tail position
//  2. Items are removed from the head position
//  3. When full, Push overwrites the oldest item
//  4. DroppedCount tracks how many items were dropped
//
// # Thread Safety
//
// RingBuffer is safe for concurrent use from multiple goroutines.
// All operations are protected by a mutex.
//
// # Example
//
//	tail := NewRingBuffer[string](200)
//
//	// Producer: one goroutine per service log stream
//	if dropped := tail.Push(line); dropped {
//	    // An old line was dropped to make room
//	}
//
//	// Consumer: render the most recent lines
//	for _, line := range tail.ToSlice() {
//	    fmt.Println(line)
//	}
//
// # Limitations
//
//   - Fixed capacity (cannot grow)
//   - Drops oldest items when full (no backpressure signal)
//   - Memory is pre-allocated for full capacity
type RingBuffer[T any] struct {
	buffer   []T
	head     int
	tail     int
	size     int
	capacity int
	dropped  int64
	mu       sync.Mutex
}

// Compile-time interface satisfaction check
var _ RingBufferable[int] = (*RingBuffer[int])(nil)

// =============================================================================
// Constructor Functions
// =============================================================================

// NewRingBuffer creates a new ring buffer with the specified capacity.
//
// # Description
//
// Creates a ring buffer that can hold up to `capacity` items.
// The buffer is initially empty. Memory is pre-allocated for
// the full capacity to avoid runtime allocations during Push.
//
// # Inputs
//
//   - capacity: Maximum number of items to hold (must be > 0)
//
// # Outputs
//
//   - *RingBuffer[T]: New empty ring buffer
//
// # Example
//
//	tail := NewRingBuffer[string](cfg.TailLines)
//
// # Panics
//
// Panics if capacity <= 0.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be positive")
	}

	return &RingBuffer[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
	}
}

// =============================================================================
// RingBuffer Methods
// =============================================================================

// Push adds an item to the buffer. If the buffer is full, the oldest
// item is dropped and DroppedCount is incremented. Returns true if an
// item was dropped to make room.
func (r *RingBuffer[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := false

	if r.size == r.capacity {
		// Buffer is full, drop oldest
		r.head = (r.head + 1) % r.capacity
		r.size--
		atomic.AddInt64(&r.dropped, 1)
		dropped = true
	}

	r.buffer[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.size++

	return dropped
}

// Pop removes and returns the oldest item. Returns the zero value and
// false if the buffer is empty.
func (r *RingBuffer[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		var zero T
		return zero, false
	}

	item := r.buffer[r.head]
	var zero T
	r.buffer[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % r.capacity
	r.size--

	return item, true
}

// Peek returns the oldest item without removing it.
func (r *RingBuffer[T]) Peek() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		var zero T
		return zero, false
	}

	return r.buffer[r.head], true
}

// Drain removes and returns all items, oldest first. The buffer is
// empty after this call. Returns nil if the buffer is already empty.
func (r *RingBuffer[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	result := make([]T, r.size)
	var zero T

	for i := 0; i < len(result); i++ {
		result[i] = r.buffer[r.head]
		r.buffer[r.head] = zero
		r.head = (r.head + 1) % r.capacity
	}

	r.size = 0
	return result
}

// ToSlice returns a snapshot of all items, oldest first, without
// modifying the buffer. Returns nil if the buffer is empty.
func (r *RingBuffer[T]) ToSlice() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	result := make([]T, r.size)
	idx := r.head

	for i := 0; i < r.size; i++ {
		result[i] = r.buffer[idx]
		idx = (idx + 1) % r.capacity
	}

	return result
}

// Size returns the current number of items. The value is a
// point-in-time snapshot and may be stale in concurrent scenarios.
func (r *RingBuffer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum capacity.
func (r *RingBuffer[T]) Capacity() int {
	return r.capacity // Immutable, no lock needed
}

// IsFull returns true if the buffer is at capacity. The next Push will
// cause an item to be dropped.
func (r *RingBuffer[T]) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == r.capacity
}

// IsEmpty returns true if the buffer has no items.
func (r *RingBuffer[T]) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == 0
}

// DroppedCount returns total items dropped since creation or the last
// Clear. Uses atomic operations for lock-free reading.
func (r *RingBuffer[T]) DroppedCount() int64 {
	return atomic.LoadInt64(&r.dropped)
}

// Clear removes all items and resets the dropped count. The capacity
// remains unchanged. All internal references are cleared to allow GC.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := 0; i < r.capacity; i++ {
		r.buffer[i] = zero
	}

	r.head = 0
	r.tail = 0
	r.size = 0
	atomic.StoreInt64(&r.dropped, 0)
}
