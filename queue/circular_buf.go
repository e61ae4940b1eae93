package queue

import (
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// errInvalidSize is returned when an invalid size for a buffer is
	// provided.
	errInvalidSize = errors.New("buffer size must be > 0")

	// ErrNotRetained is returned when an index refers to an item that
	// has already been overwritten by newer items.
	ErrNotRetained = errors.New("index no longer retained")

	// ErrIndexOutOfRange is returned when an index refers to an item that
	// has not been written yet.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// CircularBuffer is a buffer which retains a fixed number of values in
// memory, and overwrites the oldest item in the buffer when a new item needs
// to be written. Every item is addressed by a stable external index which
// starts at zero and increases by one for each item added. The external
// index of an item never changes, but it stops resolving once the item has
// been overwritten.
type CircularBuffer[T any] struct {
	// total is the total number of items that have been added to the
	// buffer. It is also the external index of the next item.
	total uint64

	// items is the set of buffered items.
	items []T
}

// NewCircularBuffer returns a new circular buffer with the size provided. It
// will fail if a zero or negative size parameter is provided.
func NewCircularBuffer[T any](size int) (*CircularBuffer[T], error) {
	if size <= 0 {
		return nil, errInvalidSize
	}

	return &CircularBuffer[T]{
		total: 0,

		// Create a slice with length and capacity equal to the size of
		// the buffer so that we do not need to resize the underlying
		// array when we add items.
		items: make([]T, size),
	}, nil
}

// RestoreCircularBuffer rebuilds a buffer from its physical slots and the
// total number of items that had been added to it. The slots are taken in
// physical order, exactly as returned by Slots.
func RestoreCircularBuffer[T any](total uint64,
	slots []T) (*CircularBuffer[T], error) {

	if len(slots) == 0 {
		return nil, errInvalidSize
	}

	items := make([]T, len(slots))
	copy(items, slots)

	return &CircularBuffer[T]{
		total: total,
		items: items,
	}, nil
}

// size returns the number of slots in the buffer.
func (c *CircularBuffer[T]) size() uint64 {
	return uint64(len(c.items))
}

// index returns the physical slot that should be written to next.
func (c *CircularBuffer[T]) index() uint64 {
	return c.total % c.size()
}

// oldest returns the external index of the oldest retained item. When fewer
// items than the buffer size have been added the window starts at zero.
func (c *CircularBuffer[T]) oldest() uint64 {
	if c.total <= c.size() {
		return 0
	}

	return c.total - c.size()
}

// Push adds an item to the buffer, overwriting the oldest item if the buffer
// is full, and returns the external index assigned to it.
func (c *CircularBuffer[T]) Push(item T) uint64 {
	// Set the item in the next free index in the items array.
	c.items[c.index()] = item

	idx := c.total

	// Increment the total number of items that we have stored.
	c.total++

	return idx
}

// Add adds an item to the buffer, discarding its external index.
func (c *CircularBuffer[T]) Add(item T) {
	c.Push(item)
}

// Get returns the item stored at the given external index. ErrNotRetained is
// returned when the item has been overwritten, and ErrIndexOutOfRange when
// the index has not been assigned yet.
func (c *CircularBuffer[T]) Get(idx uint64) (T, error) {
	var zero T

	switch {
	case idx >= c.total:
		return zero, ErrIndexOutOfRange

	case idx < c.oldest():
		return zero, ErrNotRetained
	}

	return c.items[idx%c.size()], nil
}

// Contains returns true if the external index currently resolves to an item.
func (c *CircularBuffer[T]) Contains(idx uint64) bool {
	return idx < c.total && idx >= c.oldest()
}

// FindBy returns the external index of the most recently added item that
// satisfies the predicate, scanning every retained slot.
func (c *CircularBuffer[T]) FindBy(pred func(T) bool) fn.Option[uint64] {
	if c.total == 0 {
		return fn.None[uint64]()
	}

	var (
		size = c.size()
		head = c.index()

		// base is the external index of the item held in slot zero
		// during the current lap around the buffer.
		base = c.total - head
	)

	// Walk backwards from the newest slot so that the most recent match
	// wins. Slots before the head belong to the current lap, slots at or
	// after it were written one lap earlier.
	for i := uint64(0); i < size; i++ {
		slot := (head + size - 1 - i) % size

		var idx uint64
		switch {
		case slot < head:
			idx = base + slot

		// The slot lies ahead of the write head, but only holds a
		// real item if the buffer has wrapped at least once.
		case base >= size:
			idx = base - size + slot

		default:
			continue
		}

		if pred(c.items[slot]) {
			return fn.Some(idx)
		}
	}

	return fn.None[uint64]()
}

// List returns a copy of the items in the buffer ordered from the oldest to
// newest item.
func (c *CircularBuffer[T]) List() []T {
	size := c.size()
	index := c.index()

	switch {
	// If no items have been stored yet, we can just return a nil list.
	case c.total == 0:
		return nil

	// If we have added fewer items than the buffer size, we can simply
	// return the total number of items from the beginning of the list
	// to the index. The oldest item is at the beginning of the underlying
	// array, not at the index, when we have not filled the array yet.
	case c.total < size:
		resp := make([]T, c.total)
		copy(resp, c.items[:index])
		return resp
	}

	resp := make([]T, size)

	// The items from index to end come first, the first of them being the
	// oldest item in the buffer.
	firstHalf := c.items[index:]
	copy(resp, firstHalf)

	// The items from the beginning until the write index follow, ending
	// with the newest item.
	copy(resp[len(firstHalf):], c.items[:index])

	return resp
}

// Slots returns a copy of the underlying slots in physical order.
func (c *CircularBuffer[T]) Slots() []T {
	resp := make([]T, len(c.items))
	copy(resp, c.items)

	return resp
}

// Total returns the total number of items that have been added to the buffer.
// This is also the external index the next item will receive.
func (c *CircularBuffer[T]) Total() uint64 {
	return c.total
}

// Size returns the number of items the buffer can hold.
func (c *CircularBuffer[T]) Size() int {
	return len(c.items)
}

// Latest returns the item that was most recently added to the buffer, if any.
func (c *CircularBuffer[T]) Latest() fn.Option[T] {
	// If no items have been added yet, there is nothing to return.
	if c.total == 0 {
		return fn.None[T]()
	}

	// The latest item is one before our total, mod by length.
	return fn.Some(c.items[(c.total-1)%c.size()])
}
