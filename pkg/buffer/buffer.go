// Package buffer provides a generic, thread-safe circular buffer used to
// decouple the stream transport from frame processing.
//
// The buffer is fixed-size with a configurable overflow policy (DropOldest or
// DropNewest). Statistics are always collected; Prometheus metrics are
// optional via the WithMetrics functional option. The transport callback must
// never block, so there is intentionally no blocking overflow policy.
package buffer

// Buffer represents a generic buffer interface.
// The buffer is parameterized by item type T for type safety.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior when the buffer is full
	// depends on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the item and true if successful, zero value and false if empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items from the buffer.
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it from the buffer.
	Peek() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer. Writes after Close fail.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a new circular buffer with the specified capacity
// and options. Returns an error if metrics registration fails when metrics
// are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
