// Package dynarray provides a growable, zero-based, index-addressable sequence.
package dynarray

const (
	// defaultCapacity is the number of slots allocated for an empty array.
	defaultCapacity = 10

	// growthFactor multiplies the capacity whenever an append finds the array full.
	growthFactor = 2
)

// Array is a generic dynamic array. Elements are appended at the end, read by
// index and removed by index with the tail shifted left.
//
// The zero value is an empty array ready to use. An Array is not safe for
// concurrent use; callers must serialize access or keep one Array per goroutine.
type Array[T any] struct {
	// items is the backing storage; len(items) is the capacity.
	items []T

	// size is the number of live elements at items[0:size].
	size int
}

// New returns an empty Array with the default capacity.
func New[T any]() *Array[T] {
	return &Array[T]{
		items: make([]T, defaultCapacity),
	}
}

// Append stores item at the end of the array, growing the storage when full.
// Any value of T is accepted, including nil for pointer-like types.
func (a *Array[T]) Append(item T) {
	if a.size == len(a.items) {
		a.grow()
	}
	a.items[a.size] = item
	a.size++
}

// Get returns the element at index.
func (a *Array[T]) Get(index int) (T, error) {
	if err := a.checkIndex(index); err != nil {
		var zero T
		return zero, err
	}
	return a.items[index], nil
}

// Remove deletes the element at index. Elements after it move one position
// to the left and the vacated slot is reset so it no longer references the
// removed value.
func (a *Array[T]) Remove(index int) error {
	if err := a.checkIndex(index); err != nil {
		return err
	}
	copy(a.items[index:a.size-1], a.items[index+1:a.size])
	a.size--

	var zero T
	a.items[a.size] = zero
	return nil
}

// Len returns the number of elements in the array.
func (a *Array[T]) Len() int {
	return a.size
}

// Cap returns the number of slots currently allocated.
func (a *Array[T]) Cap() int {
	return len(a.items)
}

func (a *Array[T]) checkIndex(index int) error {
	if index < 0 || index >= a.size {
		return &OutOfRangeError{Index: index, Len: a.size}
	}
	return nil
}

// grow replaces the storage with one growthFactor times larger, keeping the
// live elements at the same positions.
func (a *Array[T]) grow() {
	newCap := len(a.items) * growthFactor
	if newCap == 0 {
		newCap = defaultCapacity
	}
	items := make([]T, newCap)
	copy(items, a.items[:a.size])
	a.items = items
}
