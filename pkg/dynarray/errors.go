package dynarray

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is matched by errors.Is for every *OutOfRangeError.
var ErrOutOfRange = errors.New("index out of range")

// OutOfRangeError reports an index outside [0, Len) passed to Get or Remove.
type OutOfRangeError struct {
	Index int // the offending index
	Len   int // the array length at the time of the call
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("index out of range [%d] with length %d", e.Index, e.Len)
}

// Is reports whether target is ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}
