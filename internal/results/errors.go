package results

import (
	"fmt"

	"github.com/objectledge/coral/internal/errors"
)

// IndexOutOfBoundsError reports a row or column index outside the result
// set. Columns are 1-based, rows 0-based.
type IndexOutOfBoundsError struct {
	What  string // "row" or "column"
	Index int
	Len   int
}

func (e *IndexOutOfBoundsError) Error() string {
	if e.What == "column" {
		return fmt.Sprintf("column index %d out of bounds [1, %d]", e.Index, e.Len)
	}
	return fmt.Sprintf("row index %d out of bounds [0, %d)", e.Index, e.Len)
}

// IsIndexOutOfBounds reports whether err is or wraps an IndexOutOfBoundsError.
func IsIndexOutOfBounds(err error) bool {
	var ie *IndexOutOfBoundsError
	return errors.As(err, &ie)
}

func columnIndex(i, n int) error {
	if i < 1 || i > n {
		return &IndexOutOfBoundsError{What: "column", Index: i, Len: n}
	}
	return nil
}

func rowIndex(i, n int) error {
	if i < 0 || i >= n {
		return &IndexOutOfBoundsError{What: "row", Index: i, Len: n}
	}
	return nil
}
