package reconstruction

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every precondition failure: missing or
// undecodable files, empty masks, mismatched image sizes and bad parameters.
// Any such error aborts the run before outputs are written.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
