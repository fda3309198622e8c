package async

import (
	"errors"
	"fmt"
)

var (
	ErrAbandoned = errors.New("async: wait abandoned")
	ErrPanic     = errors.New("async: function panicked")
)

// PanicError carries a recovered panic value and the goroutine stack.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("async: function panicked: %v", e.Value) }

func (e *PanicError) Is(target error) bool { return target == ErrPanic }
