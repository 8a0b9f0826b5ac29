package tool

import (
	"fmt"
)

// UsageError reports bad or missing command line arguments. It is raised before
// any store is opened.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Usagef creates a UsageError with a formatted message
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports that the destination of a rename already exists.
// The store is left unchanged.
type ConflictError struct {
	Key   string
	Value []byte
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Already exists: %s => %s", e.Key, e.Value)
}
