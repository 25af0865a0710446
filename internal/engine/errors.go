package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// InsufficientDataError reports a series shorter than the longest warm-up window.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough data to evaluate, need ≥ %d bars (have %d)", e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
