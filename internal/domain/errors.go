package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the bar source returned nothing usable.
	ErrNoData = errors.New("no data returned")
	// ErrInsufficientData means there are not enough eligible bars for the lag count.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDimensionMismatch means the feature vector width differs from the model width.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrTransientFetch covers any other fetch-time failure.
	ErrTransientFetch = errors.New("transient fetch failure")
)

type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d eligible bars, need %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: vector has %d values, model expects %d", e.Got, e.Want)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
