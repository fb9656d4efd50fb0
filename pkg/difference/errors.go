package difference

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch    = errors.New("frame shape mismatch")
	ErrInvalidTolerance = errors.New("invalid tolerance")
	ErrNilFrame         = errors.New("nil frame")
)

// ShapeMismatchError reports two inputs that cannot be compared pixel by pixel.
type ShapeMismatchError struct {
	LenA, LenB int
	// Frames is set when whole frames were compared; only then are the
	// dimensions meaningful.
	Frames          bool
	WidthA, HeightA int
	WidthB, HeightB int
}

func (e *ShapeMismatchError) Error() string {
	if e.Frames {
		return fmt.Sprintf("%s: %dx%d vs %dx%d", ErrShapeMismatch, e.WidthA, e.HeightA, e.WidthB, e.HeightB)
	}
	return fmt.Sprintf("%s: %d pixels vs %d pixels", ErrShapeMismatch, e.LenA, e.LenB)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

type InvalidToleranceError struct {
	Tolerance int
}

func (e *InvalidToleranceError) Error() string {
	return fmt.Sprintf("%s: %d not in [%d,%d]", ErrInvalidTolerance, e.Tolerance, MinTolerance, MaxTolerance)
}

func (e *InvalidToleranceError) Is(target error) bool {
	return target == ErrInvalidTolerance
}

// ValidateTolerance returns an *InvalidToleranceError for values outside
// [MinTolerance, MaxTolerance].
func ValidateTolerance(tolerance int) error {
	if tolerance < MinTolerance || tolerance > MaxTolerance {
		return &InvalidToleranceError{Tolerance: tolerance}
	}
	return nil
}
