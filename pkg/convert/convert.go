package convert

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

var (
	// ErrZeroReference is returned when a reference parameter of 0 is used.
	ErrZeroReference = errors.New("zero reference parameter")
	// ErrInvalidCalibration is returned when a calibration load is not a positive finite value.
	ErrInvalidCalibration = errors.New("invalid calibration load")
)

// Convert scales a raw pulse count into a physical value.
// ref is the number of pulses per unit, so the result is raw / ref rounded down.
func Convert(raw, ref uint32) (uint32, error) {
	if ref == 0 {
		return 0, ErrZeroReference
	}
	return raw / ref, nil
}

// Validate checks that ref can be used with Convert.
func Validate(ref uint32) error {
	if ref == 0 {
		return ErrZeroReference
	}
	return nil
}

// Calibrate derives a reference parameter from a raw count observed while a
// known load was applied. The result is round(raw / known).
func Calibrate(raw uint32, known float32) (uint32, error) {
	if known <= 0 || math32.IsNaN(known) || math32.IsInf(known, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCalibration, known)
	}

	ref := math32.Round(float32(raw) / known)
	if ref < 1 {
		return 0, fmt.Errorf("%w: %d pulses for load %v", ErrZeroReference, raw, known)
	}
	if ref >= math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(ref), nil
}
