package sample

import (
	"context"
	"math"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/pulsemeter/pkg/meter"
)

// Rate converts pulses counted over elapsed into pulses per second, rounded.
func Rate(pulses uint32, elapsed time.Duration) uint32 {
	if elapsed <= 0 || pulses == 0 {
		return 0
	}
	hz := math32.Round(float32(pulses) / float32(elapsed.Seconds()))
	if hz >= float32(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(hz)
}

// Counter is the part of a meter MeasureRate uses.
type Counter interface {
	ReadRaw(q meter.Quantity) (uint32, error)
	Reset(q meter.Quantity) error
}

// MeasureRate zeroes the counter of q, lets it count for window and returns
// the observed pulse rate in Hz.
func MeasureRate(ctx context.Context, c Counter, q meter.Quantity, window time.Duration) (uint32, error) {
	if err := c.Reset(q); err != nil {
		return 0, err
	}
	start := time.Now()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(window):
	}

	raw, err := c.ReadRaw(q)
	if err != nil {
		return 0, err
	}
	return Rate(raw, time.Since(start)), nil
}
