package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		ref  uint32
		want uint32
	}{
		{name: "power", raw: 500, ref: 100, want: 5},
		{name: "voltage", raw: 220, ref: 10, want: 22},
		{name: "current rounds down", raw: 15, ref: 5, want: 3},
		{name: "below one unit", raw: 4, ref: 5, want: 0},
		{name: "zero count", raw: 0, ref: 7, want: 0},
		{name: "unit reference", raw: 12345, ref: 1, want: 12345},
		{name: "max count", raw: math.MaxUint32, ref: 1, want: math.MaxUint32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.raw, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_ZeroReference(t *testing.T) {
	got, err := Convert(100, 0)
	assert.ErrorIs(t, err, ErrZeroReference)
	assert.Zero(t, got)

	_, err = Convert(0, 0)
	assert.ErrorIs(t, err, ErrZeroReference)
}

func TestConvert_ZeroCount(t *testing.T) {
	for _, ref := range []uint32{1, 2, 10, 1000, math.MaxUint32} {
		got, err := Convert(0, ref)
		require.NoError(t, err)
		assert.Zero(t, got, "ref %d", ref)
	}
}

func TestConvert_Monotonic(t *testing.T) {
	for _, ref := range []uint32{1, 3, 7, 100} {
		prev := uint32(0)
		for raw := uint32(0); raw < 2000; raw += 13 {
			got, err := Convert(raw, ref)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, prev, "raw %d ref %d", raw, ref)
			prev = got
		}
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(1))
	assert.ErrorIs(t, Validate(0), ErrZeroReference)
}

func TestCalibrate(t *testing.T) {
	tests := []struct {
		name    string
		raw     uint32
		known   float32
		want    uint32
		wantErr error
	}{
		{name: "exact", raw: 2300, known: 230, want: 10},
		{name: "rounds to nearest", raw: 1049, known: 10, want: 105},
		{name: "fractional load", raw: 300, known: 0.5, want: 600},
		{name: "zero load", raw: 100, known: 0, wantErr: ErrInvalidCalibration},
		{name: "negative load", raw: 100, known: -1, wantErr: ErrInvalidCalibration},
		{name: "NaN load", raw: 100, known: float32(math.NaN()), wantErr: ErrInvalidCalibration},
		{name: "infinite load", raw: 100, known: float32(math.Inf(1)), wantErr: ErrInvalidCalibration},
		{name: "too few pulses", raw: 1, known: 10, wantErr: ErrZeroReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calibrate(tt.raw, tt.known)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalibrate_RoundTrip(t *testing.T) {
	ref, err := Calibrate(2200, 220)
	require.NoError(t, err)

	got, err := Convert(2200, ref)
	require.NoError(t, err)
	assert.Equal(t, uint32(220), got)
}
