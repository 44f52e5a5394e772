package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_Active(t *testing.T) {
	assert.Equal(t, []Quantity{Power, Voltage, Current}, DualChannel.Active())
	assert.Equal(t, []Quantity{Current}, SingleCurrent.Active())
	assert.Equal(t, []Quantity{Voltage}, SingleVoltage.Active())
	assert.Nil(t, Mode(5).Active())

	assert.True(t, DualChannel.Observes(Power))
	assert.False(t, SingleCurrent.Observes(Voltage))
	assert.False(t, SingleVoltage.Observes(Power))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"dual", DualChannel},
		{"both", DualChannel},
		{"Dual_Channel", DualChannel},
		{"current", SingleCurrent},
		{"single-current", SingleCurrent},
		{" single_voltage ", SingleVoltage},
		{"VOLTAGE", SingleVoltage},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("triple")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMode_Text(t *testing.T) {
	for _, m := range Modes {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back Mode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	_, err := Mode(3).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "mode(3)", Mode(3).String())
}

func TestParseQuantity(t *testing.T) {
	for in, want := range map[string]Quantity{
		"power":   Power,
		"P":       Power,
		"voltage": Voltage,
		"v":       Voltage,
		"Current": Current,
		"i":       Current,
	} {
		got, err := ParseQuantity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseQuantity("energy")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.False(t, Quantity(3).Valid())
	assert.Equal(t, "quantity(3)", Quantity(3).String())
}
