package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr error
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "zero power ref", modify: func(c *Config) { c.PowerRef = 0 }, wantErr: convert.ErrZeroReference},
		{name: "zero voltage ref", modify: func(c *Config) { c.VoltageRef = 0 }, wantErr: convert.ErrZeroReference},
		{name: "zero current ref", modify: func(c *Config) { c.CurrentRef = 0 }, wantErr: convert.ErrZeroReference},
		{name: "shared channel", modify: func(c *Config) { c.CurrentChannel = c.VoltageChannel }, wantErr: ErrConfig},
		{name: "power channel aliased", modify: func(c *Config) { c.PowerChannel = c.CurrentChannel }, wantErr: ErrConfig},
		{name: "power shares pin", modify: func(c *Config) { c.PowerPin = c.VoltagePin }, wantErr: ErrConfig},
		{name: "select shares pin", modify: func(c *Config) { c.SelectPin = c.CurrentPin }, wantErr: ErrConfig},
		{name: "invalid mode", modify: func(c *Config) { c.Mode = Mode(9) }, wantErr: ErrInvalidMode},
		{name: "multiplexed dual", modify: func(c *Config) { c.CurrentPin = c.VoltagePin }, wantErr: ErrModeUnsupported},
		{name: "multiplexed single", modify: func(c *Config) {
			c.CurrentPin = c.VoltagePin
			c.Mode = SingleVoltage
		}},
		{name: "negative settle", modify: func(c *Config) { c.Settle = -time.Millisecond }, wantErr: ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConfig)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_SelectFor(t *testing.T) {
	cfg := testConfig()
	cfg.SelectLevel = pcnt.Low

	assert.Equal(t, pcnt.Low, cfg.SelectFor(DualChannel))
	assert.Equal(t, pcnt.Low, cfg.SelectFor(SingleCurrent))
	assert.Equal(t, pcnt.High, cfg.SelectFor(SingleVoltage))
}

func TestConfig_Resources(t *testing.T) {
	cfg := testConfig()
	assert.Len(t, cfg.resources(), 7)

	cfg.CurrentPin = cfg.VoltagePin
	assert.Len(t, cfg.resources(), 6)
}
