package meter

import (
	"fmt"
	"time"

	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

// Config describes how a meter is wired. It is copied by New and never changes afterwards.
type Config struct {
	PowerPin     pcnt.Pin
	PowerChannel pcnt.Channel
	PowerRef     uint32 // pulses per unit of power

	VoltagePin     pcnt.Pin
	VoltageChannel pcnt.Channel
	VoltageRef     uint32

	CurrentPin     pcnt.Pin
	CurrentChannel pcnt.Channel
	CurrentRef     uint32

	// SelectPin routes the current signal to the shared output when driven
	// to SelectLevel and the voltage signal otherwise.
	SelectPin   pcnt.Pin
	SelectLevel pcnt.Level

	// Mode is the initial operating mode.
	Mode Mode

	// Settle is waited after the select line changes level.
	Settle time.Duration
}

// Multiplexed reports whether voltage and current share one pin. Such a
// meter cannot run in DualChannel mode.
func (c Config) Multiplexed() bool { return c.VoltagePin == c.CurrentPin }

// Validate checks references, channel and pin assignments and the initial mode.
func (c Config) Validate() error {
	for _, q := range Quantities {
		if err := convert.Validate(c.Ref(q)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, q, err)
		}
	}

	seen := make(map[pcnt.Channel]Quantity, len(Quantities))
	for _, q := range Quantities {
		ch := c.channel(q)
		if other, ok := seen[ch]; ok {
			return fmt.Errorf("%w: %s and %s share %s", ErrConfig, other, q, ch)
		}
		seen[ch] = q
	}

	if c.PowerPin == c.VoltagePin || c.PowerPin == c.CurrentPin {
		return fmt.Errorf("%w: power shares %s with another signal", ErrConfig, c.PowerPin)
	}
	for _, q := range Quantities {
		if c.SelectPin == c.pin(q) {
			return fmt.Errorf("%w: select line shares %s with %s", ErrConfig, c.SelectPin, q)
		}
	}

	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrConfig, ErrInvalidMode, uint8(c.Mode))
	}
	if c.Mode == DualChannel && c.Multiplexed() {
		return fmt.Errorf("%w: %w: %s with voltage and current on %s", ErrConfig, ErrModeUnsupported, c.Mode, c.VoltagePin)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: negative settle time %v", ErrConfig, c.Settle)
	}

	return nil
}

// SelectFor returns the select line level used in m.
func (c Config) SelectFor(m Mode) pcnt.Level {
	if m == SingleVoltage {
		return !c.SelectLevel
	}
	return c.SelectLevel
}

func (c Config) pin(q Quantity) pcnt.Pin {
	switch q {
	case Voltage:
		return c.VoltagePin
	case Current:
		return c.CurrentPin
	}
	return c.PowerPin
}

func (c Config) channel(q Quantity) pcnt.Channel {
	switch q {
	case Voltage:
		return c.VoltageChannel
	case Current:
		return c.CurrentChannel
	}
	return c.PowerChannel
}

// Ref returns the reference parameter of q.
func (c Config) Ref(q Quantity) uint32 {
	switch q {
	case Voltage:
		return c.VoltageRef
	case Current:
		return c.CurrentRef
	}
	return c.PowerRef
}

// resources lists everything a meter claims for its lifetime.
func (c Config) resources() []resource {
	res := []resource{
		channelResource(c.PowerChannel),
		channelResource(c.VoltageChannel),
		channelResource(c.CurrentChannel),
		pinResource(c.PowerPin),
		pinResource(c.VoltagePin),
		pinResource(c.SelectPin),
	}
	if !c.Multiplexed() {
		res = append(res, pinResource(c.CurrentPin))
	}
	return res
}
