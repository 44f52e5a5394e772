package pcnt

import (
	"errors"
	"strconv"
)

// Channel identifies a hardware pulse counter unit.
type Channel uint8

func (c Channel) String() string { return "ch" + strconv.Itoa(int(c)) }

// Pin is a GPIO number.
type Pin uint8

func (p Pin) String() string { return "gpio" + strconv.Itoa(int(p)) }

// Level is a GPIO output level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Counter is the edge counting peripheral.
type Counter interface {
	// Configure binds ch to pin and starts counting from zero.
	Configure(ch Channel, pin Pin) error
	// Count returns the edges accumulated on ch since the last Configure or Reset.
	Count(ch Channel) (uint32, error)
	// Reset zeroes the counter of ch.
	Reset(ch Channel) error
	// Pause stops counting on ch. The accumulated count is kept.
	Pause(ch Channel) error
}

// GPIO drives output lines.
type GPIO interface {
	SetLevel(pin Pin, level Level) error
}

// Peripheral is a backend providing both collaborators.
type Peripheral interface {
	Counter
	GPIO
}

// Device is a Peripheral with a connection lifecycle (real or mocked).
type Device interface {
	Peripheral
	Connect() error
	Close() error
	IsConnected() bool
}

var (
	ErrUnknownChannel = errors.New("unknown_channel")
	ErrUnknownPin     = errors.New("unknown_pin")
	ErrPinInUse       = errors.New("pin_in_use")
	ErrNotConnected   = errors.New("not connected")
	ErrTimeout        = errors.New("timeout")
)

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// Ensure GPIOHost implements Device.
var _ Device = (*GPIOHost)(nil)
