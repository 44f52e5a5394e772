package meter

import (
	"fmt"
	"strings"
)

// Mode selects which quantities are acquired.
type Mode uint8

const (
	// DualChannel counts voltage and current on their own channels; power has its own channel too.
	DualChannel Mode = iota
	// SingleCurrent counts only the current signal.
	SingleCurrent
	// SingleVoltage counts only the voltage signal.
	SingleVoltage
)

// Modes lists every operating mode.
var Modes = []Mode{DualChannel, SingleCurrent, SingleVoltage}

func (m Mode) String() string {
	switch m {
	case DualChannel:
		return "dual"
	case SingleCurrent:
		return "current"
	case SingleVoltage:
		return "voltage"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m <= SingleVoltage }

// Active returns the quantities observable in m.
func (m Mode) Active() []Quantity {
	switch m {
	case DualChannel:
		return []Quantity{Power, Voltage, Current}
	case SingleCurrent:
		return []Quantity{Current}
	case SingleVoltage:
		return []Quantity{Voltage}
	}
	return nil
}

// Observes reports whether q is observable in m.
func (m Mode) Observes(q Quantity) bool {
	for _, a := range m.Active() {
		if a == q {
			return true
		}
	}
	return false
}

// ParseMode parses a mode name. Accepted forms are the String values and
// "both", "single-current", "single-voltage" (also with underscores).
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "dual", "both", "dual-channel":
		return DualChannel, nil
	case "current", "single-current":
		return SingleCurrent, nil
	case "voltage", "single-voltage":
		return SingleVoltage, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Quantity is a measured physical quantity.
type Quantity uint8

const (
	Power Quantity = iota
	Voltage
	Current
)

// Quantities lists every quantity.
var Quantities = []Quantity{Power, Voltage, Current}

func (q Quantity) String() string {
	switch q {
	case Power:
		return "power"
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	}
	return fmt.Sprintf("quantity(%d)", uint8(q))
}

// Valid reports whether q is a known quantity.
func (q Quantity) Valid() bool { return q <= Current }

// ParseQuantity parses a quantity name ("power", "voltage", "current" or p/v/i).
func ParseQuantity(s string) (Quantity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "power", "p", "w":
		return Power, nil
	case "voltage", "v", "u":
		return Voltage, nil
	case "current", "i", "a":
		return Current, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
}
