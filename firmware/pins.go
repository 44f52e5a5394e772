//go:build tinygo

package main

import "machine"

const (
	// Counting configuration
	MAX_UNITS  = 8  // Number of counter units (channels 0..MAX_UNITS-1)
	LINE_BYTES = 32 // Longest accepted request line

	// Serial configuration
	// Longest exchange is "CNT 255\n" answered by "OK 4294967295\n" (14 bytes).
	// A host polling three channels at 100 Hz needs ~6,600 bytes/sec both ways,
	// well inside the 11,520 bytes/sec of 115200 8N1.
	UART_BAUD_RATE = 115200
)

// PINS maps protocol pin numbers to board pins. Index N is "gpioN" on the host.
var PINS = [...]machine.Pin{
	machine.D0,
	machine.D1,
	machine.D2,
	machine.D3,
	machine.D4,
	machine.D5,
	machine.D6,
	machine.D7,
	machine.D8,
	machine.D9,
	machine.D10,
}
