//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"sync/atomic"
	"time"

	"github.com/itohio/pulsemeter/pkg/wire"
)

// unit is one edge counter. Every field is read from pin interrupts.
type unit struct {
	configured atomic.Bool
	pin        atomic.Uint32
	count      atomic.Uint32
	running    atomic.Bool
}

var (
	uart = machine.UART0

	units    [MAX_UNITS]unit
	attached [len(PINS)]bool // rising-edge interrupt installed
	outputs  [len(PINS)]bool // pin driven as output by LVL

	// Serial buffer for reading lines
	serialBuffer [LINE_BYTES]byte
	serialPos    int
	overflow     bool
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	uart.Write([]byte("pulsemeter ready\n"))

	for {
		processSerial()

		// Small delay to prevent tight loop
		time.Sleep(100 * time.Microsecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if overflow {
				reply(wire.Fail("line_too_long"))
			} else if serialPos > 0 {
				reply(handle(string(serialBuffer[:serialPos])))
			}
			serialPos = 0
			overflow = false
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Drop the rest of the line and answer once at its end
			overflow = true
		}
	}
}

func reply(r wire.Reply) {
	uart.Write([]byte(r.String() + "\n"))
}

func handle(line string) wire.Reply {
	req, err := wire.ParseRequest(line)
	if err != nil {
		return wire.Fail("bad_request")
	}
	return dispatch(req).To(req)
}

func dispatch(req wire.Request) wire.Reply {
	switch req.Op {
	case wire.OpConfigure:
		return configure(req.Channel, req.Pin)

	case wire.OpCount:
		u, ok := lookup(req.Channel)
		if !ok {
			return wire.Fail("unknown_channel")
		}
		return wire.Value(u.count.Load())

	case wire.OpReset:
		u, ok := lookup(req.Channel)
		if !ok {
			return wire.Fail("unknown_channel")
		}
		u.count.Store(0)
		return wire.OK()

	case wire.OpPause:
		u, ok := lookup(req.Channel)
		if !ok {
			return wire.Fail("unknown_channel")
		}
		u.running.Store(false)
		return wire.OK()

	case wire.OpLevel:
		return setLevel(req.Pin, req.High)
	}

	return wire.Fail("bad_request")
}

func lookup(ch uint8) (*unit, bool) {
	if int(ch) >= len(units) || !units[ch].configured.Load() {
		return nil, false
	}
	return &units[ch], true
}

// configure binds ch to pin, zeroes it and starts counting rising edges.
func configure(ch, pin uint8) wire.Reply {
	if int(ch) >= len(units) {
		return wire.Fail("unknown_channel")
	}
	if int(pin) >= len(PINS) {
		return wire.Fail("unknown_pin")
	}
	if outputs[pin] {
		return wire.Fail("pin_in_use")
	}

	// Stop the unit before rebinding so onEdge never counts for the old pin.
	u := &units[ch]
	u.running.Store(false)
	u.pin.Store(uint32(pin))
	u.count.Store(0)
	u.configured.Store(true)

	if !attached[pin] {
		p := PINS[pin]
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
		if err := p.SetInterrupt(machine.PinRising, onEdge); err != nil {
			u.configured.Store(false)
			return wire.Fail("interrupt")
		}
		attached[pin] = true
	}

	u.running.Store(true)
	return wire.OK()
}

// setLevel drives pin as an output.
func setLevel(pin uint8, high bool) wire.Reply {
	if int(pin) >= len(PINS) {
		return wire.Fail("unknown_pin")
	}
	if attached[pin] {
		return wire.Fail("pin_in_use")
	}

	p := PINS[pin]
	if !outputs[pin] {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		outputs[pin] = true
	}
	p.Set(high)
	return wire.OK()
}

// onEdge runs in interrupt context.
func onEdge(p machine.Pin) {
	for i := range units {
		u := &units[i]
		if u.running.Load() && u.configured.Load() && PINS[u.pin.Load()] == p {
			u.count.Add(1)
		}
	}
}
