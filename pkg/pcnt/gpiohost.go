package pcnt

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePoll bounds how long a watcher blocks in WaitForEdge before checking
// whether it was stopped.
const edgePoll = 100 * time.Millisecond

// GPIOHost counts edges on the GPIO lines of the host itself, such as a
// Raspberry Pi wired directly to the metering chip. Pins are BCM numbers.
type GPIOHost struct {
	init   func() error
	lookup func(Pin) gpio.PinIO

	mu        sync.Mutex
	units     map[Channel]*unit
	watchers  map[Pin]*watcher
	stopping  map[Pin]*watcher // stopped, possibly still inside WaitForEdge
	outputs   map[Pin]gpio.PinIO
	connected bool
}

// watcher waits for edges on one input pin.
type watcher struct {
	stop chan struct{}
	done chan struct{}
}

// NewGPIOHost creates a backend on the host GPIO driver.
func NewGPIOHost() *GPIOHost {
	return newGPIOHost(
		func() error {
			_, err := host.Init()
			return err
		},
		func(p Pin) gpio.PinIO {
			return gpioreg.ByName("GPIO" + strconv.Itoa(int(p)))
		},
	)
}

func newGPIOHost(init func() error, lookup func(Pin) gpio.PinIO) *GPIOHost {
	return &GPIOHost{
		init:     init,
		lookup:   lookup,
		units:    make(map[Channel]*unit),
		watchers: make(map[Pin]*watcher),
		stopping: make(map[Pin]*watcher),
		outputs:  make(map[Pin]gpio.PinIO),
	}
}

// Connect initialises the host drivers.
func (h *GPIOHost) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connected {
		return fmt.Errorf("already connected")
	}
	if err := h.init(); err != nil {
		return fmt.Errorf("failed to initialise host gpio: %w", err)
	}
	h.connected = true
	return nil
}

// Close stops every watcher and forgets all channels.
func (h *GPIOHost) Close() error {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return nil
	}
	watchers := h.watchers
	stopping := h.stopping
	h.watchers = make(map[Pin]*watcher)
	h.stopping = make(map[Pin]*watcher)
	h.units = make(map[Channel]*unit)
	h.outputs = make(map[Pin]gpio.PinIO)
	h.connected = false
	h.mu.Unlock()

	for _, w := range watchers {
		close(w.stop)
		<-w.done
	}
	for _, w := range stopping {
		<-w.done
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close was not called.
func (h *GPIOHost) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Configure binds ch to pin and starts counting rising edges from zero.
// A watcher stopped on pin by an earlier Pause is waited for first, so no
// edge is taken by a goroutine that no longer counts.
func (h *GPIOHost) Configure(ch Channel, pin Pin) error {
	h.mu.Lock()
	for {
		w, ok := h.stopping[pin]
		if !ok {
			break
		}
		h.mu.Unlock()
		<-w.done
		h.mu.Lock()
		if h.stopping[pin] == w {
			delete(h.stopping, pin)
		}
	}
	defer h.mu.Unlock()

	if !h.connected {
		return ErrNotConnected
	}
	if _, out := h.outputs[pin]; out {
		return fmt.Errorf("configure %s: %w", pin, ErrPinInUse)
	}

	if u, ok := h.units[ch]; ok && u.pin != pin {
		u.running = false
		h.unwatchLocked(u.pin)
	}

	if _, ok := h.watchers[pin]; !ok {
		p := h.lookup(pin)
		if p == nil {
			return fmt.Errorf("configure %s: %w", pin, ErrUnknownPin)
		}
		if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return fmt.Errorf("configure %s: %w", pin, err)
		}
		w := &watcher{stop: make(chan struct{}), done: make(chan struct{})}
		h.watchers[pin] = w
		go h.watch(pin, p, w)
	}

	h.units[ch] = &unit{pin: pin, running: true}
	return nil
}

// Count returns the edges accumulated on ch.
func (h *GPIOHost) Count(ch Channel) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.units[ch]
	if !ok {
		return 0, fmt.Errorf("count %s: %w", ch, ErrUnknownChannel)
	}
	return u.count, nil
}

// Reset zeroes the counter of ch.
func (h *GPIOHost) Reset(ch Channel) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.units[ch]
	if !ok {
		return fmt.Errorf("reset %s: %w", ch, ErrUnknownChannel)
	}
	u.count = 0
	return nil
}

// Pause stops counting on ch. The pin watcher stops once no running channel uses it.
func (h *GPIOHost) Pause(ch Channel) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.units[ch]
	if !ok {
		return fmt.Errorf("pause %s: %w", ch, ErrUnknownChannel)
	}
	u.running = false
	h.unwatchLocked(u.pin)
	return nil
}

// SetLevel drives pin as an output.
func (h *GPIOHost) SetLevel(pin Pin, level Level) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return ErrNotConnected
	}
	if _, in := h.watchers[pin]; in {
		return fmt.Errorf("set %s: %w", pin, ErrPinInUse)
	}

	p, ok := h.outputs[pin]
	if !ok {
		p = h.lookup(pin)
		if p == nil {
			return fmt.Errorf("set %s: %w", pin, ErrUnknownPin)
		}
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("set %s %s: %w", pin, level, err)
	}
	h.outputs[pin] = p
	return nil
}

// Watching lists the pins that currently have an edge watcher.
func (h *GPIOHost) Watching() []Pin {
	h.mu.Lock()
	defer h.mu.Unlock()

	pins := make([]Pin, 0, len(h.watchers))
	for p := range h.watchers {
		pins = append(pins, p)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i] < pins[j] })
	return pins
}

// unwatchLocked stops the watcher of pin when no running channel needs it.
// The watcher exits within edgePoll; Configure and Close wait for it.
func (h *GPIOHost) unwatchLocked(pin Pin) {
	for _, u := range h.units {
		if u.running && u.pin == pin {
			return
		}
	}
	if w, ok := h.watchers[pin]; ok {
		close(w.stop)
		delete(h.watchers, pin)
		h.stopping[pin] = w
	}
}

func (h *GPIOHost) watch(pin Pin, p gpio.PinIO, w *watcher) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		if !p.WaitForEdge(edgePoll) {
			continue
		}

		h.mu.Lock()
		select {
		case <-w.stop:
			h.mu.Unlock()
			return
		default:
		}
		n := 0
		for _, u := range h.units {
			if u.running && u.pin == pin {
				u.count++
				n++
			}
		}
		h.mu.Unlock()

		if n == 0 {
			log.Printf("Edge on %s with no running channel", pin)
		}
	}
}
