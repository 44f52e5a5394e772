package pcnt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTick is the pulse generation period of a connected Mock.
const DefaultTick = 10 * time.Millisecond

// Signal is a simulated pulse source wired to a pin.
type Signal struct {
	Pin Pin
	Hz  float64
	// Gated signals only reach Pin while Gate is driven to GateLevel. This
	// models the multiplexed CF1 output switched by the select line.
	Gated     bool
	Gate      Pin
	GateLevel Level
}

// MockConfig configures the simulated peripheral.
type MockConfig struct {
	Signals []Signal
	Tick    time.Duration
}

// Op names a peripheral operation for fault injection.
type Op string

const (
	OpConfigure Op = "configure"
	OpCount     Op = "count"
	OpReset     Op = "reset"
	OpPause     Op = "pause"
	OpSetLevel  Op = "set_level"
)

type unit struct {
	pin     Pin
	count   uint32
	running bool
}

type fault struct {
	op Op
	id uint8
}

// Mock simulates a pulse counting peripheral and its GPIO block.
// Counter and GPIO operations work whether or not the mock is connected;
// Connect only starts the background pulse generator.
type Mock struct {
	cfg MockConfig

	mu        sync.Mutex
	units     map[Channel]*unit
	levels    map[Pin]Level
	faults    map[fault]error
	residue   []float64 // fractional pulses carried between ticks, per signal
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMock creates a mocked peripheral. A nil cfg produces a mock without
// signal sources, which is driven only through Pulse.
func NewMock(cfg *MockConfig) *Mock {
	m := &Mock{
		units:  make(map[Channel]*unit),
		levels: make(map[Pin]Level),
		faults: make(map[fault]error),
	}
	if cfg != nil {
		m.cfg = *cfg
		m.cfg.Signals = append([]Signal(nil), cfg.Signals...)
	}
	if m.cfg.Tick <= 0 {
		m.cfg.Tick = DefaultTick
	}
	m.residue = make([]float64, len(m.cfg.Signals))
	return m
}

// Connect starts generating pulses for the configured signals.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.connected = true

	go m.generate(ctx, m.done)

	return nil
}

// Close stops the pulse generator.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	done := m.done
	m.connected = false
	m.mu.Unlock()

	<-done
	return nil
}

// IsConnected reports whether the pulse generator is running.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Configure binds ch to pin and starts counting from zero.
func (m *Mock) Configure(ch Channel, pin Pin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[fault{OpConfigure, uint8(ch)}]; err != nil {
		return err
	}
	m.units[ch] = &unit{pin: pin, running: true}
	return nil
}

// Count returns the accumulated count of ch.
func (m *Mock) Count(ch Channel) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[fault{OpCount, uint8(ch)}]; err != nil {
		return 0, err
	}
	u, ok := m.units[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return u.count, nil
}

// Reset zeroes the counter of ch.
func (m *Mock) Reset(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[fault{OpReset, uint8(ch)}]; err != nil {
		return err
	}
	u, ok := m.units[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	u.count = 0
	return nil
}

// Pause stops counting on ch.
func (m *Mock) Pause(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[fault{OpPause, uint8(ch)}]; err != nil {
		return err
	}
	u, ok := m.units[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	u.running = false
	return nil
}

// SetLevel drives pin to level.
func (m *Mock) SetLevel(pin Pin, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.faults[fault{OpSetLevel, uint8(pin)}]; err != nil {
		return err
	}
	m.levels[pin] = level
	return nil
}

// FailOn makes op fail with err for the given channel (or pin for
// OpSetLevel). A nil err clears the fault.
func (m *Mock) FailOn(op Op, id uint8, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := fault{op, id}
	if err == nil {
		delete(m.faults, k)
		return
	}
	m.faults[k] = err
}

// Pulse injects n edges on pin. Every running unit bound to pin counts them.
func (m *Mock) Pulse(pin Pin, n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulse(pin, n)
}

// Level returns the last level driven on pin.
func (m *Mock) Level(pin Pin) (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.levels[pin]
	return l, ok
}

// Bound returns the pin ch is bound to and whether it is counting.
func (m *Mock) Bound(ch Channel) (pin Pin, running bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[ch]
	if !ok {
		return 0, false, false
	}
	return u.pin, u.running, true
}

// Running returns the channels currently counting, sorted.
func (m *Mock) Running() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Channel, 0, len(m.units))
	for ch, u := range m.units {
		if u.running {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (m *Mock) pulse(pin Pin, n uint32) {
	for _, u := range m.units {
		if u.running && u.pin == pin {
			u.count += n
		}
	}
}

// generate feeds the configured signals into the counters every tick.
func (m *Mock) generate(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.step(m.cfg.Tick)
		}
	}
}

// step advances the simulation by dt.
func (m *Mock) step(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.cfg.Signals {
		if s.Hz <= 0 {
			continue
		}
		if s.Gated && m.levels[s.Gate] != s.GateLevel {
			continue
		}
		pulses := s.Hz*dt.Seconds() + m.residue[i]
		whole := uint32(pulses)
		m.residue[i] = pulses - float64(whole)
		if whole > 0 {
			m.pulse(s.Pin, whole)
		}
	}
}
