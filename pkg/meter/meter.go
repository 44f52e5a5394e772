package meter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

// Reader is the read side of a meter.
type Reader interface {
	Mode() Mode
	Read(q Quantity) (uint32, error)
	ReadRaw(q Quantity) (uint32, error)
	Config() Config
}

var _ Reader = (*Meter)(nil)

// Meter converts pulse counts into power, voltage and current readings and
// switches the counting peripheral between operating modes.
//
// Reads may run concurrently. ChangeMode and Close are exclusive with reads.
type Meter struct {
	id      uint64
	cfg     Config
	counter pcnt.Counter
	gpio    pcnt.GPIO

	mu       sync.RWMutex
	mode     Mode
	live     map[pcnt.Channel]bool // channels bound and counting
	degraded bool
	closed   bool
}

// New validates cfg, claims its channels and pins, drives the select line
// and starts counting the channels needed by cfg.Mode.
// Nothing stays claimed or counting when New fails.
func New(cfg Config, counter pcnt.Counter, gpio pcnt.GPIO) (*Meter, error) {
	if counter == nil || gpio == nil {
		return nil, fmt.Errorf("%w: missing counter or gpio", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id, err := claims.claim(cfg.resources())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	m := &Meter{
		id:      id,
		cfg:     cfg,
		counter: counter,
		gpio:    gpio,
		mode:    cfg.Mode,
		live:    make(map[pcnt.Channel]bool, len(Quantities)),
	}

	if step, err := m.apply(cfg.Mode); err != nil {
		m.pauseAll()
		claims.release(id)
		return nil, fmt.Errorf("%w: %s: %w", ErrConfig, step, err)
	}

	return m, nil
}

// Config returns the configuration the meter was created with.
func (m *Meter) Config() Config { return m.cfg }

// Mode returns the current operating mode.
func (m *Meter) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Active returns the quantities readable in the current mode.
func (m *Meter) Active() []Quantity {
	return m.Mode().Active()
}

// Degraded reports whether a failed mode change left the channel set undefined.
func (m *Meter) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.degraded
}

// Channels returns the counting channels in ascending order.
func (m *Meter) Channels() []pcnt.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLive()
}

// Read returns the calibrated value of q. Quantities not acquired in the
// current mode fail with ErrNotApplicable.
func (m *Meter) Read(q Quantity) (uint32, error) {
	raw, err := m.ReadRaw(q)
	if err != nil {
		return 0, err
	}

	v, err := convert.Convert(raw, m.cfg.Ref(q))
	if err != nil {
		return 0, &ReadError{Quantity: q, Mode: m.Mode(), Err: err}
	}
	return v, nil
}

// ReadRaw returns the unscaled pulse count of q.
func (m *Meter) ReadRaw(q Quantity) (uint32, error) {
	if m == nil {
		return 0, ErrHandle
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, err := m.route(q)
	if err != nil {
		return 0, err
	}

	raw, err := m.counter.Count(ch)
	if err != nil {
		return 0, &ReadError{Quantity: q, Mode: m.mode, Err: fmt.Errorf("%w: %w", ErrHardware, err)}
	}
	return raw, nil
}

// Reset zeroes the counter of q.
func (m *Meter) Reset(q Quantity) error {
	if m == nil {
		return ErrHandle
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, err := m.route(q)
	if err != nil {
		return err
	}

	if err := m.counter.Reset(ch); err != nil {
		return &ReadError{Quantity: q, Mode: m.mode, Err: fmt.Errorf("%w: %w", ErrHardware, err)}
	}
	return nil
}

// route resolves q to its channel under the current mode. Caller holds mu.
func (m *Meter) route(q Quantity) (pcnt.Channel, error) {
	switch {
	case m.closed:
		return 0, ErrHandle
	case !q.Valid():
		return 0, &ReadError{Quantity: q, Mode: m.mode, Err: ErrInvalidQuantity}
	case m.degraded:
		return 0, &ReadError{Quantity: q, Mode: m.mode, Err: ErrDegraded}
	case !m.mode.Observes(q):
		return 0, &ReadError{Quantity: q, Mode: m.mode, Err: ErrNotApplicable}
	}
	return m.cfg.channel(q), nil
}

// ChangeMode switches the meter to target. Changing to the current mode is
// a no-op. Channels not needed by target are paused, the select line is
// driven and the missing channels are configured; target becomes the mode
// only when every step succeeded. On failure the previous mode is restored,
// see ModeChangeError.
func (m *Meter) ChangeMode(target Mode) error {
	if m == nil {
		return ErrHandle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrHandle
	}

	from := m.mode
	if !target.Valid() {
		return &ModeChangeError{From: from, To: target, Step: StepValidate, Err: ErrInvalidMode}
	}
	if target == DualChannel && m.cfg.Multiplexed() {
		return &ModeChangeError{From: from, To: target, Step: StepValidate, Err: ErrModeUnsupported}
	}
	if target == from && !m.degraded {
		return nil
	}

	step, err := m.apply(target)
	if err != nil {
		_, rbErr := m.apply(from)
		m.degraded = rbErr != nil
		return &ModeChangeError{From: from, To: target, Step: step, Err: err, RollbackErr: rbErr}
	}

	m.mode = target
	m.degraded = false
	return nil
}

// apply reconfigures the peripheral for mode. It does not change m.mode.
// Caller holds mu (or owns m exclusively).
func (m *Meter) apply(mode Mode) (string, error) {
	want := make(map[pcnt.Channel]pcnt.Pin, len(Quantities))
	for _, q := range mode.Active() {
		want[m.cfg.channel(q)] = m.cfg.pin(q)
	}

	for _, ch := range m.sortedLive() {
		if _, keep := want[ch]; keep {
			continue
		}
		if err := m.counter.Pause(ch); err != nil {
			return StepQuiesce, fmt.Errorf("%w: pause %s: %w", ErrHardware, ch, err)
		}
		delete(m.live, ch)
	}

	if err := m.gpio.SetLevel(m.cfg.SelectPin, m.cfg.SelectFor(mode)); err != nil {
		return StepSelect, fmt.Errorf("%w: select %s: %w", ErrHardware, m.cfg.SelectPin, err)
	}
	if m.cfg.Settle > 0 {
		time.Sleep(m.cfg.Settle)
	}

	for _, q := range mode.Active() {
		ch := m.cfg.channel(q)
		if m.live[ch] {
			continue
		}
		if err := m.counter.Configure(ch, want[ch]); err != nil {
			return StepConfigure, fmt.Errorf("%w: configure %s on %s: %w", ErrHardware, ch, want[ch], err)
		}
		m.live[ch] = true
	}

	return "", nil
}

// Close pauses every counting channel and releases the meter's claims.
// Closing a nil or already closed meter returns ErrHandle. Claims are
// released even when the peripheral reports errors.
func (m *Meter) Close() error {
	if m == nil {
		return ErrHandle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrHandle
	}

	err := m.pauseAll()
	m.closed = true
	claims.release(m.id)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrHardware, err)
	}
	return nil
}

// pauseAll pauses every live channel and forgets it.
func (m *Meter) pauseAll() error {
	var errs []error
	for _, ch := range m.sortedLive() {
		if err := m.counter.Pause(ch); err != nil {
			errs = append(errs, fmt.Errorf("pause %s: %w", ch, err))
		}
		delete(m.live, ch)
	}
	return errors.Join(errs...)
}

func (m *Meter) sortedLive() []pcnt.Channel {
	result := make([]pcnt.Channel, 0, len(m.live))
	for ch := range m.live {
		result = append(result, ch)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
