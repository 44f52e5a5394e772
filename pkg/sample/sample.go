package sample

import (
	"context"
	"log"
	"time"

	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/meter"
)

// Reading is one snapshot of the meter. Quantities the mode does not observe
// are marked invalid rather than reported as zero.
type Reading struct {
	Timestamp time.Time
	Mode      meter.Mode
	Power     uint32
	Voltage   uint32
	Current   uint32
	Valid     uint8 // bit q set when quantity q was read
}

// Get returns the value of q and whether it was read.
func (r Reading) Get(q meter.Quantity) (uint32, bool) {
	if !q.Valid() {
		return 0, false
	}
	ok := r.Valid&(1<<q) != 0
	switch q {
	case meter.Power:
		return r.Power, ok
	case meter.Voltage:
		return r.Voltage, ok
	default:
		return r.Current, ok
	}
}

// Set stores v for q and marks it valid.
func (r *Reading) Set(q meter.Quantity, v uint32) {
	if !q.Valid() {
		return
	}
	switch q {
	case meter.Power:
		r.Power = v
	case meter.Voltage:
		r.Voltage = v
	default:
		r.Current = v
	}
	r.Valid |= 1 << q
}

// Poller is a function that produces Readings until ctx is cancelled.
type Poller func(ctx context.Context) <-chan Reading

// Stage transforms a Reading stream.
type Stage func(in <-chan Reading) <-chan Reading

// NewPoller creates a poller that reports every active quantity of r once
// per interval. Values are rates: the pulses counted since the previous
// tick, in Hz, divided by the quantity's reference. The first tick after
// start, a mode change or a counter restart only records a baseline.
func NewPoller(r meter.Reader, interval time.Duration, bufSize int) Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(ctx context.Context) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			var base baseline
			if _, _, err := poll(r, &base, time.Now()); err != nil {
				log.Printf("Failed to read meter: %v", err)
			}

			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					reading, ok, err := poll(r, &base, now)
					if err != nil {
						log.Printf("Failed to read meter: %v", err)
						continue
					}
					if !ok {
						continue
					}

					select {
					case out <- reading:
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
						log.Printf("Poller output channel full, dropping reading")
					}
				}
			}
		}()

		return out
	}
}

// baseline holds the raw counts of the previous tick.
type baseline struct {
	valid bool
	mode  meter.Mode
	at    time.Time
	raw   [meter.Current + 1]uint32
}

// poll reads the raw counts of every active quantity at now and converts
// their increase since base. It reports false when it only (re)established
// the baseline. Any read error discards the snapshot and the baseline.
func poll(r meter.Reader, base *baseline, now time.Time) (Reading, bool, error) {
	mode := r.Mode()

	var raw [meter.Current + 1]uint32
	for _, q := range mode.Active() {
		v, err := r.ReadRaw(q)
		if err != nil {
			base.valid = false
			return Reading{}, false, err
		}
		raw[q] = v
	}

	prev := *base
	*base = baseline{valid: true, mode: mode, at: now, raw: raw}
	if !prev.valid || prev.mode != mode || !now.After(prev.at) {
		return Reading{}, false, nil
	}

	reading := Reading{
		Timestamp: now,
		Mode:      mode,
	}
	elapsed := now.Sub(prev.at)
	cfg := r.Config()
	for _, q := range mode.Active() {
		if raw[q] < prev.raw[q] {
			// Counter was reset or reconfigured since the last tick.
			return Reading{}, false, nil
		}
		v, err := convert.Convert(Rate(raw[q]-prev.raw[q], elapsed), cfg.Ref(q))
		if err != nil {
			return Reading{}, false, err
		}
		reading.Set(q, v)
	}

	return reading, true, nil
}
