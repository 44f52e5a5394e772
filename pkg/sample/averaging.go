package sample

import (
	"log"

	"github.com/itohio/pulsemeter/pkg/meter"
)

// NewAverager creates a stage that replaces every valid quantity with the
// rounded mean of its last windowSize values. A change of mode restarts the
// window so values from different pin routings are never mixed.
func NewAverager(windowSize int, bufSize int) Stage {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Reading) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			w := newWindow(windowSize)
			first := true
			var mode meter.Mode

			for r := range in {
				if first || r.Mode != mode {
					w.flush()
					mode = r.Mode
					first = false
				}

				avg := w.push(r)

				select {
				case out <- avg:
				default:
					log.Printf("Averager output channel full")
				}
			}
		}()

		return out
	}
}

// window keeps the recent values of each quantity.
type window struct {
	size   int
	values [3][]uint32
}

func newWindow(size int) *window {
	return &window{size: size}
}

func (w *window) flush() {
	for i := range w.values {
		w.values[i] = w.values[i][:0]
	}
}

// push adds the valid quantities of r and returns r with them averaged.
func (w *window) push(r Reading) Reading {
	avg := Reading{Timestamp: r.Timestamp, Mode: r.Mode}

	for _, q := range meter.Quantities {
		v, ok := r.Get(q)
		if !ok {
			continue
		}

		buf := append(w.values[q], v)
		if len(buf) > w.size {
			buf = buf[1:] // Remove oldest
		}
		w.values[q] = buf

		avg.Set(q, mean(buf))
	}

	return avg
}

// mean returns the rounded integer mean of values.
func mean(values []uint32) uint32 {
	if len(values) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range values {
		sum += uint64(v)
	}
	n := uint64(len(values))
	return uint32((sum + n/2) / n)
}
