package main

import (
	"fmt"

	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/sample"
)

const notAvailable = "n/a"

func quantityTitle(q meter.Quantity) string {
	switch q {
	case meter.Power:
		return "Power"
	case meter.Voltage:
		return "Voltage"
	case meter.Current:
		return "Current"
	}
	return q.String()
}

func quantityUnit(q meter.Quantity) string {
	switch q {
	case meter.Power:
		return "W"
	case meter.Voltage:
		return "V"
	case meter.Current:
		return "A"
	}
	return ""
}

// formatQuantity renders q from r, or n/a when the mode does not observe it.
func formatQuantity(r sample.Reading, q meter.Quantity) string {
	v, ok := r.Get(q)
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%d %s", v, quantityUnit(q))
}

// formatStatus renders the status line for r.
func formatStatus(r sample.Reading, degraded bool) string {
	s := fmt.Sprintf("%s  %s", modeLabel(r.Mode), r.Timestamp.Format("15:04:05"))
	if degraded {
		s += "  (degraded)"
	}
	return s
}

// showReading must run on the main thread.
func showReading(state *appState, r sample.Reading, degraded bool) {
	for _, q := range meter.Quantities {
		state.values[q].SetText(formatQuantity(r, q))
	}
	state.status.SetText(formatStatus(r, degraded))
}

func clearReadings(state *appState) {
	for _, q := range meter.Quantities {
		state.values[q].SetText(notAvailable)
	}
}
