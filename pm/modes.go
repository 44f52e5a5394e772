package main

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pulsemeter/pkg/meter"
)

// modeLabels are the selector entries, in meter.Modes order.
var modeLabels = []string{"Dual channel", "Current only", "Voltage only"}

func modeLabel(m meter.Mode) string {
	if !m.Valid() {
		return m.String()
	}
	return modeLabels[m]
}

func labelMode(label string) (meter.Mode, bool) {
	for i, l := range modeLabels {
		if l == label {
			return meter.Modes[i], true
		}
	}
	return 0, false
}

// createModeSelect creates the mode selector. Before a connection exists it
// edits the initial mode in the configuration.
func createModeSelect(state *appState) *widget.Select {
	sel := widget.NewSelect(modeLabels, func(selected string) {
		mode, ok := labelMode(selected)
		if !ok {
			return
		}
		handleModeChange(state, mode)
	})
	sel.Selected = modeLabel(state.cfg.Meter.Mode)
	return sel
}

// handleModeChange switches the live meter to mode.
func handleModeChange(state *appState, mode meter.Mode) {
	if state.chain == nil {
		state.cfg.Meter.Mode = mode
		return
	}

	m := state.chain.meter
	if err := m.ChangeMode(mode); err != nil {
		if errors.Is(err, meter.ErrDegraded) {
			state.status.SetText(fmt.Sprintf("%s (degraded)", modeLabel(m.Mode())))
		}
		dialog.ShowError(fmt.Errorf("failed to switch to %s: %w", mode, err), state.window)
		setModeSelected(state, m.Mode())
		return
	}

	clearReadings(state)
}

// setModeSelected updates the selector without firing its change handler.
func setModeSelected(state *appState, mode meter.Mode) {
	state.modeSelect.Selected = modeLabel(mode)
	state.modeSelect.Refresh()
}
