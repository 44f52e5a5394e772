package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pulsemeter/pkg/config"
	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
	"github.com/itohio/pulsemeter/pkg/sample"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createMeterTab(state),
		createCalibrationTab(state),
		createSamplingTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig persists the configuration and reports failures.
func saveConfig(state *appState) bool {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// reconnect restarts the measurement chain so new wiring takes effect.
func reconnect(state *appState) {
	if state.chain == nil {
		return
	}
	handleConnect(state) // disconnect
	handleConnect(state) // connect with the new configuration
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := pcnt.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.Baud))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			changed := false
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected // Fallback to selected text
				}
				changed = state.cfg.Serial.Port != selectedPort
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				changed = changed || state.cfg.Serial.Baud != baud
				state.cfg.Serial.Baud = baud
			}

			if !saveConfig(state) {
				return
			}
			if changed && state.cfg.Backend == config.BackendSerial {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// signalEntries edits the pin and channel of one signal.
type signalEntries struct {
	pin     *widget.Entry
	channel *widget.Entry
}

func newSignalEntries(pin, channel uint8) signalEntries {
	e := signalEntries{pin: widget.NewEntry(), channel: widget.NewEntry()}
	e.pin.SetText(strconv.Itoa(int(pin)))
	e.channel.SetText(strconv.Itoa(int(channel)))
	return e
}

func parseU8(s string, dst *uint8) {
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		*dst = uint8(v)
	}
}

// createMeterTab creates the wiring tab.
func createMeterTab(state *appState) *container.TabItem {
	m := &state.cfg.Meter
	power := newSignalEntries(m.Power.Pin, m.Power.Channel)
	voltage := newSignalEntries(m.Voltage.Pin, m.Voltage.Channel)
	current := newSignalEntries(m.Current.Pin, m.Current.Channel)

	selectPinEntry := widget.NewEntry()
	selectPinEntry.SetText(strconv.Itoa(int(m.Select.Pin)))
	selectLevelCheck := widget.NewCheck("Current selected when high", nil)
	selectLevelCheck.SetChecked(m.Select.Level)

	settleEntry := widget.NewEntry()
	settleEntry.SetText(m.Settle.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Power Pin", Widget: power.pin},
			{Text: "Power Channel", Widget: power.channel},
			{Text: "Voltage Pin", Widget: voltage.pin},
			{Text: "Voltage Channel", Widget: voltage.channel},
			{Text: "Current Pin", Widget: current.pin},
			{Text: "Current Channel", Widget: current.channel},
			{Text: "Select Pin", Widget: selectPinEntry},
			{Text: "Select Level", Widget: selectLevelCheck},
			{Text: "Settle", Widget: settleEntry},
		},
		OnSubmit: func() {
			next := *m
			parseU8(power.pin.Text, &next.Power.Pin)
			parseU8(power.channel.Text, &next.Power.Channel)
			parseU8(voltage.pin.Text, &next.Voltage.Pin)
			parseU8(voltage.channel.Text, &next.Voltage.Channel)
			parseU8(current.pin.Text, &next.Current.Pin)
			parseU8(current.channel.Text, &next.Current.Channel)
			parseU8(selectPinEntry.Text, &next.Select.Pin)
			next.Select.Level = selectLevelCheck.Checked
			if d, err := time.ParseDuration(settleEntry.Text); err == nil {
				next.Settle = d
			}

			// Reject wiring the meter would refuse
			prev := *m
			*m = next
			if err := state.cfg.ToMeter().Validate(); err != nil {
				*m = prev
				dialog.ShowError(err, state.window)
				return
			}

			if saveConfig(state) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Meter", form)
}

// createCalibrationTab edits reference parameters and derives them from a
// known load.
func createCalibrationTab(state *appState) *container.TabItem {
	refs := [3]*uint32{
		meter.Power:   &state.cfg.Meter.Power.Ref,
		meter.Voltage: &state.cfg.Meter.Voltage.Ref,
		meter.Current: &state.cfg.Meter.Current.Ref,
	}

	var entries [3]*widget.Entry
	items := make([]*widget.FormItem, 0, 5)
	for _, q := range meter.Quantities {
		e := widget.NewEntry()
		e.SetText(strconv.FormatUint(uint64(*refs[q]), 10))
		entries[q] = e
		items = append(items, &widget.FormItem{Text: quantityTitle(q) + " Reference", Widget: e})
	}

	quantitySelect := widget.NewSelect([]string{"Power", "Voltage", "Current"}, nil)
	quantitySelect.SetSelectedIndex(int(meter.Power))
	knownEntry := widget.NewEntry()
	knownEntry.SetPlaceHolder("known value in W, V or A")

	calibrateBtn := widget.NewButton("Calibrate from known load", func() {
		handleCalibrate(state, meter.Quantity(quantitySelect.SelectedIndex()), knownEntry.Text, entries[:])
	})

	items = append(items,
		&widget.FormItem{Text: "Quantity", Widget: quantitySelect},
		&widget.FormItem{Text: "Known Value", Widget: container.NewBorder(nil, nil, nil, calibrateBtn, knownEntry)},
	)

	form := &widget.Form{
		Items: items,
		OnSubmit: func() {
			for _, q := range meter.Quantities {
				v, err := strconv.ParseUint(entries[q].Text, 10, 32)
				if err != nil || convert.Validate(uint32(v)) != nil {
					dialog.ShowError(fmt.Errorf("invalid %s reference %q", q, entries[q].Text), state.window)
					return
				}
				*refs[q] = uint32(v)
			}
			if saveConfig(state) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Calibration", form)
}

// handleCalibrate counts q for one sampling interval on the live meter and
// fills in the reference that maps the observed rate to the known value.
func handleCalibrate(state *appState, q meter.Quantity, knownText string, entries []*widget.Entry) {
	if state.chain == nil {
		dialog.ShowError(fmt.Errorf("connect before calibrating"), state.window)
		return
	}
	if !q.Valid() {
		return
	}

	known, err := strconv.ParseFloat(knownText, 32)
	if err != nil {
		dialog.ShowError(fmt.Errorf("invalid known value %q", knownText), state.window)
		return
	}

	m := state.chain.meter
	window := state.cfg.Sampling.Interval
	go func() {
		hz, err := sample.MeasureRate(context.Background(), m, q, window)
		if err == nil {
			var ref uint32
			if ref, err = convert.Calibrate(hz, float32(known)); err == nil {
				fyne.Do(func() { entries[q].SetText(strconv.FormatUint(uint64(ref), 10)) })
				return
			}
			err = fmt.Errorf("calibrate %s from %d Hz: %w", q, hz, err)
		}
		fyne.Do(func() { dialog.ShowError(err, state.window) })
	}()
}

// createSamplingTab creates the Sampling configuration tab.
func createSamplingTab(state *appState) *container.TabItem {
	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(state.cfg.Sampling.Interval.String())

	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(state.cfg.Sampling.Average))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Interval", Widget: intervalEntry},
			{Text: "Average Readings (0=disabled)", Widget: averageEntry},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(intervalEntry.Text); err == nil && d > 0 {
				state.cfg.Sampling.Interval = d
			}
			if avg, err := strconv.Atoi(averageEntry.Text); err == nil && avg >= 0 {
				state.cfg.Sampling.Average = avg
			}
			if saveConfig(state) {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Sampling", form)
}

// createMockTab creates the Mock peripheral configuration tab.
func createMockTab(state *appState) *container.TabItem {
	powerEntry := widget.NewEntry()
	powerEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.PowerHz))

	voltageEntry := widget.NewEntry()
	voltageEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.VoltageHz))

	currentEntry := widget.NewEntry()
	currentEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.CurrentHz))

	tickEntry := widget.NewEntry()
	tickEntry.SetText(state.cfg.Mock.Tick.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Power Pulses (Hz)", Widget: powerEntry},
			{Text: "Voltage Pulses (Hz)", Widget: voltageEntry},
			{Text: "Current Pulses (Hz)", Widget: currentEntry},
			{Text: "Tick", Widget: tickEntry},
		},
		OnSubmit: func() {
			if hz, err := strconv.ParseFloat(powerEntry.Text, 64); err == nil {
				state.cfg.Mock.PowerHz = hz
			}
			if hz, err := strconv.ParseFloat(voltageEntry.Text, 64); err == nil {
				state.cfg.Mock.VoltageHz = hz
			}
			if hz, err := strconv.ParseFloat(currentEntry.Text, 64); err == nil {
				state.cfg.Mock.CurrentHz = hz
			}
			if d, err := time.ParseDuration(tickEntry.Text); err == nil && d > 0 {
				state.cfg.Mock.Tick = d
			}
			if saveConfig(state) && state.cfg.Backend == config.BackendMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
