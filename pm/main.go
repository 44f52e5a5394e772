package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pulsemeter/pkg/config"
	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
	"github.com/itohio/pulsemeter/pkg/sample"
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use mocked peripheral instead of serial port")
		backendFlag        = flag.String("backend", "", "Peripheral backend override: serial, gpio, mock")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of readings to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	if *backendFlag != "" {
		cfg.Backend = *backendFlag
	}
	if *mockFlag {
		cfg.Backend = config.BackendMock
	}

	// Override average samples if provided via command line
	if *averageSamplesFlag >= 0 {
		cfg.Sampling.Average = *averageSamplesFlag
	}

	application := app.NewWithID("com.itohio.pulsemeter")

	window := application.NewWindow("Pulse Power Meter")
	window.Resize(fyne.NewSize(640, 240))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
	}

	toolbar := createToolbar(state)
	readings := createReadings(state)

	window.SetContent(container.NewBorder(
		toolbar,
		state.status,
		nil,
		nil,
		readings,
	))
	window.SetOnClosed(func() {
		disconnect(state)
	})
	window.ShowAndRun()
}

// measurementChain tracks the components of the measurement chain for graceful shutdown.
type measurementChain struct {
	device pcnt.Device
	meter  *meter.Meter
	cancel context.CancelFunc
	done   chan struct{} // Closed when the display goroutine exits
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	window     fyne.Window
	connectBtn *widget.Button
	modeSelect *widget.Select
	values     [3]*widget.Label // indexed by meter.Quantity
	status     *widget.Label
	chain      *measurementChain // Current measurement chain (nil if not connected)
}

// createToolbar creates the toolbar with Connect, Settings and the mode selector.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.modeSelect = createModeSelect(state)

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(connectBtn, settingsBtn), // left
		state.modeSelect, // right
		nil,              // center (spacer)
	)
}

// createReadings creates one value card per quantity.
func createReadings(state *appState) fyne.CanvasObject {
	cards := make([]fyne.CanvasObject, 0, len(meter.Quantities))
	for _, q := range meter.Quantities {
		label := widget.NewLabelWithStyle(notAvailable, fyne.TextAlignCenter, fyne.TextStyle{Bold: true, Monospace: true})
		state.values[q] = label
		cards = append(cards, widget.NewCard(quantityTitle(q), "", label))
	}
	state.status = widget.NewLabel("Disconnected")
	return container.NewGridWithColumns(len(cards), cards...)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.chain != nil {
		disconnect(state)
		state.connectBtn.SetIcon(theme.LoginIcon())
		state.status.SetText("Disconnected")
		clearReadings(state)
		return
	}

	chain, err := connect(state.cfg)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.chain = chain
	state.connectBtn.SetIcon(theme.LogoutIcon())
	setModeSelected(state, chain.meter.Mode())

	// Poller, optionally chained with the averager
	ctx, cancel := context.WithCancel(context.Background())
	chain.cancel = cancel
	chain.done = make(chan struct{})

	var readings <-chan sample.Reading
	readings = sample.NewPoller(chain.meter, state.cfg.Sampling.Interval, 16)(ctx)
	if state.cfg.Sampling.Average > 0 {
		readings = sample.NewAverager(state.cfg.Sampling.Average, 16)(readings)
	}

	m := chain.meter
	go func() {
		defer close(chain.done)
		for r := range readings {
			degraded := m.Degraded()
			fyne.Do(func() {
				showReading(state, r, degraded)
			})
		}
	}()
}

// connect opens the peripheral and builds a meter on top of it.
func connect(cfg *config.Config) (*measurementChain, error) {
	device, err := cfg.NewDevice()
	if err != nil {
		return nil, err
	}

	if err := device.Connect(); err != nil {
		if cfg.Backend == config.BackendSerial {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Serial.Port, err)
		}
		return nil, fmt.Errorf("failed to connect to %s peripheral: %w", cfg.Backend, err)
	}

	m, err := meter.New(cfg.ToMeter(), device, device)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("failed to create meter: %w", err)
	}

	if cfg.Backend == config.BackendSerial {
		log.Printf("Connected to serial port: %s", cfg.Serial.Port)
	} else {
		log.Printf("Connected to %s peripheral", cfg.Backend)
	}

	return &measurementChain{device: device, meter: m}, nil
}

// disconnect gracefully closes the measurement chain.
// Waits for the display goroutine to finish before releasing the meter.
func disconnect(state *appState) {
	chain := state.chain
	if chain == nil {
		return
	}
	state.chain = nil

	if chain.cancel != nil {
		chain.cancel()
		<-chain.done
	}

	if err := chain.meter.Close(); err != nil {
		log.Printf("Failed to close meter: %v", err)
	}
	if err := chain.device.Close(); err != nil {
		log.Printf("Failed to close peripheral: %v", err)
	}
	log.Printf("Disconnected")
}
