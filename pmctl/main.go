// Command pmctl is an interactive console for a pulse counting power meter.
//
// Usage:
//
//	pmctl [flags]
//
// Flags:
//
//	-config string  Configuration file path (default "config.yaml")
//	-p string       Serial port override
//	-mock           Use the simulated peripheral
//	-backend string Peripheral backend override: serial, gpio, mock
//	-mode string    Initial mode override: dual, current, voltage
//
// Examples:
//
//	# Bench work without hardware
//	pmctl -mock
//
//	# Attach to the counter firmware
//	pmctl -p /dev/ttyACM0 -mode voltage
//
//	# Count on the GPIO lines of a Raspberry Pi
//	pmctl -backend gpio
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/pulsemeter/pkg/config"
	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use mocked peripheral instead of serial port")
		backendFlag = flag.String("backend", "", "Peripheral backend override: serial, gpio, mock")
		modeFlag    = flag.String("mode", "", "Initial mode override: dual, current, voltage")
	)
	flag.Parse()

	log.SetFlags(log.Ltime)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *modeFlag != "" {
		mode, err := meter.ParseMode(*modeFlag)
		if err != nil {
			log.Fatalf("Invalid mode: %v", err)
		}
		cfg.Meter.Mode = mode
	}

	if *backendFlag != "" {
		cfg.Backend = *backendFlag
	}
	if *mockFlag {
		cfg.Backend = config.BackendMock
	}

	device, err := cfg.NewDevice()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	mock, _ := device.(*pcnt.Mock)

	if err := device.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer device.Close()

	m, err := meter.New(cfg.ToMeter(), device, device)
	if err != nil {
		device.Close()
		log.Fatalf("Failed to create meter: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("Error closing meter: %v", err)
		}
	}()

	console, err := NewConsole(m, mock, cfg.Sampling.Interval)
	if err != nil {
		log.Fatalf("Failed to start console: %v", err)
	}
	log.SetOutput(console.Stdout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	console.Run(ctx, cancel)
}
