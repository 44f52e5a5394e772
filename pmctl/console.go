package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/itohio/pulsemeter/pkg/convert"
	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
	"github.com/itohio/pulsemeter/pkg/sample"
)

// Console handles interactive mode for pmctl.
type Console struct {
	meter    *meter.Meter
	mock     *pcnt.Mock // nil when talking to real hardware
	interval time.Duration
	rl       *readline.Instance
	out      io.Writer
}

// NewConsole creates a console bound to m. mock enables the pulse command.
func NewConsole(m *meter.Meter, mock *pcnt.Mock, interval time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pm> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(m, mock, interval, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(m *meter.Meter, mock *pcnt.Mock, interval time.Duration, out io.Writer) *Console {
	if interval <= 0 {
		interval = time.Second
	}
	return &Console{
		meter:    m,
		mock:     mock,
		interval: interval,
		out:      out,
	}
}

func completer() *readline.PrefixCompleter {
	quantities := func() []readline.PrefixCompleterInterface {
		items := []readline.PrefixCompleterInterface{}
		for _, q := range meter.Quantities {
			items = append(items, readline.PcItem(q.String()))
		}
		return items
	}
	modes := []readline.PrefixCompleterInterface{}
	for _, m := range meter.Modes {
		modes = append(modes, readline.PcItem(m.String()))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("read", append(quantities(), readline.PcItem("all"))...),
		readline.PcItem("raw", quantities()...),
		readline.PcItem("reset", quantities()...),
		readline.PcItem("calibrate", quantities()...),
		readline.PcItem("mode", modes...),
		readline.PcItem("status"),
		readline.PcItem("pulse"),
		readline.PcItem("watch"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.exec(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *Console) exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "read", "r":
		c.cmdRead(args)

	case "raw":
		c.cmdRaw(args)

	case "mode", "m":
		c.cmdMode(args)

	case "status", "s":
		c.cmdStatus()

	case "reset":
		c.cmdReset(args)

	case "pulse":
		c.cmdPulse(args)

	case "calibrate", "cal":
		c.cmdCalibrate(ctx, args)

	case "watch", "w":
		c.cmdWatch(ctx, args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Pulse Meter Commands:
  Readings:
    read <q>|all          - Read a quantity from the accumulated count (power, voltage, current)
    raw <q>               - Read the raw pulse count of a quantity
    reset <q>             - Zero the counter of a quantity
    watch [n]             - Print n per-interval readings from pulse rates (default 10)

  Mode:
    mode [dual|current|voltage] - Show or change the operating mode
    status                - Show mode, active channels and wiring

  Bench:
    pulse <pin> <n>       - Inject n pulses on a pin (mock only)
    calibrate <q> <known> - Count one interval under a known load and compute the reference

  Other:
    help                  - Show this help
    quit                  - Exit`)
}

func (c *Console) parseQuantity(args []string, usage string) (meter.Quantity, bool) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s\n", usage)
		return 0, false
	}
	q, err := meter.ParseQuantity(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return 0, false
	}
	return q, true
}

func (c *Console) cmdRead(args []string) {
	if len(args) == 1 && strings.EqualFold(args[0], "all") {
		for _, q := range meter.Quantities {
			c.printRead(q)
		}
		return
	}

	q, ok := c.parseQuantity(args, "read <power|voltage|current|all>")
	if !ok {
		return
	}
	c.printRead(q)
}

func (c *Console) printRead(q meter.Quantity) {
	v, err := c.meter.Read(q)
	switch {
	case errors.Is(err, meter.ErrNotApplicable):
		fmt.Fprintf(c.out, "  %-8s n/a\n", q)
	case err != nil:
		fmt.Fprintf(c.out, "  %-8s error: %v\n", q, err)
	default:
		fmt.Fprintf(c.out, "  %-8s %d\n", q, v)
	}
}

func (c *Console) cmdRaw(args []string) {
	q, ok := c.parseQuantity(args, "raw <power|voltage|current>")
	if !ok {
		return
	}
	raw, err := c.meter.ReadRaw(q)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "  %-8s %d pulses\n", q, raw)
}

func (c *Console) cmdReset(args []string) {
	q, ok := c.parseQuantity(args, "reset <power|voltage|current>")
	if !ok {
		return
	}
	if err := c.meter.Reset(q); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Counter for %s reset\n", q)
}

func (c *Console) cmdMode(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Mode: %s\n", c.meter.Mode())
		return
	}

	target, err := meter.ParseMode(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	from := c.meter.Mode()
	if err := c.meter.ChangeMode(target); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		if c.meter.Degraded() {
			fmt.Fprintln(c.out, "Meter is degraded; reads fail until a mode change succeeds")
		} else {
			fmt.Fprintf(c.out, "Mode remains %s\n", c.meter.Mode())
		}
		return
	}
	fmt.Fprintf(c.out, "Mode: %s -> %s\n", from, target)
}

func (c *Console) cmdStatus() {
	cfg := c.meter.Config()

	fmt.Fprintln(c.out, "Meter Status:")
	fmt.Fprintf(c.out, "  Mode:        %s\n", c.meter.Mode())
	active := make([]string, 0, 3)
	for _, q := range c.meter.Active() {
		active = append(active, q.String())
	}
	fmt.Fprintf(c.out, "  Active:      %s\n", strings.Join(active, ", "))
	channels := make([]string, 0, 3)
	for _, ch := range c.meter.Channels() {
		channels = append(channels, ch.String())
	}
	fmt.Fprintf(c.out, "  Counting:    %s\n", strings.Join(channels, ", "))
	fmt.Fprintf(c.out, "  Degraded:    %v\n", c.meter.Degraded())
	fmt.Fprintf(c.out, "  Multiplexed: %v\n", cfg.Multiplexed())
	fmt.Fprintf(c.out, "  Power:       %s on %s, ref %d\n", cfg.PowerPin, cfg.PowerChannel, cfg.PowerRef)
	fmt.Fprintf(c.out, "  Voltage:     %s on %s, ref %d\n", cfg.VoltagePin, cfg.VoltageChannel, cfg.VoltageRef)
	fmt.Fprintf(c.out, "  Current:     %s on %s, ref %d\n", cfg.CurrentPin, cfg.CurrentChannel, cfg.CurrentRef)
	fmt.Fprintf(c.out, "  Select:      %s, current when %s\n", cfg.SelectPin, cfg.SelectLevel)
}

func (c *Console) cmdPulse(args []string) {
	if c.mock == nil {
		fmt.Fprintln(c.out, "pulse is only available with -mock")
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: pulse <pin> <n>")
		return
	}

	pin, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid pin: %s\n", args[0])
		return
	}
	n, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid count: %s\n", args[1])
		return
	}

	c.mock.Pulse(pcnt.Pin(pin), uint32(n))
	fmt.Fprintf(c.out, "Injected %d pulses on %s\n", n, pcnt.Pin(pin))
}

func (c *Console) cmdCalibrate(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: calibrate <power|voltage|current> <known value>")
		return
	}
	q, ok := c.parseQuantity(args, "")
	if !ok {
		return
	}
	known, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %s\n", args[1])
		return
	}

	hz, err := sample.MeasureRate(ctx, c.meter, q, c.interval)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	ref, err := convert.Calibrate(hz, float32(known))
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "%s reference: %d (%d Hz for %s)\n", q, ref, hz, args[1])
	fmt.Fprintf(c.out, "Set meter.%s.ref: %d in the config file to apply\n", q, ref)
}

func (c *Console) cmdWatch(ctx context.Context, args []string) {
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintf(c.out, "Invalid count: %s\n", args[0])
			return
		}
		n = v
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readings := sample.NewPoller(c.meter, c.interval, n)(ctx)
	for i := 0; i < n; i++ {
		r, ok := <-readings
		if !ok {
			return
		}
		fmt.Fprintln(c.out, formatReading(r))
	}
}

func formatReading(r sample.Reading) string {
	var sb strings.Builder
	sb.WriteString(r.Timestamp.Format("15:04:05.000"))
	sb.WriteString("  ")
	fmt.Fprintf(&sb, "%-7s", r.Mode)
	for _, q := range meter.Quantities {
		v, ok := r.Get(q)
		if !ok {
			fmt.Fprintf(&sb, "  %s=n/a", q)
			continue
		}
		fmt.Fprintf(&sb, "  %s=%d", q, v)
	}
	return sb.String()
}
