package pcnt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/pulsemeter/pkg/wire"
)

const (
	// DefaultBaudRate is the baud rate the firmware listens on.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds a single request/reply exchange.
	DefaultTimeout = 500 * time.Millisecond

	// readPoll is the port read timeout. A read returns (0, nil) after it,
	// which lets roundTrip check its deadline.
	readPoll = 20 * time.Millisecond
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial drives the counter firmware over a serial link.
// Requests are strictly sequential: one line out, one line back. Replies
// that do not echo the pending request are dropped, and pending input is
// discarded after a timed out exchange.
type Serial struct {
	port     string
	baudRate int
	timeout  time.Duration

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	buf       []byte // received bytes not yet consumed as a line
	resync    bool   // last exchange timed out
	connected bool
}

// New creates a Serial peripheral for port. A zero baudRate selects DefaultBaudRate.
func New(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		timeout:  DefaultTimeout,
	}
}

// newConn wraps an already open stream. Used by tests.
func newConn(rw io.ReadWriteCloser) *Serial {
	return &Serial{
		port:      "pipe",
		timeout:   DefaultTimeout,
		conn:      rw,
		connected: true,
	}
}

// Connect opens the serial port.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(s.port, &serial.Mode{
		BaudRate: s.baudRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.port, err)
	}

	s.conn = port
	s.buf = s.buf[:0]
	s.resync = false
	s.connected = true
	return nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	if err := s.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	s.conn = nil
	s.buf = nil
	s.connected = false
	return nil
}

// IsConnected returns whether the port is open.
func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Configure binds ch to pin on the MCU.
func (s *Serial) Configure(ch Channel, pin Pin) error {
	_, err := s.roundTrip(wire.Request{Op: wire.OpConfigure, Channel: uint8(ch), Pin: uint8(pin)})
	return err
}

// Count reads the accumulated count of ch.
func (s *Serial) Count(ch Channel) (uint32, error) {
	reply, err := s.roundTrip(wire.Request{Op: wire.OpCount, Channel: uint8(ch)})
	if err != nil {
		return 0, err
	}
	if !reply.HasValue {
		return 0, fmt.Errorf("count %s: reply without value", ch)
	}
	return reply.Value, nil
}

// Reset zeroes the counter of ch.
func (s *Serial) Reset(ch Channel) error {
	_, err := s.roundTrip(wire.Request{Op: wire.OpReset, Channel: uint8(ch)})
	return err
}

// Pause stops counting on ch.
func (s *Serial) Pause(ch Channel) error {
	_, err := s.roundTrip(wire.Request{Op: wire.OpPause, Channel: uint8(ch)})
	return err
}

// SetLevel drives pin to level.
func (s *Serial) SetLevel(pin Pin, level Level) error {
	_, err := s.roundTrip(wire.Request{Op: wire.OpLevel, Pin: uint8(pin), High: bool(level)})
	return err
}

// roundTrip sends req and waits for the reply echoing it.
func (s *Serial) roundTrip(req wire.Request) (wire.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return wire.Reply{}, ErrNotConnected
	}

	if s.resync {
		s.discardInput()
	}

	if _, err := io.WriteString(s.conn, req.String()+"\n"); err != nil {
		return wire.Reply{}, fmt.Errorf("failed to send %s: %w", req.Op, err)
	}

	deadline := time.Now().Add(s.timeout)
	for {
		line, err := s.readLine(deadline)
		if err != nil {
			s.resync = true
			return wire.Reply{}, fmt.Errorf("no reply to %s: %w", req, err)
		}
		if line == "" {
			continue
		}

		reply, err := wire.ParseReply(line)
		if err != nil {
			// Boot banners and debug prints share the UART.
			log.Printf("Failed to parse reply '%s': %v", line, err)
			continue
		}
		if !reply.Answers(req) {
			log.Printf("Dropping reply '%s' while waiting for %s", line, req)
			continue
		}
		if err := reply.Err(); err != nil {
			return reply, fmt.Errorf("%s: %w", req.Op, err)
		}
		return reply, nil
	}
}

// readLine returns the next trimmed line received before deadline.
// A serial port read returns (0, nil) when its read timeout expires.
func (s *Serial) readLine(deadline time.Time) (string, error) {
	if d, ok := s.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		d.SetReadDeadline(deadline)
	}

	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := string(s.buf[:i])
			s.buf = append(s.buf[:0], s.buf[i+1:]...)
			return strings.TrimSpace(line), nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}

		n, err := s.conn.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", err
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// discardInput drops everything received so far, including late replies
// to a request that timed out.
func (s *Serial) discardInput() {
	s.buf = s.buf[:0]
	if p, ok := s.conn.(interface{ ResetInputBuffer() error }); ok {
		if err := p.ResetInputBuffer(); err != nil {
			log.Printf("Failed to reset input buffer on %s: %v", s.port, err)
		}
	}
	s.resync = false
}
