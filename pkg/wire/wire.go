// Package wire implements the line protocol spoken between the host and the
// counter firmware.
//
// Every message is one ASCII line terminated by '\n'.
//
//	host -> MCU             MCU -> host
//	CFG <channel> <pin>     OK CFG <channel> <pin>
//	CNT <channel>           OK CNT <channel> <count>
//	RST <channel>           OK RST <channel>
//	PAU <channel>           OK PAU <channel>
//	LVL <pin> <0|1>         OK LVL <pin> <0|1>
//	                        ERR <request> <reason>
//
// Replies echo the request they answer so the host can drop late replies
// to requests it already gave up on. A line that does not parse as a request
// is answered with a bare "ERR <reason>".
//
// The package only depends on strconv and strings so the firmware can share it.
package wire

import (
	"errors"
	"strconv"
	"strings"
)

// Op identifies a request.
type Op string

const (
	OpConfigure Op = "CFG"
	OpCount     Op = "CNT"
	OpReset     Op = "RST"
	OpPause     Op = "PAU"
	OpLevel     Op = "LVL"
)

var (
	ErrEmpty     = errors.New("empty line")
	ErrUnknownOp = errors.New("unknown op")
	ErrArgCount  = errors.New("wrong argument count")
	ErrArgument  = errors.New("invalid argument")
)

// Request is a single host command.
type Request struct {
	Op      Op
	Channel uint8 // CFG, CNT, RST, PAU
	Pin     uint8 // CFG, LVL
	High    bool  // LVL
}

// String encodes the request without the trailing newline.
func (r Request) String() string {
	switch r.Op {
	case OpConfigure:
		return string(r.Op) + " " + itoa(r.Channel) + " " + itoa(r.Pin)
	case OpLevel:
		lvl := "0"
		if r.High {
			lvl = "1"
		}
		return string(r.Op) + " " + itoa(r.Pin) + " " + lvl
	default:
		return string(r.Op) + " " + itoa(r.Channel)
	}
}

// ParseRequest decodes one request line. Surrounding whitespace is ignored.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{}, ErrEmpty
	}

	req, rest, err := parseRequest(fields)
	if err != nil {
		return Request{}, err
	}
	if len(rest) != 0 {
		return Request{}, ErrArgCount
	}
	return req, nil
}

// parseRequest decodes the request at the start of fields and returns the
// fields following it.
func parseRequest(fields []string) (Request, []string, error) {
	op := Op(strings.ToUpper(fields[0]))
	args := fields[1:]
	switch op {
	case OpConfigure:
		if len(args) < 2 {
			return Request{}, nil, ErrArgCount
		}
		ch, err := parseU8(args[0])
		if err != nil {
			return Request{}, nil, err
		}
		pin, err := parseU8(args[1])
		if err != nil {
			return Request{}, nil, err
		}
		return Request{Op: op, Channel: ch, Pin: pin}, args[2:], nil

	case OpCount, OpReset, OpPause:
		if len(args) < 1 {
			return Request{}, nil, ErrArgCount
		}
		ch, err := parseU8(args[0])
		if err != nil {
			return Request{}, nil, err
		}
		return Request{Op: op, Channel: ch}, args[1:], nil

	case OpLevel:
		if len(args) < 2 {
			return Request{}, nil, ErrArgCount
		}
		pin, err := parseU8(args[0])
		if err != nil {
			return Request{}, nil, err
		}
		switch args[1] {
		case "0":
			return Request{Op: op, Pin: pin}, args[2:], nil
		case "1":
			return Request{Op: op, Pin: pin, High: true}, args[2:], nil
		}
		return Request{}, nil, ErrArgument
	}

	return Request{}, nil, ErrUnknownOp
}

func isOp(s string) bool {
	switch Op(strings.ToUpper(s)) {
	case OpConfigure, OpCount, OpReset, OpPause, OpLevel:
		return true
	}
	return false
}

// Reply is the MCU answer to a Request.
type Reply struct {
	OK       bool
	HasValue bool
	Value    uint32
	Reason   string  // set when !OK
	Req      Request // echoed request, zero Op when the request did not parse
}

// OK returns a successful reply without a value.
func OK() Reply { return Reply{OK: true} }

// Value returns a successful reply carrying v.
func Value(v uint32) Reply { return Reply{OK: true, HasValue: true, Value: v} }

// Fail returns an error reply.
func Fail(reason string) Reply { return Reply{Reason: reason} }

// To returns r answering req.
func (r Reply) To(req Request) Reply {
	r.Req = req
	return r
}

// Answers reports whether r is the reply to req.
func (r Reply) Answers(req Request) bool {
	return r.Req.Op != "" && r.Req == req
}

// String encodes the reply without the trailing newline.
func (r Reply) String() string {
	echo := ""
	if r.Req.Op != "" {
		echo = " " + r.Req.String()
	}
	if !r.OK {
		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			reason = "error"
		}
		return "ERR" + echo + " " + reason
	}
	if r.HasValue {
		return "OK" + echo + " " + strconv.FormatUint(uint64(r.Value), 10)
	}
	return "OK" + echo
}

// Err converts an error reply into a RemoteError, nil otherwise.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	return &RemoteError{Reason: r.Reason}
}

// ParseReply decodes one reply line.
func ParseReply(line string) (Reply, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Reply{}, ErrEmpty
	}

	status := strings.ToUpper(fields[0])
	if status != "OK" && status != "ERR" {
		return Reply{}, ErrUnknownOp
	}

	var req Request
	rest := fields[1:]
	if len(rest) > 0 && isOp(rest[0]) {
		var err error
		if req, rest, err = parseRequest(rest); err != nil {
			return Reply{}, err
		}
	}

	if status == "ERR" {
		if len(rest) == 0 {
			return Fail("error").To(req), nil
		}
		return Fail(strings.Join(rest, " ")).To(req), nil
	}

	switch len(rest) {
	case 0:
		return OK().To(req), nil
	case 1:
		v, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return Reply{}, ErrArgument
		}
		return Value(uint32(v)).To(req), nil
	}
	return Reply{}, ErrArgCount
}

// RemoteError is an error reported by the firmware.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string { return "remote: " + e.Reason }

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, ErrArgument
	}
	return uint8(v), nil
}

func itoa(v uint8) string { return strconv.FormatUint(uint64(v), 10) }
