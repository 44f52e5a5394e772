package meter

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports an invalid configuration or a failure while creating a meter.
	ErrConfig = errors.New("config")
	// ErrNotApplicable reports a read of a quantity that the current mode does not acquire.
	ErrNotApplicable = errors.New("not applicable")
	// ErrModeChange reports a failed mode change.
	ErrModeChange = errors.New("mode change")
	// ErrModeUnsupported reports a mode the configuration cannot enter.
	ErrModeUnsupported = errors.New("mode unsupported")
	// ErrHandle reports use of a nil or closed meter.
	ErrHandle = errors.New("invalid handle")
	// ErrHardware wraps errors returned by the counter or GPIO collaborators.
	ErrHardware = errors.New("hardware")
	// ErrDegraded reports a meter left without a consistent channel set by a failed rollback.
	ErrDegraded = errors.New("degraded")

	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrChannelInUse    = errors.New("channel_in_use")
	ErrPinInUse        = errors.New("pin_in_use")
)

// ReadError is returned by Read, ReadRaw and Reset.
type ReadError struct {
	Quantity Quantity
	Mode     Mode
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s in %s mode: %v", e.Quantity, e.Mode, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Mode change steps reported in ModeChangeError.Step.
const (
	StepValidate  = "validate"
	StepQuiesce   = "quiesce"
	StepSelect    = "select"
	StepConfigure = "configure"
)

// ModeChangeError is returned by ChangeMode. It matches ErrModeChange.
//
// When RollbackErr is nil the meter is back in From with its previous
// channel set. Channels the failed attempt had already paused are
// configured again and restart counting from zero; channels it never
// touched keep their counts. Otherwise the meter is degraded until a later
// ChangeMode succeeds.
type ModeChangeError struct {
	From, To    Mode
	Step        string
	Err         error
	RollbackErr error
}

func (e *ModeChangeError) Error() string {
	msg := fmt.Sprintf("mode change %s -> %s failed at %s: %v", e.From, e.To, e.Step, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	}
	return msg
}

func (e *ModeChangeError) Unwrap() []error {
	errs := []error{ErrModeChange, e.Err}
	if e.RollbackErr != nil {
		errs = append(errs, ErrDegraded, e.RollbackErr)
	}
	return errs
}

// Degraded reports whether the failed change left the meter degraded.
func (e *ModeChangeError) Degraded() bool { return e.RollbackErr != nil }
