package fh

import (
	"errors"
	"fmt"

	"github.com/radio-control/fhc/internal/adapter"
)

// ActionCode tells the caller what, if anything, must be done to recover
// from an operation. Negative values are errors, positive values warnings.
type ActionCode int32

const (
	NoAction          ActionCode = 0
	WarnRerunFeature  ActionCode = 1
	WarnCheckParam    ActionCode = 2
	ErrCheckTimer     ActionCode = -1
	ErrCheckParam     ActionCode = -2
	ErrResetInterface ActionCode = -3
	ErrResetFeature   ActionCode = -4
	ErrResetModule    ActionCode = -5
	ErrResetFull      ActionCode = -6
)

var actionNames = map[ActionCode]string{
	NoAction:          "NO_ACTION",
	WarnRerunFeature:  "WARN_RERUN_FEATURE",
	WarnCheckParam:    "WARN_CHECK_PARAM",
	ErrCheckTimer:     "ERR_CHECK_TIMER",
	ErrCheckParam:     "ERR_CHECK_PARAM",
	ErrResetInterface: "ERR_RESET_INTERFACE",
	ErrResetFeature:   "ERR_RESET_FEATURE",
	ErrResetModule:    "ERR_RESET_MODULE",
	ErrResetFull:      "ERR_RESET_FULL",
}

func (a ActionCode) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("ACTION_%d", int32(a))
}

// IsError reports whether recovery beyond a warning is required.
func (a ActionCode) IsError() bool { return a < 0 }

// Errors raised by the core before anything reaches the device.
var (
	ErrChannelState  = errors.New("channel state precondition not met")
	ErrInvalidConfig = errors.New("invalid hop configuration")
	ErrTableCapacity = errors.New("hop table capacity exceeded")
	ErrInvalidFrame  = errors.New("invalid hop frame")
	ErrMalformed     = errors.New("malformed device response")
)

// ActionError is the error form of a non-zero ActionCode.
type ActionError struct {
	Op     string
	Action ActionCode
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("fh %s: %v (%v)", e.Op, e.Err, e.Action)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Action returns the recovery action carried by err. A nil error is NoAction
// and an error that did not come from this package is ErrResetFull.
func Action(err error) ActionCode {
	if err == nil {
		return NoAction
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Action
	}
	return ErrResetFull
}

// actionFor classifies err into the action a caller should take.
func actionFor(err error) ActionCode {
	switch {
	case errors.Is(err, ErrChannelState),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrTableCapacity),
		errors.Is(err, ErrInvalidFrame),
		errors.Is(err, ErrInvalidSelector),
		errors.Is(err, adapter.ErrInvalidParam):
		return ErrCheckParam
	case errors.Is(err, adapter.ErrTimeout):
		return ErrCheckTimer
	case errors.Is(err, adapter.ErrBusy):
		return WarnRerunFeature
	case errors.Is(err, adapter.ErrUnavailable),
		errors.Is(err, adapter.ErrChecksum),
		errors.Is(err, ErrMalformed):
		return ErrResetInterface
	case errors.Is(err, adapter.ErrInternal):
		return ErrResetModule
	default:
		return ErrResetFull
	}
}

// Wrap attaches the recovery action for err. Errors that already carry an
// action are returned unchanged.
func Wrap(op string, err error) error {
	return wrap(op, err)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Op: op, Action: actionFor(err), Err: err}
}
