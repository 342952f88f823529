package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Normalized transport errors.
var (
	ErrInvalidParam = errors.New("INVALID_PARAM")
	ErrBusy         = errors.New("BUSY")
	ErrTimeout      = errors.New("TIMEOUT")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrChecksum     = errors.New("CHECKSUM")
	ErrInternal     = errors.New("INTERNAL")
	// ErrUnknown marks a link failure that matched no token of its link map.
	ErrUnknown = errors.New("UNKNOWN")
)

// Status is the completion code the device processor reports for a mailbox
// command.
type Status uint8

const (
	StatusOK Status = iota
	StatusBusy
	StatusInvalidParam
	StatusBadState
	StatusChecksum
	StatusInternal
	// StatusPending is only observable while a command is still executing.
	StatusPending Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBusy:
		return "BUSY"
	case StatusInvalidParam:
		return "INVALID_PARAM"
	case StatusBadState:
		return "BAD_STATE"
	case StatusChecksum:
		return "CHECKSUM"
	case StatusInternal:
		return "INTERNAL"
	case StatusPending:
		return "PENDING"
	default:
		return fmt.Sprintf("STATUS_%02X", uint8(s))
	}
}

// Err returns the normalized error for a device status, nil for StatusOK.
func (s Status) Err() error {
	var code error
	switch s {
	case StatusOK:
		return nil
	case StatusBusy, StatusPending:
		code = ErrBusy
	case StatusInvalidParam, StatusBadState:
		code = ErrInvalidParam
	case StatusChecksum:
		code = ErrChecksum
	default:
		code = ErrInternal
	}
	return &VendorError{Code: code, Original: fmt.Errorf("device status %v", s), Details: s}
}

// LinkMap lists message tokens for one link kind.
type LinkMap struct {
	Param       []string
	Busy        []string
	Timeout     []string
	Unavailable []string
}

// LinkErrorMappings normalizes raw link errors by message token. Unknown
// tokens map to UNKNOWN.
var LinkErrorMappings = map[string]LinkMap{
	"usb": {
		Param:       []string{"LIBUSB_ERROR_INVALID_PARAM", "LIBUSB_ERROR_OVERFLOW"},
		Busy:        []string{"LIBUSB_ERROR_BUSY"},
		Timeout:     []string{"LIBUSB_ERROR_TIMEOUT", "TIMEOUT", "TIMED OUT"},
		Unavailable: []string{"LIBUSB_ERROR_NO_DEVICE", "LIBUSB_ERROR_NOT_FOUND", "LIBUSB_ERROR_PIPE", "LIBUSB_ERROR_IO", "DEVICE NOT FOUND"},
	},
	"modbus": {
		Param:       []string{"ILLEGAL DATA ADDRESS", "ILLEGAL DATA VALUE", "ILLEGAL FUNCTION"},
		Busy:        []string{"SERVER DEVICE BUSY", "ACKNOWLEDGE"},
		Timeout:     []string{"I/O TIMEOUT", "DEADLINE EXCEEDED", "TIMEOUT"},
		Unavailable: []string{"CONNECTION REFUSED", "BROKEN PIPE", "CONNECTION RESET", "EOF", "GATEWAY", "NO ROUTE"},
	},
	"generic": {
		Param:       []string{"INVALID", "OUT OF RANGE"},
		Busy:        []string{"BUSY", "RETRY"},
		Timeout:     []string{"TIMEOUT", "DEADLINE"},
		Unavailable: []string{"UNAVAILABLE", "OFFLINE", "CLOSED", "NOT CONNECTED"},
	},
}

// VendorError keeps the raw link or device failure behind a normalized code.
type VendorError struct {
	Code     error
	Original error
	Details  interface{}
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%v (link: %v)", e.Code, e.Original)
}

func (e *VendorError) Unwrap() error {
	return e.Code
}

// Normalize maps a raw link error to a normalized code using the generic table.
func Normalize(err error, details interface{}) error {
	return NormalizeLink(err, details, "generic")
}

// NormalizeLink maps a raw error using the token table of the given link kind.
// Errors that are already normalized pass through unchanged.
func NormalizeLink(err error, details interface{}, kind string) error {
	if err == nil {
		return nil
	}
	var ve *VendorError
	if errors.As(err, &ve) {
		return err
	}
	for _, known := range []error{ErrInvalidParam, ErrBusy, ErrTimeout, ErrUnavailable, ErrChecksum, ErrInternal, ErrUnknown} {
		if errors.Is(err, known) {
			return &VendorError{Code: known, Original: err, Details: details}
		}
	}

	var code error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrTimeout
	case errors.Is(err, context.Canceled):
		code = ErrUnavailable
	default:
		code = mapLinkErrorToCode(err.Error(), kind)
	}
	return &VendorError{Code: code, Original: err, Details: details}
}

func mapLinkErrorToCode(msg string, kind string) error {
	m, ok := LinkErrorMappings[kind]
	if !ok {
		m = LinkErrorMappings["generic"]
	}
	upper := strings.ToUpper(msg)

	for _, tok := range m.Param {
		if strings.Contains(upper, tok) {
			return ErrInvalidParam
		}
	}
	for _, tok := range m.Busy {
		if strings.Contains(upper, tok) {
			return ErrBusy
		}
	}
	for _, tok := range m.Timeout {
		if strings.Contains(upper, tok) {
			return ErrTimeout
		}
	}
	for _, tok := range m.Unavailable {
		if strings.Contains(upper, tok) {
			return ErrUnavailable
		}
	}
	return ErrUnknown
}
