package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLink(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		expected error
	}{
		{"nil passes", nil, "generic", nil},
		{"unknown maps to unknown", errors.New("flux capacitor"), "generic", ErrUnknown},
		{"unknown modbus text", errors.New("modbus: response transaction id mismatch"), "modbus", ErrUnknown},
		{"usb timeout", errors.New("libusb: timeout [code -7] LIBUSB_ERROR_TIMEOUT"), "usb", ErrTimeout},
		{"usb unplugged", errors.New("LIBUSB_ERROR_NO_DEVICE"), "usb", ErrUnavailable},
		{"modbus exception", errors.New("modbus: exception '2' (illegal data address), function '16'"), "modbus", ErrInvalidParam},
		{"modbus busy", errors.New("modbus: exception '6' (server device busy)"), "modbus", ErrBusy},
		{"modbus refused", errors.New("dial tcp 127.0.0.1:502: connect: connection refused"), "modbus", ErrUnavailable},
		{"unknown kind falls back to generic", errors.New("device offline"), "serial", ErrUnavailable},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), "usb", ErrTimeout},
		{"sentinel kept", fmt.Errorf("frame: %w", ErrChecksum), "usb", ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLink(tt.err, nil, tt.kind)
			if tt.expected == nil {
				assert.NoError(t, got)
				return
			}
			var ve *VendorError
			require.ErrorAs(t, got, &ve)
			assert.ErrorIs(t, got, tt.expected)
			assert.Equal(t, tt.err, ve.Original)
		})
	}
}

func TestNormalizeKeepsVendorError(t *testing.T) {
	first := Normalize(errors.New("busy"), "payload")
	again := Normalize(first, nil)
	assert.Same(t, first, again)
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusOK.Err())
	assert.ErrorIs(t, StatusBusy.Err(), ErrBusy)
	assert.ErrorIs(t, StatusPending.Err(), ErrBusy)
	assert.ErrorIs(t, StatusInvalidParam.Err(), ErrInvalidParam)
	assert.ErrorIs(t, StatusBadState.Err(), ErrInvalidParam)
	assert.ErrorIs(t, StatusChecksum.Err(), ErrChecksum)
	assert.ErrorIs(t, Status(0x42).Err(), ErrInternal)
	assert.Equal(t, "STATUS_42", Status(0x42).String())
}

func TestCheckScope(t *testing.T) {
	assert.NoError(t, CheckScope(ScopeStaging, ScopeSize))
	assert.NoError(t, CheckScope(ScopeReadback, 0))
	assert.ErrorIs(t, CheckScope(ScopeStaging, ScopeSize+1), ErrInvalidParam)
	assert.ErrorIs(t, CheckScope(Scope(9), 1), ErrInvalidParam)
}
