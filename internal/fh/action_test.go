package fh

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/radio-control/fhc/internal/adapter"
)

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestActionMapping(t *testing.T) {
	tests := []struct {
		err  error
		want ActionCode
	}{
		{nil, NoAction},
		{ErrChannelState, ErrCheckParam},
		{ErrTableCapacity, ErrCheckParam},
		{ErrInvalidSelector, ErrCheckParam},
		{adapter.StatusInvalidParam.Err(), ErrCheckParam},
		{adapter.ErrTimeout, ErrCheckTimer},
		{adapter.StatusBusy.Err(), WarnRerunFeature},
		{adapter.ErrChecksum, ErrResetInterface},
		{adapter.ErrUnavailable, ErrResetInterface},
		{ErrMalformed, ErrResetInterface},
		{adapter.StatusInternal.Err(), ErrResetModule},
		{errors.New("unclassified"), ErrResetFull},
		{adapter.Normalize(errors.New("flux capacitor"), nil), ErrResetFull},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, Action(Wrap("op", tt.err)))
		})
	}
}

func TestWrapKeepsAction(t *testing.T) {
	first := Wrap("inner", adapter.ErrTimeout)
	second := Wrap("outer", fmt.Errorf("context: %w", first))
	assert.Equal(t, ErrCheckTimer, Action(second))

	var ae *ActionError
	assert.ErrorAs(t, second, &ae)
	assert.Equal(t, "inner", ae.Op)
}

func TestActionCodeNames(t *testing.T) {
	assert.Equal(t, "ERR_CHECK_PARAM", ErrCheckParam.String())
	assert.Equal(t, "ACTION_-9", ActionCode(-9).String())
	assert.True(t, ErrResetFull.IsError())
	assert.False(t, WarnCheckParam.IsError())
}

func TestTransferStateMachine(t *testing.T) {
	tr := &transfer{table: TableA}
	assert.NoError(t, tr.stage(3, fixedTime))
	assert.Error(t, tr.stage(1, fixedTime))
	tr.commit(fixedTime)
	assert.Equal(t, TransferCommitted, tr.snapshot().State)

	assert.NoError(t, tr.stage(2, fixedTime))
	tr.fail(adapter.ErrTimeout, fixedTime)
	s := tr.snapshot()
	assert.Equal(t, TransferFailed, s.State)
	assert.Equal(t, 2, s.Frames)
	assert.NotEmpty(t, s.Error)

	assert.Panics(t, func() { tr.commit(fixedTime) })
}
