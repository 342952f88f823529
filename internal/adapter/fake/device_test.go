package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/adaptertest"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
)

func TestDeviceConformance(t *testing.T) {
	adaptertest.RunConformance(t, "fake", func(t *testing.T) adapter.Transport {
		return New()
	})
}

func frames(n int) []fh.HopFrame {
	out := make([]fh.HopFrame, n)
	for i := range out {
		out[i] = fh.HopFrame{
			HopFrequencyHz: 900_000_000 + uint64(i)*1_000_000,
			Rx1GainIndex:   fh.MaxRxGainIndex,
			Rx2GainIndex:   fh.MaxRxGainIndex,
		}
	}
	return out
}

func load(t *testing.T, d *Device, id fh.TableID, f []fh.HopFrame) {
	t.Helper()
	require.NoError(t, d.WriteScope(adapter.ScopeStaging, fh.EncodeTable(f)))
	require.Equal(t, adapter.StatusOK, d.Exec([]byte{fh.OpTableLoad, id.Wire()}, adapter.PriorityHigh))
}

func frameAt(t *testing.T, d *Device, idx fh.FrameIndex) fh.HopFrame {
	t.Helper()
	require.Equal(t, adapter.StatusOK, d.Exec([]byte{fh.OpFrameInspect, idx.Wire()}, adapter.PriorityNormal))
	b, err := d.ReadScope(adapter.ScopeReadback, fh.FrameSize)
	require.NoError(t, err)
	f, err := fh.DecodeFrame(b)
	require.NoError(t, err)
	return f
}

func TestHopAdvancesWindow(t *testing.T) {
	d := New()
	f := frames(3)
	load(t, d, fh.TableA, f)

	assert.Equal(t, f[0], frameAt(t, d, fh.FrameCurrent))
	assert.Equal(t, f[1], frameAt(t, d, fh.FrameUpcoming))
	assert.Equal(t, f[2], frameAt(t, d, fh.FrameNext))

	require.NoError(t, d.WriteReg(adapter.RegHopTrigger, 1))
	assert.Equal(t, f[1], frameAt(t, d, fh.FrameCurrent))
	assert.Equal(t, f[0], frameAt(t, d, fh.FrameNext))
	assert.Equal(t, uint64(1), d.Snapshot().Hops)
}

func TestPendingSwitchShowsInLookahead(t *testing.T) {
	d := New()
	a, b := frames(4), frames(2)
	b[0].HopFrequencyHz, b[1].HopFrequencyHz = 2_400_000_000, 2_410_000_000
	load(t, d, fh.TableA, a)
	load(t, d, fh.TableB, b)

	require.Equal(t, adapter.StatusOK, d.Exec([]byte{fh.OpTableSet, fh.TableB.Wire()}, adapter.PriorityHigh))
	assert.Equal(t, a[0], frameAt(t, d, fh.FrameCurrent))
	assert.Equal(t, b[0], frameAt(t, d, fh.FrameUpcoming))
	assert.Equal(t, b[1], frameAt(t, d, fh.FrameNext))

	require.NoError(t, d.WriteReg(adapter.RegHopTrigger, 1))
	snap := d.Snapshot()
	assert.Equal(t, fh.TableB, snap.Live)
	assert.Equal(t, 0, snap.Cursor)
	assert.Equal(t, b[0], frameAt(t, d, fh.FrameCurrent))
}

func TestEmptyTableFrameInspect(t *testing.T) {
	d := New()
	st := d.Exec([]byte{fh.OpFrameInspect, fh.FrameCurrent.Wire()}, adapter.PriorityNormal)
	assert.Equal(t, adapter.StatusBadState, st)

	require.Equal(t, adapter.StatusOK, d.Exec([]byte{gpio.OpIntStatusGet}, adapter.PriorityNormal))
	b, err := d.ReadScope(adapter.ScopeReadback, 4)
	require.NoError(t, err)
	s, err := gpio.DecodeStatus(b)
	require.NoError(t, err)
	assert.NotZero(t, s&gpio.IntHopTableError)
}

func TestLoadRejectsFramesOutsideConfig(t *testing.T) {
	d := New()
	bad := frames(1)
	bad[0].HopFrequencyHz = 10
	require.NoError(t, d.WriteScope(adapter.ScopeStaging, fh.EncodeTable(bad)))
	assert.Equal(t, adapter.StatusInvalidParam, d.Exec([]byte{fh.OpTableLoad, fh.TableA.Wire()}, adapter.PriorityHigh))
	assert.Empty(t, d.Snapshot().TableA)
}

func TestFaultInjectionIsOneShot(t *testing.T) {
	d := New()
	ctx := context.Background()
	boom := errors.New("boom")

	d.FailBulkWrite(boom)
	assert.ErrorIs(t, d.BulkWrite(ctx, adapter.ScopeStaging, []byte{1}), boom)
	assert.NoError(t, d.BulkWrite(ctx, adapter.ScopeStaging, []byte{1}))

	d.FailMailbox(fh.OpTableGet, adapter.StatusInternal)
	assert.ErrorIs(t, d.SendMailbox(ctx, []byte{fh.OpTableGet}, adapter.PriorityNormal), adapter.ErrInternal)
	assert.NoError(t, d.SendMailbox(ctx, []byte{fh.OpTableGet}, adapter.PriorityNormal))

	d.FailRegister(boom)
	assert.ErrorIs(t, d.WriteRegister(ctx, adapter.RegHopTrigger, 1), boom)
	assert.Zero(t, d.Snapshot().Hops)
}

func TestSignalPinConflict(t *testing.T) {
	d := New()
	pin := byte(gpio.DigitalPin(3))
	assert.Equal(t, adapter.StatusOK, d.Exec([]byte{gpio.OpSignalConfigure, byte(gpio.SignalHop), pin, 0}, adapter.PriorityNormal))
	assert.Equal(t, adapter.StatusBadState, d.Exec([]byte{gpio.OpSignalConfigure, byte(gpio.SignalTableSelect), pin, 0}, adapter.PriorityNormal))
	assert.Equal(t, adapter.StatusOK, d.Exec([]byte{gpio.OpSignalConfigure, byte(gpio.SignalHop), pin, 1}, adapter.PriorityNormal))
}

func TestCallsRecorded(t *testing.T) {
	d := New()
	ctx := context.Background()
	require.NoError(t, d.SendMailbox(ctx, []byte{fh.OpTableSet, fh.TableB.Wire()}, adapter.PriorityHigh))
	_, err := d.BulkRead(ctx, adapter.ScopeReadback, 1)
	require.NoError(t, err)

	calls := d.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, CallMailbox, calls[0].Kind)
	assert.Equal(t, fh.OpTableSet, calls[0].Opcode)
	assert.Equal(t, adapter.PriorityHigh, calls[0].Priority)
	assert.Equal(t, CallBulkRead, calls[1].Kind)

	d.ResetCalls()
	assert.Empty(t, d.Calls())
}
