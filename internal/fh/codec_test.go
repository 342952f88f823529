package fh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawFrame(t *rapid.T, label string) HopFrame {
	return HopFrame{
		HopFrequencyHz:       rapid.Uint64Range(MinCarrierFrequencyHz, MaxCarrierFrequencyHz).Draw(t, label+".freq"),
		Rx1OffsetFrequencyHz: rapid.Int32().Draw(t, label+".rx1off"),
		Rx2OffsetFrequencyHz: rapid.Int32().Draw(t, label+".rx2off"),
		Rx1GainIndex:         rapid.Uint8Range(MinRxGainIndex, MaxRxGainIndex).Draw(t, label+".rx1gain"),
		Rx2GainIndex:         rapid.Uint8Range(MinRxGainIndex, MaxRxGainIndex).Draw(t, label+".rx2gain"),
		Tx1AttenuationMdB:    rapid.Uint16Range(0, MaxTxAttenuationMdB).Draw(t, label+".tx1att"),
		Tx2AttenuationMdB:    rapid.Uint16Range(0, MaxTxAttenuationMdB).Draw(t, label+".tx2att"),
	}
}

func TestTableEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, MaxTableFrames).Draw(t, "n")
		in := make([]HopFrame, n)
		for i := range in {
			in[i] = drawFrame(t, "frame")
		}

		b := EncodeTable(in)
		if len(b) != TableHeaderSize+n*FrameSize {
			t.Fatalf("encoded %d frames into %d bytes", n, len(b))
		}
		out, err := DecodeTable(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out) != n {
			t.Fatalf("decoded %d frames, want %d", len(out), n)
		}
		for i := range in {
			if in[i] != out[i] {
				t.Fatalf("frame %d: got %+v want %+v", i, out[i], in[i])
			}
		}
	})
}

func TestDecodeTableIntoShortDestination(t *testing.T) {
	in := []HopFrame{{HopFrequencyHz: 1}, {HopFrequencyHz: 2}, {HopFrequencyHz: 3}}
	dst := make([]HopFrame, 2)
	n, err := DecodeTableInto(EncodeTable(in), dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, in[:2], dst)
}

func TestTableCountRejectsOverCapacity(t *testing.T) {
	b := EncodeTable(make([]HopFrame, MaxTableFrames+1))
	_, err := TableCount(b)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = TableCount([]byte{1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFrameShort(t *testing.T) {
	_, err := DecodeFrame(make([]byte, FrameSize-1))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestConfigEncoding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeLORetuneNoProcess
	cfg.TableSelect = TableSelectGPIO
	cfg.TableIndexControl = true
	cfg.RxZeroIF = true
	cfg.TxAnalogPowerOnFrameDelay = 3

	b := EncodeConfig(cfg)
	require.Len(t, b, ConfigSize)
	got, err := DecodeConfig(b)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = DecodeConfig(b[:ConfigSize-1])
	assert.ErrorIs(t, err, ErrMalformed)
}
