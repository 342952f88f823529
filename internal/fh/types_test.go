package fh

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/fhc/internal/channel"
)

func TestTableIDSelectors(t *testing.T) {
	assert.False(t, TableID{}.Valid())
	assert.Equal(t, TableB, TableA.Other())
	assert.Equal(t, TableA, TableB.Other())

	for _, id := range Tables {
		got, err := TableFromWire(id.Wire())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	_, err := TableFromWire(2)
	assert.ErrorIs(t, err, ErrInvalidSelector)

	id, err := ParseTableID("b")
	require.NoError(t, err)
	assert.Equal(t, TableB, id)
	_, err = ParseTableID("C")
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = TableID{}.MarshalText()
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestFrameIndexSelectors(t *testing.T) {
	assert.False(t, FrameIndex{}.Valid())
	for i, f := range FrameIndexes {
		assert.Equal(t, i, f.Offset())
		got, err := FrameIndexFromWire(f.Wire())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := FrameIndexFromWire(3)
	assert.ErrorIs(t, err, ErrInvalidSelector)

	f, err := ParseFrameIndex("UPCOMING")
	require.NoError(t, err)
	assert.Equal(t, FrameUpcoming, f)
}

func TestConfigJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = MaskOf(channel.Rx1, channel.Tx2)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"channels":["rx1","tx2"]`)
	assert.Contains(t, string(b), `"mode":"LO_MUX"`)

	var got Config
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, cfg, got)

	err = json.Unmarshal([]byte(`{"channels":["RX9"]}`), &got)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"channels":["RX1","tx2"]}`), &got))
	assert.Equal(t, cfg.Channels, got.Channels)
}

func TestTransferJSON(t *testing.T) {
	for _, st := range []TransferState{TransferIdle, TransferStaged, TransferCommitted, TransferFailed} {
		in := Transfer{Table: TableB, State: st, Frames: 7, Error: "x", UpdatedAt: fixedTime}
		b, err := json.Marshal(in)
		require.NoError(t, err)

		var out Transfer
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, in.State, out.State)
		assert.Equal(t, in.Table, out.Table)
		assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
	}

	var out Transfer
	assert.Error(t, json.Unmarshal([]byte(`{"state":"DONE"}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`{"state":"failed"}`), &out))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no channels", func(c *Config) { c.Channels = 0 }},
		{"unknown channel bits", func(c *Config) { c.Channels = 0x30 }},
		{"unknown mode", func(c *Config) { c.Mode = 9 }},
		{"gain below floor", func(c *Config) { c.MinRxGainIndex = 10 }},
		{"gain range inverted", func(c *Config) { c.MinRxGainIndex, c.MaxRxGainIndex = 200, 190 }},
		{"attenuation too high", func(c *Config) { c.MaxTxAttenuationMdB = MaxTxAttenuationMdB + 1 }},
		{"frequency below carrier range", func(c *Config) { c.MinOperatingFrequencyHz = 1 }},
		{"frequency range inverted", func(c *Config) {
			c.MinOperatingFrequencyHz, c.MaxOperatingFrequencyHz = 2e9, 1e9
		}},
		{"zero frame duration", func(c *Config) { c.MinFrameDurationUs = 0 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateTable(t *testing.T) {
	cfg := DefaultConfig()
	ok := HopFrame{HopFrequencyHz: 1e9, Rx1GainIndex: 200, Rx2GainIndex: 200}

	assert.NoError(t, ValidateTable(nil, &cfg))
	assert.NoError(t, ValidateTable(make([]HopFrame, MaxTableFrames), nil))
	assert.ErrorIs(t, ValidateTable(make([]HopFrame, MaxTableFrames+1), nil), ErrTableCapacity)

	bad := ok
	bad.Tx1AttenuationMdB = MaxTxAttenuationMdB + 1
	assert.ErrorIs(t, ValidateTable([]HopFrame{ok, bad}, &cfg), ErrInvalidFrame)
}
