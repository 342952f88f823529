package fh

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/radio-control/fhc/internal/channel"
)

// MaxTableFrames is the capacity of one hop table.
const MaxTableFrames = 64

// ErrInvalidSelector is returned for the zero TableID or FrameIndex.
var ErrInvalidSelector = errors.New("invalid selector")

// TableID selects one of the two ping-pong hop tables. The only valid
// values are TableA and TableB.
type TableID struct{ slot uint8 }

var (
	TableA = TableID{slot: 1}
	TableB = TableID{slot: 2}
)

// Tables lists both tables.
var Tables = []TableID{TableA, TableB}

// Valid reports whether t is TableA or TableB.
func (t TableID) Valid() bool { return t == TableA || t == TableB }

// Other returns the table that is not t.
func (t TableID) Other() TableID {
	if t == TableA {
		return TableB
	}
	return TableA
}

func (t TableID) String() string {
	switch t {
	case TableA:
		return "A"
	case TableB:
		return "B"
	default:
		return "invalid"
	}
}

// ParseTableID accepts "A" or "B" in either case.
func ParseTableID(s string) (TableID, error) {
	switch strings.ToUpper(s) {
	case "A":
		return TableA, nil
	case "B":
		return TableB, nil
	}
	return TableID{}, fmt.Errorf("%w: table %q", ErrInvalidSelector, s)
}

func (t TableID) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: zero table", ErrInvalidSelector)
	}
	return []byte(t.String()), nil
}

func (t *TableID) UnmarshalText(b []byte) error {
	v, err := ParseTableID(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Wire returns the device encoding of t (0 for A, 1 for B).
func (t TableID) Wire() byte { return t.slot - 1 }

// TableFromWire decodes the device encoding of a table identifier.
func TableFromWire(b byte) (TableID, error) {
	switch b {
	case 0:
		return TableA, nil
	case 1:
		return TableB, nil
	}
	return TableID{}, fmt.Errorf("%w: wire table %d", ErrInvalidSelector, b)
}

// FrameIndex selects a slot of the device's three-frame lookahead window.
type FrameIndex struct{ slot uint8 }

var (
	FrameCurrent  = FrameIndex{slot: 1}
	FrameUpcoming = FrameIndex{slot: 2}
	FrameNext     = FrameIndex{slot: 3}
)

// FrameIndexes lists the window slots in order.
var FrameIndexes = []FrameIndex{FrameCurrent, FrameUpcoming, FrameNext}

func (f FrameIndex) Valid() bool { return f.slot >= 1 && f.slot <= 3 }

// Offset is the number of hop edges between the current frame and f.
func (f FrameIndex) Offset() int { return int(f.slot) - 1 }

func (f FrameIndex) String() string {
	switch f {
	case FrameCurrent:
		return "current"
	case FrameUpcoming:
		return "upcoming"
	case FrameNext:
		return "next"
	default:
		return "invalid"
	}
}

// ParseFrameIndex accepts "current", "upcoming" or "next".
func ParseFrameIndex(s string) (FrameIndex, error) {
	for _, f := range FrameIndexes {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return FrameIndex{}, fmt.Errorf("%w: frame %q", ErrInvalidSelector, s)
}

func (f FrameIndex) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: zero frame index", ErrInvalidSelector)
	}
	return []byte(f.String()), nil
}

func (f *FrameIndex) UnmarshalText(b []byte) error {
	v, err := ParseFrameIndex(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Wire returns the device encoding of f.
func (f FrameIndex) Wire() byte { return f.slot - 1 }

// FrameIndexFromWire decodes the device encoding of a window slot.
func FrameIndexFromWire(b byte) (FrameIndex, error) {
	if b > 2 {
		return FrameIndex{}, fmt.Errorf("%w: wire frame index %d", ErrInvalidSelector, b)
	}
	return FrameIndex{slot: b + 1}, nil
}

// HopFrame holds the parameters applied for one hop.
type HopFrame struct {
	HopFrequencyHz       uint64 `json:"hopFrequencyHz" yaml:"hopFrequencyHz"`
	Rx1OffsetFrequencyHz int32  `json:"rx1OffsetFrequencyHz" yaml:"rx1OffsetFrequencyHz"`
	Rx2OffsetFrequencyHz int32  `json:"rx2OffsetFrequencyHz" yaml:"rx2OffsetFrequencyHz"`
	Rx1GainIndex         uint8  `json:"rx1GainIndex" yaml:"rx1GainIndex"`
	Rx2GainIndex         uint8  `json:"rx2GainIndex" yaml:"rx2GainIndex"`
	Tx1AttenuationMdB    uint16 `json:"tx1AttenuationMdB" yaml:"tx1AttenuationMdB"`
	Tx2AttenuationMdB    uint16 `json:"tx2AttenuationMdB" yaml:"tx2AttenuationMdB"`
}

// Mode selects how the device retunes on a hop edge.
type Mode uint8

const (
	ModeLOMux Mode = iota
	ModeLORetuneRealtime
	ModeLORetuneNoProcess
)

var modeNames = []string{"LO_MUX", "LO_RETUNE_REALTIME", "LO_RETUNE_NO_PROCESS"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("MODE_%d", uint8(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	for i, n := range modeNames {
		if strings.EqualFold(string(b), n) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown hop mode %q", string(b))
}

// TableSelectMode selects what chooses the active table on a hop edge.
type TableSelectMode uint8

const (
	TableSelectCommand TableSelectMode = iota
	TableSelectGPIO
)

func (s TableSelectMode) String() string {
	switch s {
	case TableSelectCommand:
		return "COMMAND"
	case TableSelectGPIO:
		return "GPIO"
	default:
		return fmt.Sprintf("TABLE_SELECT_%d", uint8(s))
	}
}

func (s TableSelectMode) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TableSelectMode) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "COMMAND":
		*s = TableSelectCommand
	case "GPIO":
		*s = TableSelectGPIO
	default:
		return fmt.Errorf("unknown table select mode %q", string(b))
	}
	return nil
}

// ChannelMask is a set of channels, one bit per channel.ID.
type ChannelMask uint8

// MaskOf builds a mask from channel identifiers.
func MaskOf(ids ...channel.ID) ChannelMask {
	var m ChannelMask
	for _, id := range ids {
		m |= ChannelMask(id.Bit())
	}
	return m
}

// Has reports whether id is in the mask.
func (m ChannelMask) Has(id channel.ID) bool {
	return id.Valid() && m&ChannelMask(id.Bit()) != 0
}

// IDs returns the channels in the mask.
func (m ChannelMask) IDs() []channel.ID {
	var out []channel.ID
	for _, id := range channel.All {
		if m.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (m ChannelMask) MarshalJSON() ([]byte, error) {
	names := []string{}
	for _, id := range m.IDs() {
		names = append(names, id.String())
	}
	return json.Marshal(names)
}

func (m *ChannelMask) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("channel mask must be a list of channel names: %w", err)
	}
	var mask ChannelMask
	for _, n := range names {
		id, err := channel.ParseID(n)
		if err != nil {
			return err
		}
		mask |= ChannelMask(id.Bit())
	}
	*m = mask
	return nil
}

// Config is the global frequency hopping configuration.
type Config struct {
	Mode                      Mode            `json:"mode"`
	Channels                  ChannelMask     `json:"channels"`
	TableSelect               TableSelectMode `json:"tableSelect"`
	TableIndexControl         bool            `json:"tableIndexControl"`
	MinRxGainIndex            uint8           `json:"minRxGainIndex"`
	MaxRxGainIndex            uint8           `json:"maxRxGainIndex"`
	MinTxAttenuationMdB       uint16          `json:"minTxAttenuationMdB"`
	MaxTxAttenuationMdB       uint16          `json:"maxTxAttenuationMdB"`
	MinOperatingFrequencyHz   uint64          `json:"minOperatingFrequencyHz"`
	MaxOperatingFrequencyHz   uint64          `json:"maxOperatingFrequencyHz"`
	MinFrameDurationUs        uint32          `json:"minFrameDurationUs"`
	TxAnalogPowerOnFrameDelay uint8           `json:"txAnalogPowerOnFrameDelay"`
	RxZeroIF                  bool            `json:"rxZeroIF"`
}

// DefaultConfig returns a configuration that hops all four channels over
// the full tuning range.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeLOMux,
		Channels:                MaskOf(channel.All...),
		TableSelect:             TableSelectCommand,
		MinRxGainIndex:          MinRxGainIndex,
		MaxRxGainIndex:          MaxRxGainIndex,
		MinTxAttenuationMdB:     0,
		MaxTxAttenuationMdB:     MaxTxAttenuationMdB,
		MinOperatingFrequencyHz: MinCarrierFrequencyHz,
		MaxOperatingFrequencyHz: MaxCarrierFrequencyHz,
		MinFrameDurationUs:      100,
	}
}
