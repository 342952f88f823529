package fh

import (
	"encoding/binary"
	"fmt"
)

// Wire sizes of the device structures. All fields are little endian.
const (
	FrameSize       = 22
	ConfigSize      = 32
	TableHeaderSize = 2
)

// AppendFrame appends the wire form of f to b.
func AppendFrame(b []byte, f HopFrame) []byte {
	b = binary.LittleEndian.AppendUint64(b, f.HopFrequencyHz)
	b = binary.LittleEndian.AppendUint32(b, uint32(f.Rx1OffsetFrequencyHz))
	b = binary.LittleEndian.AppendUint32(b, uint32(f.Rx2OffsetFrequencyHz))
	b = append(b, f.Rx1GainIndex, f.Rx2GainIndex)
	b = binary.LittleEndian.AppendUint16(b, f.Tx1AttenuationMdB)
	b = binary.LittleEndian.AppendUint16(b, f.Tx2AttenuationMdB)
	return b
}

// DecodeFrame decodes one frame from the start of b.
func DecodeFrame(b []byte) (HopFrame, error) {
	if len(b) < FrameSize {
		return HopFrame{}, fmt.Errorf("%w: frame needs %d bytes, have %d", ErrMalformed, FrameSize, len(b))
	}
	return HopFrame{
		HopFrequencyHz:       binary.LittleEndian.Uint64(b[0:8]),
		Rx1OffsetFrequencyHz: int32(binary.LittleEndian.Uint32(b[8:12])),
		Rx2OffsetFrequencyHz: int32(binary.LittleEndian.Uint32(b[12:16])),
		Rx1GainIndex:         b[16],
		Rx2GainIndex:         b[17],
		Tx1AttenuationMdB:    binary.LittleEndian.Uint16(b[18:20]),
		Tx2AttenuationMdB:    binary.LittleEndian.Uint16(b[20:22]),
	}, nil
}

// EncodeTable returns the staging layout of a table: a frame count followed
// by the frames.
func EncodeTable(frames []HopFrame) []byte {
	b := make([]byte, 0, TableHeaderSize+len(frames)*FrameSize)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(frames)))
	for _, f := range frames {
		b = AppendFrame(b, f)
	}
	return b
}

// TableCount decodes the frame count of a staged table.
func TableCount(b []byte) (int, error) {
	if len(b) < TableHeaderSize {
		return 0, fmt.Errorf("%w: table header needs %d bytes, have %d", ErrMalformed, TableHeaderSize, len(b))
	}
	n := int(binary.LittleEndian.Uint16(b))
	if n > MaxTableFrames {
		return 0, fmt.Errorf("%w: table count %d exceeds %d", ErrMalformed, n, MaxTableFrames)
	}
	return n, nil
}

// DecodeTableInto decodes up to len(dst) frames of a staged table into dst
// and returns how many were written.
func DecodeTableInto(b []byte, dst []HopFrame) (int, error) {
	count, err := TableCount(b)
	if err != nil {
		return 0, err
	}
	n := min(count, len(dst))
	body := b[TableHeaderSize:]
	if len(body) < n*FrameSize {
		return 0, fmt.Errorf("%w: table body has %d bytes, need %d", ErrMalformed, len(body), n*FrameSize)
	}
	for i := 0; i < n; i++ {
		f, err := DecodeFrame(body[i*FrameSize:])
		if err != nil {
			return 0, err
		}
		dst[i] = f
	}
	return n, nil
}

// DecodeTable decodes a whole staged table.
func DecodeTable(b []byte) ([]HopFrame, error) {
	count, err := TableCount(b)
	if err != nil {
		return nil, err
	}
	out := make([]HopFrame, count)
	n, err := DecodeTableInto(b, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

const (
	cfgFlagTableIndexControl = 1 << 0
	cfgFlagRxZeroIF          = 1 << 1
)

// EncodeConfig returns the wire form of c.
func EncodeConfig(c Config) []byte {
	var flags byte
	if c.TableIndexControl {
		flags |= cfgFlagTableIndexControl
	}
	if c.RxZeroIF {
		flags |= cfgFlagRxZeroIF
	}
	b := make([]byte, 0, ConfigSize)
	b = append(b, byte(c.Mode), byte(c.Channels), byte(c.TableSelect), flags,
		c.MinRxGainIndex, c.MaxRxGainIndex, c.TxAnalogPowerOnFrameDelay, 0)
	b = binary.LittleEndian.AppendUint16(b, c.MinTxAttenuationMdB)
	b = binary.LittleEndian.AppendUint16(b, c.MaxTxAttenuationMdB)
	b = binary.LittleEndian.AppendUint64(b, c.MinOperatingFrequencyHz)
	b = binary.LittleEndian.AppendUint64(b, c.MaxOperatingFrequencyHz)
	b = binary.LittleEndian.AppendUint32(b, c.MinFrameDurationUs)
	return b
}

// DecodeConfig decodes a configuration from the start of b.
func DecodeConfig(b []byte) (Config, error) {
	if len(b) < ConfigSize {
		return Config{}, fmt.Errorf("%w: config needs %d bytes, have %d", ErrMalformed, ConfigSize, len(b))
	}
	return Config{
		Mode:                      Mode(b[0]),
		Channels:                  ChannelMask(b[1]),
		TableSelect:               TableSelectMode(b[2]),
		TableIndexControl:         b[3]&cfgFlagTableIndexControl != 0,
		RxZeroIF:                  b[3]&cfgFlagRxZeroIF != 0,
		MinRxGainIndex:            b[4],
		MaxRxGainIndex:            b[5],
		TxAnalogPowerOnFrameDelay: b[6],
		MinTxAttenuationMdB:       binary.LittleEndian.Uint16(b[8:10]),
		MaxTxAttenuationMdB:       binary.LittleEndian.Uint16(b[10:12]),
		MinOperatingFrequencyHz:   binary.LittleEndian.Uint64(b[12:20]),
		MaxOperatingFrequencyHz:   binary.LittleEndian.Uint64(b[20:28]),
		MinFrameDurationUs:        binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}
