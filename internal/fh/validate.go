package fh

import (
	"fmt"
)

// Device limits.
const (
	MinCarrierFrequencyHz uint64 = 30_000_000
	MaxCarrierFrequencyHz uint64 = 6_000_000_000
	MinRxGainIndex        uint8  = 183
	MaxRxGainIndex        uint8  = 255
	MaxTxAttenuationMdB   uint16 = 41950
)

// Validate checks the configuration against device limits.
func (c Config) Validate() error {
	if int(c.Mode) >= len(modeNames) {
		return fmt.Errorf("%w: mode %d", ErrInvalidConfig, c.Mode)
	}
	if c.TableSelect > TableSelectGPIO {
		return fmt.Errorf("%w: table select %d", ErrInvalidConfig, c.TableSelect)
	}
	if c.Channels == 0 {
		return fmt.Errorf("%w: no hopping channels", ErrInvalidConfig)
	}
	if c.Channels&^MaskOfAll() != 0 {
		return fmt.Errorf("%w: channel mask 0x%02x", ErrInvalidConfig, uint8(c.Channels))
	}
	if c.MinRxGainIndex < MinRxGainIndex || c.MaxRxGainIndex < c.MinRxGainIndex {
		return fmt.Errorf("%w: rx gain index range [%d, %d] outside [%d, %d]",
			ErrInvalidConfig, c.MinRxGainIndex, c.MaxRxGainIndex, MinRxGainIndex, MaxRxGainIndex)
	}
	if c.MaxTxAttenuationMdB > MaxTxAttenuationMdB || c.MaxTxAttenuationMdB < c.MinTxAttenuationMdB {
		return fmt.Errorf("%w: tx attenuation range [%d, %d] mdB outside [0, %d]",
			ErrInvalidConfig, c.MinTxAttenuationMdB, c.MaxTxAttenuationMdB, MaxTxAttenuationMdB)
	}
	if c.MinOperatingFrequencyHz < MinCarrierFrequencyHz ||
		c.MaxOperatingFrequencyHz > MaxCarrierFrequencyHz ||
		c.MaxOperatingFrequencyHz < c.MinOperatingFrequencyHz {
		return fmt.Errorf("%w: operating range [%d, %d] Hz outside [%d, %d]",
			ErrInvalidConfig, c.MinOperatingFrequencyHz, c.MaxOperatingFrequencyHz,
			MinCarrierFrequencyHz, MaxCarrierFrequencyHz)
	}
	if c.MinFrameDurationUs == 0 {
		return fmt.Errorf("%w: minimum frame duration must be positive", ErrInvalidConfig)
	}
	return nil
}

// MaskOfAll returns the mask with every channel set.
func MaskOfAll() ChannelMask {
	return ChannelMask(0x0F)
}

// ValidateFrame checks one frame against the ranges of c.
func (c Config) ValidateFrame(f HopFrame) error {
	if f.HopFrequencyHz < c.MinOperatingFrequencyHz || f.HopFrequencyHz > c.MaxOperatingFrequencyHz {
		return fmt.Errorf("%w: hop frequency %d Hz outside [%d, %d]",
			ErrInvalidFrame, f.HopFrequencyHz, c.MinOperatingFrequencyHz, c.MaxOperatingFrequencyHz)
	}
	for _, g := range []uint8{f.Rx1GainIndex, f.Rx2GainIndex} {
		if g < c.MinRxGainIndex || g > c.MaxRxGainIndex {
			return fmt.Errorf("%w: rx gain index %d outside [%d, %d]",
				ErrInvalidFrame, g, c.MinRxGainIndex, c.MaxRxGainIndex)
		}
	}
	for _, a := range []uint16{f.Tx1AttenuationMdB, f.Tx2AttenuationMdB} {
		if a < c.MinTxAttenuationMdB || a > c.MaxTxAttenuationMdB {
			return fmt.Errorf("%w: tx attenuation %d mdB outside [%d, %d]",
				ErrInvalidFrame, a, c.MinTxAttenuationMdB, c.MaxTxAttenuationMdB)
		}
	}
	return nil
}

// ValidateTable checks the table size and, when cfg is non-nil, every frame.
func ValidateTable(frames []HopFrame, cfg *Config) error {
	if len(frames) > MaxTableFrames {
		return fmt.Errorf("%w: %d frames, capacity %d", ErrTableCapacity, len(frames), MaxTableFrames)
	}
	if cfg == nil {
		return nil
	}
	for i, f := range frames {
		if err := cfg.ValidateFrame(f); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}
