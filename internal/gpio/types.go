package gpio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Mailbox opcodes understood by the device processor's GPIO handler.
const (
	OpSignalConfigure byte = 0x40
	OpSignalInspect   byte = 0x41
	OpIntMaskSet      byte = 0x48
	OpIntMaskGet      byte = 0x49
	OpIntStatusGet    byte = 0x4A
	OpIntClear        byte = 0x4B
)

// Signal is a hopping control signal that can be driven from a pin.
type Signal uint8

const (
	SignalHop Signal = iota + 1
	SignalTableSelect
	SignalTableIndex
)

// Signals lists every routable signal.
var Signals = []Signal{SignalHop, SignalTableSelect, SignalTableIndex}

var signalNames = map[Signal]string{
	SignalHop:         "hop",
	SignalTableSelect: "table-select",
	SignalTableIndex:  "table-index",
}

func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	_, ok := signalNames[s]
	return ok
}

// ParseSignal parses "hop", "table-select" or "table-index".
func ParseSignal(s string) (Signal, error) {
	for sig, n := range signalNames {
		if strings.EqualFold(s, n) {
			return sig, nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

// Pin is a device GPIO. PinUnassigned detaches a signal.
type Pin uint8

const (
	PinUnassigned Pin = 0
	// Digital pins DGPIO_0..DGPIO_15 are 1..16, analog AGPIO_0..AGPIO_11 are 17..28.
	pinDigitalFirst Pin = 1
	pinDigitalLast  Pin = 16
	pinAnalogFirst  Pin = 17
	pinAnalogLast   Pin = 28
)

// DigitalPin returns DGPIO_n.
func DigitalPin(n int) Pin { return pinDigitalFirst + Pin(n) }

// AnalogPin returns AGPIO_n.
func AnalogPin(n int) Pin { return pinAnalogFirst + Pin(n) }

// Valid reports whether p is unassigned or an existing pin.
func (p Pin) Valid() bool { return p <= pinAnalogLast }

func (p Pin) String() string {
	switch {
	case p == PinUnassigned:
		return "UNASSIGNED"
	case p <= pinDigitalLast:
		return fmt.Sprintf("DGPIO_%d", p-pinDigitalFirst)
	case p <= pinAnalogLast:
		return fmt.Sprintf("AGPIO_%d", p-pinAnalogFirst)
	default:
		return fmt.Sprintf("PIN_%d", uint8(p))
	}
}

// ParsePin parses "UNASSIGNED", "DGPIO_3" or "AGPIO_10".
func ParsePin(s string) (Pin, error) {
	u := strings.ToUpper(s)
	var n int
	switch {
	case u == "UNASSIGNED" || u == "":
		return PinUnassigned, nil
	case strings.HasPrefix(u, "DGPIO_"):
		if _, err := fmt.Sscanf(u, "DGPIO_%d", &n); err == nil && n >= 0 && n <= int(pinDigitalLast-pinDigitalFirst) {
			return DigitalPin(n), nil
		}
	case strings.HasPrefix(u, "AGPIO_"):
		if _, err := fmt.Sscanf(u, "AGPIO_%d", &n); err == nil && n >= 0 && n <= int(pinAnalogLast-pinAnalogFirst) {
			return AnalogPin(n), nil
		}
	}
	return 0, fmt.Errorf("unknown pin %q", s)
}

func (p Pin) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pin) UnmarshalText(b []byte) error {
	v, err := ParsePin(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// PinConfig routes a signal to a pin.
type PinConfig struct {
	Pin      Pin  `json:"pin"`
	Inverted bool `json:"inverted"`
}

// IntStatus is a set of general purpose interrupt sources.
type IntStatus uint32

const (
	IntArmError IntStatus = 1 << iota
	IntArmForce
	IntArmSystemError
	IntStreamProcessorError
	IntTx1PaProtection
	IntTx2PaProtection
	IntClkPllLockLost
	IntRfPll1LockLost
	IntRfPll2LockLost
	IntHopTableError
	IntMailboxError
)

// IntAll has every defined interrupt source set.
const IntAll = IntMailboxError<<1 - 1

var intNames = []string{
	"ARM_ERROR", "ARM_FORCE", "ARM_SYSTEM_ERROR", "STREAM_PROCESSOR_ERROR",
	"TX1_PA_PROTECTION", "TX2_PA_PROTECTION", "CLK_PLL_LOCK_LOST",
	"RF_PLL1_LOCK_LOST", "RF_PLL2_LOCK_LOST", "HOP_TABLE_ERROR", "MAILBOX_ERROR",
}

// Names lists the sources set in s.
func (s IntStatus) Names() []string {
	out := []string{}
	for i, n := range intNames {
		if s&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

func (s IntStatus) String() string {
	if s == 0 {
		return "NONE"
	}
	return strings.Join(s.Names(), "|")
}

// ParseIntStatus builds a status from source names such as "HOP_TABLE_ERROR".
func ParseIntStatus(names []string) (IntStatus, error) {
	var s IntStatus
	for _, n := range names {
		found := false
		for i, known := range intNames {
			if strings.EqualFold(n, known) {
				s |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown interrupt source %q", n)
		}
	}
	return s, nil
}

// DecodeStatus decodes a little-endian interrupt word.
func DecodeStatus(b []byte) (IntStatus, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("interrupt word needs 4 bytes, have %d", len(b))
	}
	return IntStatus(binary.LittleEndian.Uint32(b)), nil
}

// EncodeStatus returns the little-endian interrupt word.
func EncodeStatus(s IntStatus) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(s))
}
