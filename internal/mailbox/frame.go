// Package mailbox frames mailbox commands for links that carry them as raw
// bytes.
//
// A request frame is
//
//	[0]       header: bit 7 set for high priority, bits 0-6 sequence
//	[1]       payload length n, 1..adapter.MaxMailboxPayload
//	[2:2+n]   payload, opcode first
//	[2+n:4+n] CRC-16/MCRF4XX over bytes [0:2+n], little endian
//
// and the device answers with a four byte ack: sequence, status and the CRC
// of those two bytes.
package mailbox

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"

	"github.com/radio-control/fhc/internal/adapter"
)

const (
	headerSize = 2
	crcSize    = 2

	// AckSize is the length of an ack frame.
	AckSize = 4
	// MaxFrameSize is the length of the largest request frame.
	MaxFrameSize = headerSize + adapter.MaxMailboxPayload + crcSize

	prioBit = 0x80
	seqMask = 0x7F
)

var crcTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// ErrFrame reports a frame that cannot be parsed.
var ErrFrame = errors.New("mailbox: malformed frame")

// Checksum returns the CRC-16/MCRF4XX of b.
func Checksum(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// Request is a decoded request frame.
type Request struct {
	Seq      uint8
	Priority adapter.Priority
	Payload  []byte
}

// Encode builds the request frame for payload.
func Encode(seq uint8, prio adapter.Priority, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > adapter.MaxMailboxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", adapter.ErrInvalidParam, len(payload))
	}
	hdr := seq & seqMask
	if prio == adapter.PriorityHigh {
		hdr |= prioBit
	}
	b := make([]byte, 0, headerSize+len(payload)+crcSize)
	b = append(b, hdr, byte(len(payload)))
	b = append(b, payload...)
	return binary.LittleEndian.AppendUint16(b, Checksum(b)), nil
}

// Decode parses a request frame. Trailing bytes after the CRC are ignored so
// that frames read back from padded register windows decode cleanly.
func Decode(b []byte) (Request, error) {
	if len(b) < headerSize+1+crcSize {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrFrame, len(b))
	}
	n := int(b[1])
	if n == 0 || n > adapter.MaxMailboxPayload || len(b) < headerSize+n+crcSize {
		return Request{}, fmt.Errorf("%w: length %d in %d bytes", ErrFrame, n, len(b))
	}
	body := b[:headerSize+n]
	if got, want := binary.LittleEndian.Uint16(b[headerSize+n:]), Checksum(body); got != want {
		return Request{}, fmt.Errorf("%w: request crc 0x%04x, want 0x%04x", adapter.ErrChecksum, got, want)
	}
	r := Request{
		Seq:     b[0] & seqMask,
		Payload: append([]byte(nil), b[headerSize:headerSize+n]...),
	}
	if b[0]&prioBit != 0 {
		r.Priority = adapter.PriorityHigh
	}
	return r, nil
}

// Ack is a decoded ack frame.
type Ack struct {
	Seq    uint8
	Status adapter.Status
}

// EncodeAck builds the ack frame for a completed request.
func EncodeAck(seq uint8, st adapter.Status) []byte {
	b := []byte{seq & seqMask, byte(st)}
	return binary.LittleEndian.AppendUint16(b, Checksum(b))
}

// DecodeAck parses an ack frame.
func DecodeAck(b []byte) (Ack, error) {
	if len(b) < AckSize {
		return Ack{}, fmt.Errorf("%w: ack of %d bytes", ErrFrame, len(b))
	}
	if got, want := binary.LittleEndian.Uint16(b[2:4]), Checksum(b[:2]); got != want {
		return Ack{}, fmt.Errorf("%w: ack crc 0x%04x, want 0x%04x", adapter.ErrChecksum, got, want)
	}
	return Ack{Seq: b[0] & seqMask, Status: adapter.Status(b[1])}, nil
}

// Err returns the error for a, or nil when the device reported success for
// the expected sequence.
func (a Ack) Err(seq uint8) error {
	if a.Seq != seq&seqMask {
		return fmt.Errorf("%w: ack for sequence %d, sent %d", ErrFrame, a.Seq, seq&seqMask)
	}
	return a.Status.Err()
}
