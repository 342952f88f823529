package mailbox

import (
	"errors"
	"sync/atomic"

	"github.com/radio-control/fhc/internal/adapter"
)

// Executor runs decoded mailbox commands, as the device processor does.
type Executor interface {
	Exec(payload []byte, prio adapter.Priority) adapter.Status
}

// Serve decodes a request frame, runs it on exec and returns the ack frame.
// A frame that fails its CRC is answered with StatusChecksum and never
// reaches exec.
func Serve(exec Executor, frame []byte) []byte {
	req, err := Decode(frame)
	if err != nil {
		var seq uint8
		if len(frame) > 0 {
			seq = frame[0]
		}
		if errors.Is(err, adapter.ErrChecksum) {
			return EncodeAck(seq, adapter.StatusChecksum)
		}
		return EncodeAck(seq, adapter.StatusInvalidParam)
	}
	return EncodeAck(req.Seq, exec.Exec(req.Payload, req.Priority))
}

// Sequence hands out request sequence numbers.
type Sequence struct{ n atomic.Uint32 }

// Next returns the next sequence number.
func (s *Sequence) Next() uint8 {
	return uint8(s.n.Add(1)) & seqMask
}
