package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/radio-control/fhc/internal/adapter"
)

func TestRequestEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.Uint8Range(0, seqMask).Draw(t, "seq")
		prio := rapid.SampledFrom([]adapter.Priority{adapter.PriorityNormal, adapter.PriorityHigh}).Draw(t, "prio")
		payload := rapid.SliceOfN(rapid.Byte(), 1, adapter.MaxMailboxPayload).Draw(t, "payload")

		b, err := Encode(seq, prio, payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		req, err := Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Seq != seq || req.Priority != prio || string(req.Payload) != string(payload) {
			t.Fatalf("got %+v", req)
		}
	})
}

func TestCorruptionDetected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, adapter.MaxMailboxPayload).Draw(t, "payload")
		b, err := Encode(1, adapter.PriorityNormal, payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		// Length byte excluded: changing it moves the CRC window.
		i := rapid.SampledFrom(append([]int{0}, indexRange(2, len(b))...)).Draw(t, "index")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		b[i] ^= 1 << bit
		if _, err := Decode(b); err == nil {
			t.Fatalf("flipped bit %d of byte %d went undetected", bit, i)
		}
	})
}

func indexRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func TestEncodeRejectsPayloadSize(t *testing.T) {
	_, err := Encode(0, adapter.PriorityNormal, nil)
	assert.ErrorIs(t, err, adapter.ErrInvalidParam)
	_, err = Encode(0, adapter.PriorityNormal, make([]byte, adapter.MaxMailboxPayload+1))
	assert.ErrorIs(t, err, adapter.ErrInvalidParam)
}

func TestDecodeIgnoresPadding(t *testing.T) {
	b, err := Encode(5, adapter.PriorityHigh, []byte{0x22, 0x01})
	require.NoError(t, err)
	req, err := Decode(append(b, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x22, 0x01}, req.Payload)
}

func TestAck(t *testing.T) {
	b := EncodeAck(9, adapter.StatusBusy)
	require.Len(t, b, AckSize)
	ack, err := DecodeAck(b)
	require.NoError(t, err)
	assert.ErrorIs(t, ack.Err(9), adapter.ErrBusy)
	assert.ErrorIs(t, ack.Err(10), ErrFrame)

	ok, err := DecodeAck(EncodeAck(3, adapter.StatusOK))
	require.NoError(t, err)
	assert.NoError(t, ok.Err(3))

	b[1] ^= 0xFF
	_, err = DecodeAck(b)
	assert.ErrorIs(t, err, adapter.ErrChecksum)
}

func TestChecksumKnownValue(t *testing.T) {
	// CRC-16/MCRF4XX check value.
	assert.Equal(t, uint16(0x6F91), Checksum([]byte("123456789")))
}

type recorder struct {
	payload []byte
	prio    adapter.Priority
}

func (r *recorder) Exec(payload []byte, prio adapter.Priority) adapter.Status {
	r.payload, r.prio = payload, prio
	return adapter.StatusOK
}

func TestServe(t *testing.T) {
	rec := &recorder{}
	req, err := Encode(7, adapter.PriorityHigh, []byte{0x20, 0x00})
	require.NoError(t, err)

	ack, err := DecodeAck(Serve(rec, req))
	require.NoError(t, err)
	assert.NoError(t, ack.Err(7))
	assert.Equal(t, []byte{0x20, 0x00}, rec.payload)
	assert.Equal(t, adapter.PriorityHigh, rec.prio)

	req[2] ^= 0x01
	rec.payload = nil
	ack, err = DecodeAck(Serve(rec, req))
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusChecksum, ack.Status)
	assert.Nil(t, rec.payload)
}

func TestSequenceWraps(t *testing.T) {
	var s Sequence
	seen := map[uint8]bool{}
	for i := 0; i < 300; i++ {
		n := s.Next()
		assert.LessOrEqual(t, n, uint8(seqMask))
		seen[n] = true
	}
	assert.Len(t, seen, seqMask+1)
}
