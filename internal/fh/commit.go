package fh

import (
	"fmt"
	"time"
)

// TransferState is the state of a two-phase table transfer.
//
//	Idle -> Staged -> Committed
//	            \---> Failed
//
// A new transfer may start from any state except Staged.
type TransferState uint8

const (
	TransferIdle TransferState = iota
	TransferStaged
	TransferCommitted
	TransferFailed
)

func (s TransferState) String() string {
	switch s {
	case TransferIdle:
		return "IDLE"
	case TransferStaged:
		return "STAGED"
	case TransferCommitted:
		return "COMMITTED"
	case TransferFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("TRANSFER_%d", uint8(s))
	}
}

func (s TransferState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *TransferState) UnmarshalText(b []byte) error {
	for _, st := range []TransferState{TransferIdle, TransferStaged, TransferCommitted, TransferFailed} {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transfer state %q", string(b))
}

// Transfer is a snapshot of the last transfer into one table.
type Transfer struct {
	Table     TableID       `json:"table"`
	State     TransferState `json:"state"`
	Frames    int           `json:"frames"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// transfer tracks one table's staged commit. It is guarded by Controller.mu.
type transfer struct {
	table  TableID
	state  TransferState
	frames int
	err    error
	at     time.Time
}

func (t *transfer) stage(frames int, now time.Time) error {
	if t.state == TransferStaged {
		return fmt.Errorf("table %v: transfer already staged", t.table)
	}
	t.state = TransferStaged
	t.frames = frames
	t.err = nil
	t.at = now
	return nil
}

func (t *transfer) commit(now time.Time) {
	if t.state != TransferStaged {
		panic(fmt.Sprintf("fh: commit of table %v in state %v", t.table, t.state))
	}
	t.state = TransferCommitted
	t.at = now
}

func (t *transfer) fail(err error, now time.Time) {
	if t.state != TransferStaged {
		panic(fmt.Sprintf("fh: fail of table %v in state %v", t.table, t.state))
	}
	t.state = TransferFailed
	t.err = err
	t.at = now
}

func (t *transfer) snapshot() Transfer {
	s := Transfer{Table: t.table, State: t.state, Frames: t.frames, UpdatedAt: t.at}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	return s
}
