package adapter

import (
	"context"
	"fmt"
	"time"
)

// Priority selects the mailbox queue a command is posted to.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Scope names a region of device processor memory reachable by bulk transfers.
type Scope uint8

const (
	// ScopeStaging is written by the host and ingested by the device on a
	// mailbox trigger.
	ScopeStaging Scope = iota + 1
	// ScopeReadback is filled by the device in response to an inspect command.
	ScopeReadback
)

func (s Scope) String() string {
	switch s {
	case ScopeStaging:
		return "staging"
	case ScopeReadback:
		return "readback"
	default:
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
}

// ScopeSize is the byte capacity of every bulk scope.
const ScopeSize = 2048

// MaxMailboxPayload is the largest payload, opcode included, a mailbox
// command can carry.
const MaxMailboxPayload = 64

// DefaultExchangeTimeout bounds one link exchange when the transport is
// not given its own limit. Caller deadlines shorter than this still apply.
const DefaultExchangeTimeout = 5 * time.Second

// Register is a directly addressable device control register.
type Register uint16

// RegHopTrigger advances the hop sequence by one frame when written with 1.
const RegHopTrigger Register = 0x0040

// Transport moves control messages and bulk data to the device processor.
// Implementations serialize access to the underlying link and own the
// timeout policy: every call returns within the transport's exchange
// timeout even when ctx has no deadline. They never retry on their own.
type Transport interface {
	// SendMailbox posts a command payload. The first payload byte is the
	// opcode. The call returns once the device acknowledged the command.
	SendMailbox(ctx context.Context, payload []byte, prio Priority) error

	// BulkWrite copies data to the start of scope.
	BulkWrite(ctx context.Context, scope Scope, data []byte) error

	// BulkRead returns up to capacity bytes from the start of scope.
	BulkRead(ctx context.Context, scope Scope, capacity int) ([]byte, error)

	// WriteRegister performs a direct register write, bypassing the mailbox.
	WriteRegister(ctx context.Context, reg Register, value uint16) error
}

// Closer is implemented by transports holding an open link.
type Closer interface {
	Close() error
}

// Info describes a transport for logs and health output.
type Info struct {
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
}

// Describer is implemented by transports that can describe their link.
type Describer interface {
	Describe() Info
}

// CheckScope validates a bulk transfer against the scope layout.
func CheckScope(scope Scope, n int) error {
	if scope != ScopeStaging && scope != ScopeReadback {
		return fmt.Errorf("%w: unknown %v", ErrInvalidParam, scope)
	}
	if n < 0 || n > ScopeSize {
		return fmt.Errorf("%w: %d bytes exceeds %v size %d", ErrInvalidParam, n, scope, ScopeSize)
	}
	return nil
}
