package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownChannel is returned for channel identifiers outside the known set.
var ErrUnknownChannel = errors.New("unknown channel")

// ID identifies one RF channel.
type ID uint8

const (
	Rx1 ID = iota + 1
	Rx2
	Tx1
	Tx2
)

// All lists every channel in mask bit order.
var All = []ID{Rx1, Rx2, Tx1, Tx2}

func (id ID) String() string {
	switch id {
	case Rx1:
		return "rx1"
	case Rx2:
		return "rx2"
	case Tx1:
		return "tx1"
	case Tx2:
		return "tx2"
	default:
		return fmt.Sprintf("channel(%d)", uint8(id))
	}
}

// Valid reports whether id names a known channel.
func (id ID) Valid() bool {
	return id >= Rx1 && id <= Tx2
}

// Bit returns the channel's bit in a channel mask.
func (id ID) Bit() uint8 {
	if !id.Valid() {
		return 0
	}
	return 1 << (id - 1)
}

// ParseID parses "rx1", "RX2", "tx1" and so on.
func ParseID(s string) (ID, error) {
	for _, id := range All {
		if strings.EqualFold(s, id.String()) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, uint8(id))
	}
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// State is the operating state of a channel.
type State uint8

const (
	Standby State = iota
	Calibrated
	Primed
	RFEnabled
)

var stateNames = map[State]string{
	Standby:    "STANDBY",
	Calibrated: "CALIBRATED",
	Primed:     "PRIMED",
	RFEnabled:  "RF_ENABLED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATE_%d", uint8(s))
}

// ParseState parses a state name such as "PRIMED" or "rf_enabled".
func ParseState(s string) (State, error) {
	for st, n := range stateNames {
		if strings.EqualFold(s, n) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown channel state %q", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Channel is the reported view of one channel.
type Channel struct {
	ID        ID        `json:"id"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChannelList is the response format for GET /channels.
type ChannelList struct {
	Items []Channel `json:"items"`
}

// Manager holds the last reported state of every channel. All channels
// start in STANDBY.
type Manager struct {
	mu       sync.RWMutex
	channels map[ID]*Channel
	now      func() time.Time
}

// NewManager creates a manager with all channels in STANDBY.
func NewManager() *Manager {
	m := &Manager{
		channels: make(map[ID]*Channel, len(All)),
		now:      time.Now,
	}
	for _, id := range All {
		m.channels[id] = &Channel{ID: id, State: Standby, UpdatedAt: m.now()}
	}
	return m
}

// ChannelState returns the current state of id.
func (m *Manager) ChannelState(ctx context.Context, id ID) (State, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownChannel, id)
	}
	return ch.State, nil
}

// SetState records a new state for id and returns the previous one.
func (m *Manager) SetState(id ID, state State) (State, error) {
	if _, ok := stateNames[state]; !ok {
		return 0, fmt.Errorf("invalid channel state %d", uint8(state))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownChannel, id)
	}
	prev := ch.State
	ch.State = state
	ch.UpdatedAt = m.now()
	return prev, nil
}

// Get returns a copy of one channel.
func (m *Manager) Get(id ID) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %v", ErrUnknownChannel, id)
	}
	return *ch, nil
}

// List returns every channel in mask bit order.
func (m *Manager) List() *ChannelList {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Channel, 0, len(All))
	for _, id := range All {
		items = append(items, *m.channels[id])
	}
	return &ChannelList{Items: items}
}
