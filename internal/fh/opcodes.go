package fh

import "github.com/radio-control/fhc/internal/adapter"

// Mailbox opcodes understood by the device processor's hopping handler.
const (
	OpConfigure     byte = 0x10
	OpConfigInspect byte = 0x11
	OpTableLoad     byte = 0x20
	OpTableInspect  byte = 0x21
	OpTableSet      byte = 0x22
	OpTableGet      byte = 0x23
	OpFrameInspect  byte = 0x24
)

// command pairs a mailbox payload with the queue it must be posted to.
type command struct {
	payload []byte
	prio    adapter.Priority
}

func cmdConfigure(cfg Config) command {
	return command{payload: append([]byte{OpConfigure}, EncodeConfig(cfg)...), prio: adapter.PriorityNormal}
}

func cmdConfigInspect() command {
	return command{payload: []byte{OpConfigInspect}, prio: adapter.PriorityNormal}
}

func cmdTableLoad(t TableID) command {
	return command{payload: []byte{OpTableLoad, t.Wire()}, prio: adapter.PriorityHigh}
}

func cmdTableInspect(t TableID) command {
	return command{payload: []byte{OpTableInspect, t.Wire()}, prio: adapter.PriorityNormal}
}

func cmdTableSet(t TableID) command {
	return command{payload: []byte{OpTableSet, t.Wire()}, prio: adapter.PriorityHigh}
}

func cmdTableGet() command {
	return command{payload: []byte{OpTableGet}, prio: adapter.PriorityNormal}
}

func cmdFrameInspect(f FrameIndex) command {
	return command{payload: []byte{OpFrameInspect, f.Wire()}, prio: adapter.PriorityNormal}
}
