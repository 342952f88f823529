package fake

import (
	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
)

// FailMailbox makes the next mailbox command with opcode complete with st.
func (d *Device) FailMailbox(opcode byte, st adapter.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failMailbox[opcode] = st
}

// FailBulkWrite makes the next bulk write return err.
func (d *Device) FailBulkWrite(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite = err
}

// FailBulkRead makes the next bulk read return err.
func (d *Device) FailBulkRead(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRead = err
}

// FailRegister makes the next register write return err.
func (d *Device) FailRegister(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReg = err
}

// RaiseInterrupt latches interrupt sources.
func (d *Device) RaiseInterrupt(s gpio.IntStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intStat |= s
}

// Calls returns the transport calls seen so far.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// ResetCalls forgets recorded calls.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Snapshot is the device-owned hopping state.
type Snapshot struct {
	Config   fh.Config
	TableA   []fh.HopFrame
	TableB   []fh.HopFrame
	Selected fh.TableID
	Live     fh.TableID
	Cursor   int
	Hops     uint64
}

// Snapshot returns a copy of the device-owned hopping state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Config:   d.config,
		TableA:   append([]fh.HopFrame(nil), d.tables[fh.TableA]...),
		TableB:   append([]fh.HopFrame(nil), d.tables[fh.TableB]...),
		Selected: d.selected,
		Live:     d.live,
		Cursor:   d.cursor,
		Hops:     d.hops,
	}
}
