// Package fake provides a simulated device processor for testing and for
// running the service without hardware.
//
// Device holds the state the real processor owns: the applied hop
// configuration, both hop tables, the active selection, the lookahead
// window position, GPIO routing and the interrupt controller. It implements
// adapter.Transport directly, and its Exec, WriteScope, ReadScope and
// WriteReg methods can back link-level emulators.
package fake

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
)

// CallKind classifies a transport call seen by the device.
type CallKind uint8

const (
	CallMailbox CallKind = iota + 1
	CallBulkWrite
	CallBulkRead
	CallRegister
)

func (k CallKind) String() string {
	switch k {
	case CallMailbox:
		return "mailbox"
	case CallBulkWrite:
		return "bulk-write"
	case CallBulkRead:
		return "bulk-read"
	case CallRegister:
		return "register"
	default:
		return fmt.Sprintf("call(%d)", uint8(k))
	}
}

// Call records one transport call.
type Call struct {
	Kind     CallKind
	Opcode   byte
	Priority adapter.Priority
	Scope    adapter.Scope
	Register adapter.Register
	Bytes    int
}

// Device is a simulated device processor. The zero value is not usable;
// call New.
type Device struct {
	mu sync.Mutex

	staging  []byte
	readback []byte

	config   fh.Config
	tables   map[fh.TableID][]fh.HopFrame
	selected fh.TableID
	live     fh.TableID
	cursor   int
	hops     uint64

	signals map[gpio.Signal]gpio.PinConfig
	intMask gpio.IntStatus
	intStat gpio.IntStatus

	calls []Call

	failMailbox map[byte]adapter.Status
	failWrite   error
	failRead    error
	failReg     error
}

// New returns a device with the default configuration, two empty tables and
// table A selected.
func New() *Device {
	return &Device{
		staging:     make([]byte, adapter.ScopeSize),
		readback:    make([]byte, adapter.ScopeSize),
		config:      fh.DefaultConfig(),
		tables:      map[fh.TableID][]fh.HopFrame{fh.TableA: nil, fh.TableB: nil},
		selected:    fh.TableA,
		live:        fh.TableA,
		signals:     make(map[gpio.Signal]gpio.PinConfig),
		intMask:     gpio.IntAll,
		failMailbox: make(map[byte]adapter.Status),
	}
}

var _ adapter.Transport = (*Device)(nil)

// SendMailbox implements adapter.Transport.
func (d *Device) SendMailbox(ctx context.Context, payload []byte, prio adapter.Priority) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Exec(payload, prio).Err()
}

// BulkWrite implements adapter.Transport.
func (d *Device) BulkWrite(ctx context.Context, scope adapter.Scope, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.WriteScope(scope, data)
}

// BulkRead implements adapter.Transport.
func (d *Device) BulkRead(ctx context.Context, scope adapter.Scope, capacity int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.ReadScope(scope, capacity)
}

// WriteRegister implements adapter.Transport.
func (d *Device) WriteRegister(ctx context.Context, reg adapter.Register, value uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.WriteReg(reg, value)
}

// Describe implements adapter.Describer.
func (d *Device) Describe() adapter.Info {
	return adapter.Info{Kind: "fake", Endpoint: "simulated"}
}

// WriteScope copies data into a memory scope.
func (d *Device) WriteScope(scope adapter.Scope, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, Call{Kind: CallBulkWrite, Scope: scope, Bytes: len(data)})
	if err := d.takeFault(&d.failWrite); err != nil {
		return err
	}
	if err := adapter.CheckScope(scope, len(data)); err != nil {
		return err
	}
	copy(d.scope(scope), data)
	return nil
}

// ReadScope returns a copy of the first n bytes of a memory scope.
func (d *Device) ReadScope(scope adapter.Scope, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, Call{Kind: CallBulkRead, Scope: scope, Bytes: n})
	if err := d.takeFault(&d.failRead); err != nil {
		return nil, err
	}
	if err := adapter.CheckScope(scope, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.scope(scope))
	return out, nil
}

// WriteReg performs a direct register write.
func (d *Device) WriteReg(reg adapter.Register, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, Call{Kind: CallRegister, Register: reg})
	if err := d.takeFault(&d.failReg); err != nil {
		return err
	}
	switch reg {
	case adapter.RegHopTrigger:
		if value&1 != 0 {
			d.hop()
		}
		return nil
	default:
		return fmt.Errorf("%w: register 0x%04x", adapter.ErrInvalidParam, uint16(reg))
	}
}

// Exec runs one mailbox command and returns its completion status.
func (d *Device) Exec(payload []byte, prio adapter.Priority) adapter.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(payload) == 0 {
		d.calls = append(d.calls, Call{Kind: CallMailbox, Priority: prio})
		return adapter.StatusInvalidParam
	}
	op, args := payload[0], payload[1:]
	d.calls = append(d.calls, Call{Kind: CallMailbox, Opcode: op, Priority: prio, Bytes: len(payload)})

	if st, ok := d.failMailbox[op]; ok {
		delete(d.failMailbox, op)
		d.intStat |= gpio.IntMailboxError
		return st
	}
	if len(payload) > adapter.MaxMailboxPayload {
		return adapter.StatusInvalidParam
	}

	switch op {
	case fh.OpConfigure:
		return d.configure(args)
	case fh.OpConfigInspect:
		return d.respond(fh.EncodeConfig(d.config))
	case fh.OpTableLoad:
		return d.loadTable(args)
	case fh.OpTableInspect:
		return d.inspectTable(args)
	case fh.OpTableSet:
		return d.setTable(args)
	case fh.OpTableGet:
		return d.respond([]byte{d.selected.Wire()})
	case fh.OpFrameInspect:
		return d.inspectFrame(args)
	case gpio.OpSignalConfigure:
		return d.routeSignal(args)
	case gpio.OpSignalInspect:
		return d.inspectSignal(args)
	case gpio.OpIntMaskSet:
		if len(args) != 4 {
			return adapter.StatusInvalidParam
		}
		d.intMask = gpio.IntStatus(binary.LittleEndian.Uint32(args))
		return adapter.StatusOK
	case gpio.OpIntMaskGet:
		return d.respond(gpio.EncodeStatus(d.intMask))
	case gpio.OpIntStatusGet:
		return d.respond(gpio.EncodeStatus(d.intStat))
	case gpio.OpIntClear:
		if len(args) != 4 {
			return adapter.StatusInvalidParam
		}
		d.intStat &^= gpio.IntStatus(binary.LittleEndian.Uint32(args))
		return adapter.StatusOK
	default:
		return adapter.StatusInvalidParam
	}
}

func (d *Device) configure(args []byte) adapter.Status {
	cfg, err := fh.DecodeConfig(args)
	if err != nil || cfg.Validate() != nil {
		return adapter.StatusInvalidParam
	}
	d.config = cfg
	return adapter.StatusOK
}

func (d *Device) loadTable(args []byte) adapter.Status {
	if len(args) != 1 {
		return adapter.StatusInvalidParam
	}
	id, err := fh.TableFromWire(args[0])
	if err != nil {
		return adapter.StatusInvalidParam
	}
	frames, err := fh.DecodeTable(d.staging)
	if err != nil {
		return adapter.StatusInvalidParam
	}
	for _, f := range frames {
		if d.config.ValidateFrame(f) != nil {
			return adapter.StatusInvalidParam
		}
	}
	d.tables[id] = frames
	if id == d.live && len(frames) > 0 {
		d.cursor %= len(frames)
	} else if id == d.live {
		d.cursor = 0
	}
	return adapter.StatusOK
}

func (d *Device) inspectTable(args []byte) adapter.Status {
	if len(args) != 1 {
		return adapter.StatusInvalidParam
	}
	id, err := fh.TableFromWire(args[0])
	if err != nil {
		return adapter.StatusInvalidParam
	}
	return d.respond(fh.EncodeTable(d.tables[id]))
}

func (d *Device) setTable(args []byte) adapter.Status {
	if len(args) != 1 {
		return adapter.StatusInvalidParam
	}
	id, err := fh.TableFromWire(args[0])
	if err != nil {
		return adapter.StatusInvalidParam
	}
	d.selected = id
	return adapter.StatusOK
}

func (d *Device) inspectFrame(args []byte) adapter.Status {
	if len(args) != 1 {
		return adapter.StatusInvalidParam
	}
	idx, err := fh.FrameIndexFromWire(args[0])
	if err != nil {
		return adapter.StatusInvalidParam
	}
	f, ok := d.frameAt(idx.Offset())
	if !ok {
		d.intStat |= gpio.IntHopTableError
		return adapter.StatusBadState
	}
	return d.respond(fh.AppendFrame(nil, f))
}

// frameAt returns the frame offset hop edges ahead of the current one. A
// pending table switch takes effect at the next edge and restarts at the
// first frame of the selected table.
func (d *Device) frameAt(offset int) (fh.HopFrame, bool) {
	live := d.tables[d.live]
	if offset == 0 || d.selected == d.live {
		if len(live) == 0 {
			return fh.HopFrame{}, false
		}
		return live[(d.cursor+offset)%len(live)], true
	}
	next := d.tables[d.selected]
	if len(next) == 0 {
		return fh.HopFrame{}, false
	}
	return next[(offset-1)%len(next)], true
}

func (d *Device) hop() {
	if d.selected != d.live {
		d.live = d.selected
		d.cursor = 0
	} else if n := len(d.tables[d.live]); n > 0 {
		d.cursor = (d.cursor + 1) % n
	}
	if len(d.tables[d.live]) == 0 {
		d.intStat |= gpio.IntHopTableError
	}
	d.hops++
}

func (d *Device) routeSignal(args []byte) adapter.Status {
	if len(args) != 3 {
		return adapter.StatusInvalidParam
	}
	sig, pin := gpio.Signal(args[0]), gpio.Pin(args[1])
	if !sig.Valid() || !pin.Valid() {
		return adapter.StatusInvalidParam
	}
	if pin != gpio.PinUnassigned {
		for other, cfg := range d.signals {
			if other != sig && cfg.Pin == pin {
				return adapter.StatusBadState
			}
		}
	}
	d.signals[sig] = gpio.PinConfig{Pin: pin, Inverted: args[2] != 0}
	return adapter.StatusOK
}

func (d *Device) inspectSignal(args []byte) adapter.Status {
	if len(args) != 1 || !gpio.Signal(args[0]).Valid() {
		return adapter.StatusInvalidParam
	}
	cfg := d.signals[gpio.Signal(args[0])]
	var inv byte
	if cfg.Inverted {
		inv = 1
	}
	return d.respond([]byte{byte(cfg.Pin), inv})
}

func (d *Device) respond(b []byte) adapter.Status {
	copy(d.readback, b)
	return adapter.StatusOK
}

func (d *Device) scope(s adapter.Scope) []byte {
	if s == adapter.ScopeStaging {
		return d.staging
	}
	return d.readback
}

func (d *Device) takeFault(slot *error) error {
	err := *slot
	*slot = nil
	return err
}
