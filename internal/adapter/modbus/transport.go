// Package modbus implements adapter.Transport over a Modbus TCP register
// window exposed by the device's control bridge.
//
// Mailbox frames are written to a request window and posted by writing
// their length to a doorbell register; the bridge answers in a two
// register ack window. Bulk scopes are mapped one to one onto contiguous
// holding registers, two bytes per register, and direct device registers
// are holding registers at their own address.
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/mailbox"
)

// Per-request register limits of the Modbus PDU.
const (
	maxWriteRegs = 123
	maxReadRegs  = 125
)

const linkKind = "modbus"

// RegisterMap places the bridge windows in the holding register space.
type RegisterMap struct {
	Doorbell uint16 `yaml:"doorbell"`
	Ack      uint16 `yaml:"ack"`
	Mailbox  uint16 `yaml:"mailbox"`
	Staging  uint16 `yaml:"staging"`
	Readback uint16 `yaml:"readback"`
}

// DefaultRegisterMap is the bridge's factory layout.
func DefaultRegisterMap() RegisterMap {
	return RegisterMap{
		Doorbell: 0x0080,
		Ack:      0x0081,
		Mailbox:  0x0100,
		Staging:  0x1000,
		Readback: 0x1800,
	}
}

// Validate reports overlapping windows.
func (m RegisterMap) Validate() error {
	type window struct {
		name       string
		start, end int
	}
	ws := []window{
		{"doorbell", int(m.Doorbell), int(m.Doorbell) + 1},
		{"ack", int(m.Ack), int(m.Ack) + int(regs(mailbox.AckSize))},
		{"mailbox", int(m.Mailbox), int(m.Mailbox) + int(regs(mailbox.MaxFrameSize))},
		{"staging", int(m.Staging), int(m.Staging) + int(regs(adapter.ScopeSize))},
		{"readback", int(m.Readback), int(m.Readback) + int(regs(adapter.ScopeSize))},
		{"hop trigger", int(adapter.RegHopTrigger), int(adapter.RegHopTrigger) + 1},
	}
	for i, a := range ws {
		if a.end > 0x10000 {
			return fmt.Errorf("modbus: %s window ends past the register space", a.name)
		}
		for _, b := range ws[i+1:] {
			if a.start < b.end && b.start < a.end {
				return fmt.Errorf("modbus: %s window overlaps %s window", a.name, b.name)
			}
		}
	}
	return nil
}

// Config describes a bridge connection.
type Config struct {
	Endpoint     string
	UnitID       uint8
	Timeout      time.Duration
	PollInterval time.Duration
	// MailboxTimeout bounds a whole mailbox exchange, ack polling included.
	MailboxTimeout time.Duration
	Registers      RegisterMap
}

// Transport is a Modbus attached device. Requests are serialized: a
// mailbox exchange spans several Modbus transactions.
type Transport struct {
	mu       sync.Mutex
	client   modbus.Client
	handler  *modbus.TCPClientHandler
	regs     RegisterMap
	poll     time.Duration
	timeout  time.Duration
	seq      mailbox.Sequence
	endpoint string
	log      *zap.Logger
}

var (
	_ adapter.Transport = (*Transport)(nil)
	_ adapter.Closer    = (*Transport)(nil)
	_ adapter.Describer = (*Transport)(nil)
)

// Dial connects to the bridge at cfg.Endpoint.
func Dial(cfg Config, log *zap.Logger) (*Transport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	h.SlaveId = cfg.UnitID
	if err := h.Connect(); err != nil {
		return nil, adapter.NormalizeLink(err, cfg.Endpoint, linkKind)
	}
	t := New(modbus.NewClient(h), cfg, log)
	t.handler = h
	return t, nil
}

// New returns a transport on an existing client.
func New(client modbus.Client, cfg Config, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Registers == (RegisterMap{}) {
		cfg.Registers = DefaultRegisterMap()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.MailboxTimeout <= 0 {
		cfg.MailboxTimeout = adapter.DefaultExchangeTimeout
	}
	return &Transport{
		client:   client,
		regs:     cfg.Registers,
		poll:     cfg.PollInterval,
		timeout:  cfg.MailboxTimeout,
		endpoint: cfg.Endpoint,
		log:      log.With(zap.String("link", linkKind), zap.String("endpoint", cfg.Endpoint)),
	}
}

// Close releases the TCP connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return nil
	}
	return t.handler.Close()
}

// Describe implements adapter.Describer.
func (t *Transport) Describe() adapter.Info {
	return adapter.Info{Kind: linkKind, Endpoint: t.endpoint}
}

// SendMailbox writes the request frame, rings the doorbell and polls the
// ack window until the bridge reports completion or the mailbox timeout
// expires.
func (t *Transport) SendMailbox(ctx context.Context, payload []byte, prio adapter.Priority) error {
	seq := t.seq.Next()
	frame, err := mailbox.Encode(seq, prio, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return adapter.NormalizeLink(err, nil, linkKind)
	}
	if err := t.writeBytes(t.regs.Mailbox, frame); err != nil {
		return t.fail("mailbox write", err)
	}
	if _, err := t.client.WriteSingleRegister(t.regs.Doorbell, uint16(len(frame))); err != nil {
		return t.fail("doorbell", err)
	}

	for {
		b, err := t.client.ReadHoldingRegisters(t.regs.Ack, regs(mailbox.AckSize))
		if err != nil {
			return t.fail("ack read", err)
		}
		ack, err := mailbox.DecodeAck(b)
		if err != nil {
			return t.fail("ack decode", err)
		}
		if ack.Seq == seq && ack.Status != adapter.StatusPending {
			return ack.Err(seq)
		}
		select {
		case <-ctx.Done():
			t.log.Warn("mailbox ack not received", zap.Uint8("seq", seq), zap.Error(ctx.Err()))
			return adapter.NormalizeLink(ctx.Err(), seq, linkKind)
		case <-time.After(t.poll):
		}
	}
}

// BulkWrite implements adapter.Transport.
func (t *Transport) BulkWrite(ctx context.Context, scope adapter.Scope, data []byte) error {
	if err := adapter.CheckScope(scope, len(data)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return adapter.NormalizeLink(err, nil, linkKind)
	}
	if err := t.writeBytes(t.base(scope), data); err != nil {
		return t.fail("bulk write", err)
	}
	return nil
}

// BulkRead implements adapter.Transport.
func (t *Transport) BulkRead(ctx context.Context, scope adapter.Scope, capacity int) ([]byte, error) {
	if err := adapter.CheckScope(scope, capacity); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, adapter.NormalizeLink(err, nil, linkKind)
	}

	out := make([]byte, 0, regs(capacity)*2)
	addr := t.base(scope)
	for left := regs(capacity); left > 0; {
		n := min(left, maxReadRegs)
		b, err := t.client.ReadHoldingRegisters(addr, n)
		if err != nil {
			return nil, t.fail("bulk read", err)
		}
		out = append(out, b...)
		addr += n
		left -= n
	}
	if len(out) < capacity {
		return nil, t.fail("bulk read", fmt.Errorf("short read: %d of %d bytes", len(out), capacity))
	}
	return out[:capacity], nil
}

// WriteRegister implements adapter.Transport.
func (t *Transport) WriteRegister(ctx context.Context, reg adapter.Register, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return adapter.NormalizeLink(err, nil, linkKind)
	}
	if _, err := t.client.WriteSingleRegister(uint16(reg), value); err != nil {
		return t.fail("register write", err)
	}
	return nil
}

// writeBytes writes data starting at addr, padded to whole registers and
// split into PDU sized chunks.
func (t *Transport) writeBytes(addr uint16, data []byte) error {
	if len(data)%2 != 0 {
		data = append(append([]byte(nil), data...), 0)
	}
	for len(data) > 0 {
		n := min(uint16(len(data)/2), maxWriteRegs)
		if _, err := t.client.WriteMultipleRegisters(addr, n, data[:n*2]); err != nil {
			return err
		}
		addr += n
		data = data[n*2:]
	}
	return nil
}

func (t *Transport) base(scope adapter.Scope) uint16 {
	if scope == adapter.ScopeStaging {
		return t.regs.Staging
	}
	return t.regs.Readback
}

func (t *Transport) fail(stage string, err error) error {
	err = adapter.NormalizeLink(err, stage, linkKind)
	t.log.Debug("modbus exchange failed", zap.String("stage", stage), zap.Error(err))
	return err
}

// regs returns the number of registers holding n bytes.
func regs(n int) uint16 { return uint16((n + 1) / 2) }
