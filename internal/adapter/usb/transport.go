// Package usb implements adapter.Transport over a pair of USB bulk
// endpoints.
//
// Every request is app(1) cmd(1) len(2 LE) payload and every response is
// '@' app cmd len(2 LE) payload. Mailbox frames travel inside AppMailbox
// packets; bulk scopes are reached with peek and poke on AppMemory.
package usb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/mailbox"
)

// Applications and commands understood by the device firmware.
const (
	AppMailbox  uint8 = 0x01
	AppMemory   uint8 = 0x02
	AppRegister uint8 = 0x03

	CmdPost  uint8 = 0x01
	CmdPoke  uint8 = 0x02
	CmdPeek  uint8 = 0x03
	CmdWrite uint8 = 0x04
)

const (
	// ResponseMarker starts every response packet.
	ResponseMarker byte = '@'

	headerSize   = 4
	respHdrSize  = 5
	memHdrSize   = 3
	maxChunk     = 256
	readBufSize  = 512
	maxRecvBytes = 64 * 1024
)

const linkKind = "usb"

// OutEndpoint is the host to device bulk endpoint.
type OutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// InEndpoint is the device to host bulk endpoint.
type InEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// Transport is a USB attached device. Exchanges are serialized and each
// request waits for its response before the next is written.
type Transport struct {
	mu       sync.Mutex
	out      OutEndpoint
	in       InEndpoint
	recv     []byte
	seq      mailbox.Sequence
	timeout  time.Duration
	closers  []func() error
	endpoint string
	log      *zap.Logger
}

var (
	_ adapter.Transport = (*Transport)(nil)
	_ adapter.Closer    = (*Transport)(nil)
	_ adapter.Describer = (*Transport)(nil)
)

// New returns a transport on already opened endpoints.
func New(out OutEndpoint, in InEndpoint, endpoint string, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		out:      out,
		in:       in,
		timeout:  adapter.DefaultExchangeTimeout,
		endpoint: endpoint,
		log:      log.With(zap.String("link", linkKind), zap.String("endpoint", endpoint)),
	}
}

// Close releases the endpoints and the device.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	t.closers = nil
	return errors.Join(errs...)
}

// SetTimeout bounds each request and response exchange. Non-positive
// values keep the current limit.
func (t *Transport) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Describe implements adapter.Describer.
func (t *Transport) Describe() adapter.Info {
	return adapter.Info{Kind: linkKind, Endpoint: t.endpoint}
}

// SendMailbox implements adapter.Transport.
func (t *Transport) SendMailbox(ctx context.Context, payload []byte, prio adapter.Priority) error {
	seq := t.seq.Next()
	frame, err := mailbox.Encode(seq, prio, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	resp, err := t.exchange(ctx, AppMailbox, CmdPost, frame)
	if err != nil {
		return err
	}
	ack, err := mailbox.DecodeAck(resp)
	if err != nil {
		return adapter.NormalizeLink(err, "ack", linkKind)
	}
	return ack.Err(seq)
}

// BulkWrite implements adapter.Transport.
func (t *Transport) BulkWrite(ctx context.Context, scope adapter.Scope, data []byte) error {
	if err := adapter.CheckScope(scope, len(data)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for off := 0; off < len(data); off += maxChunk {
		chunk := data[off:min(off+maxChunk, len(data))]
		req := make([]byte, memHdrSize, memHdrSize+len(chunk))
		req[0] = byte(scope)
		binary.LittleEndian.PutUint16(req[1:3], uint16(off))
		req = append(req, chunk...)
		if err := t.status(ctx, AppMemory, CmdPoke, req); err != nil {
			return err
		}
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

	out := make([]byte, 0, capacity)
	for off := 0; off < capacity; off += maxChunk {
		n := min(maxChunk, capacity-off)
		req := make([]byte, memHdrSize+2)
		req[0] = byte(scope)
		binary.LittleEndian.PutUint16(req[1:3], uint16(off))
		binary.LittleEndian.PutUint16(req[3:5], uint16(n))
		resp, err := t.exchange(ctx, AppMemory, CmdPeek, req)
		if err != nil {
			return nil, err
		}
		if len(resp) != n {
			return nil, adapter.NormalizeLink(fmt.Errorf("peek returned %d of %d bytes", len(resp), n), "peek", linkKind)
		}
		out = append(out, resp...)
	}
	return out, nil
}

// WriteRegister implements adapter.Transport.
func (t *Transport) WriteRegister(ctx context.Context, reg adapter.Register, value uint16) error {
	req := binary.LittleEndian.AppendUint16(nil, uint16(reg))
	req = binary.LittleEndian.AppendUint16(req, value)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status(ctx, AppRegister, CmdWrite, req)
}

// status runs an exchange whose response is a single status byte.
func (t *Transport) status(ctx context.Context, app, cmd uint8, payload []byte) error {
	resp, err := t.exchange(ctx, app, cmd, payload)
	if err != nil {
		return err
	}
	if len(resp) != 1 {
		return adapter.NormalizeLink(fmt.Errorf("status response of %d bytes", len(resp)), cmd, linkKind)
	}
	return adapter.Status(resp[0]).Err()
}

// exchange writes one request packet and reads until the matching response
// arrives. Callers hold t.mu.
func (t *Transport) exchange(ctx context.Context, app, cmd uint8, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, adapter.NormalizeLink(err, nil, linkKind)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	packet := make([]byte, headerSize, headerSize+len(payload))
	packet[0] = app
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(payload)))
	packet = append(packet, payload...)

	n, err := t.out.WriteContext(ctx, packet)
	if err != nil {
		return nil, t.fail("write", err)
	}
	if n != len(packet) {
		return nil, t.fail("write", fmt.Errorf("short write: wrote %d of %d bytes", n, len(packet)))
	}
	return t.recvResponse(ctx, app, cmd)
}

func (t *Transport) recvResponse(ctx context.Context, app, cmd uint8) ([]byte, error) {
	buf := make([]byte, readBufSize)
	for {
		if resp, ok := t.parseResponse(app, cmd); ok {
			return resp, nil
		}
		if len(t.recv) > maxRecvBytes {
			t.recv = t.recv[:0]
			return nil, t.fail("read", errors.New("receive buffer overflow"))
		}
		n, err := t.in.ReadContext(ctx, buf)
		if err != nil {
			return nil, t.fail("read", err)
		}
		t.recv = append(t.recv, buf[:n]...)
	}
}

// parseResponse extracts the first complete response for app and cmd from
// the receive buffer. Bytes before a marker and responses for other
// commands are dropped.
func (t *Transport) parseResponse(app, cmd uint8) ([]byte, bool) {
	for {
		i := bytes.IndexByte(t.recv, ResponseMarker)
		if i < 0 {
			t.recv = t.recv[:0]
			return nil, false
		}
		t.recv = t.recv[i:]
		if len(t.recv) < respHdrSize {
			return nil, false
		}
		length := int(binary.LittleEndian.Uint16(t.recv[3:5]))
		total := respHdrSize + length
		if len(t.recv) < total {
			return nil, false
		}
		if t.recv[1] != app || t.recv[2] != cmd {
			t.log.Debug("dropping unexpected response",
				zap.Uint8("app", t.recv[1]), zap.Uint8("cmd", t.recv[2]))
			t.recv = t.recv[total:]
			continue
		}
		resp := append([]byte(nil), t.recv[respHdrSize:total]...)
		t.recv = t.recv[total:]
		return resp, true
	}
}

func (t *Transport) fail(stage string, err error) error {
	err = adapter.NormalizeLink(err, stage, linkKind)
	t.log.Debug("usb exchange failed", zap.String("stage", stage), zap.Error(err))
	return err
}
