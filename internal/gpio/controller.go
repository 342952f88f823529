package gpio

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/fh"
)

// Report is the outcome of servicing the general purpose interrupt.
type Report struct {
	Status  IntStatus `json:"status"`
	Mask    IntStatus `json:"mask"`
	Active  IntStatus `json:"active"`
	Sources []string  `json:"sources"`
}

// Controller configures signal routing and the interrupt controller.
type Controller struct {
	mu        sync.Mutex
	transport adapter.Transport
	log       *zap.Logger
}

// New returns a GPIO controller on transport. A nil logger disables logging.
func New(transport adapter.Transport, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{transport: transport, log: log}
}

// ConfigureSignal routes sig to cfg.Pin. Allowed in any channel state.
func (c *Controller) ConfigureSignal(ctx context.Context, sig Signal, cfg PinConfig) error {
	const op = "gpio configure"
	if !sig.Valid() {
		return fh.Wrap(op, fmt.Errorf("%w: %v", adapter.ErrInvalidParam, sig))
	}
	if !cfg.Pin.Valid() {
		return fh.Wrap(op, fmt.Errorf("%w: %v", adapter.ErrInvalidParam, cfg.Pin))
	}
	var inv byte
	if cfg.Inverted {
		inv = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, []byte{OpSignalConfigure, byte(sig), byte(cfg.Pin), inv}); err != nil {
		return fh.Wrap(op, err)
	}
	c.log.Debug("signal routed", zap.Stringer("signal", sig), zap.Stringer("pin", cfg.Pin))
	return nil
}

// InspectSignal returns the routing of sig.
func (c *Controller) InspectSignal(ctx context.Context, sig Signal) (PinConfig, error) {
	const op = "gpio inspect"
	if !sig.Valid() {
		return PinConfig{}, fh.Wrap(op, fmt.Errorf("%w: %v", adapter.ErrInvalidParam, sig))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, []byte{OpSignalInspect, byte(sig)}); err != nil {
		return PinConfig{}, fh.Wrap(op, err)
	}
	b, err := c.read(ctx, 2)
	if err != nil {
		return PinConfig{}, fh.Wrap(op, err)
	}
	if len(b) < 2 {
		return PinConfig{}, fh.Wrap(op, fmt.Errorf("%w: pin config needs 2 bytes, have %d", fh.ErrMalformed, len(b)))
	}
	return PinConfig{Pin: Pin(b[0]), Inverted: b[1] != 0}, nil
}

// SetInterruptMask masks the sources set in mask; masked sources do not
// assert the interrupt pin.
func (c *Controller) SetInterruptMask(ctx context.Context, mask IntStatus) error {
	const op = "gpio int mask set"
	if mask&^IntAll != 0 {
		return fh.Wrap(op, fmt.Errorf("%w: mask 0x%08x", adapter.ErrInvalidParam, uint32(mask)))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fh.Wrap(op, c.send(ctx, append([]byte{OpIntMaskSet}, EncodeStatus(mask)...)))
}

// InterruptMask returns the current interrupt mask.
func (c *Controller) InterruptMask(ctx context.Context) (IntStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.word(ctx, OpIntMaskGet)
	return m, fh.Wrap("gpio int mask get", err)
}

// InterruptStatus returns the latched interrupt sources.
func (c *Controller) InterruptStatus(ctx context.Context) (IntStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.word(ctx, OpIntStatusGet)
	return s, fh.Wrap("gpio int status get", err)
}

// HandleInterrupt reads the latched sources, clears the unmasked ones and
// reports what was found. It is called when the host sees the interrupt
// pin assert.
func (c *Controller) HandleInterrupt(ctx context.Context) (Report, error) {
	const op = "gpio int handle"
	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.word(ctx, OpIntStatusGet)
	if err != nil {
		return Report{}, fh.Wrap(op, err)
	}
	mask, err := c.word(ctx, OpIntMaskGet)
	if err != nil {
		return Report{}, fh.Wrap(op, err)
	}
	r := Report{Status: status, Mask: mask, Active: status &^ mask}
	r.Sources = r.Active.Names()
	if r.Active == 0 {
		return r, nil
	}
	if err := c.send(ctx, append([]byte{OpIntClear}, EncodeStatus(r.Active)...)); err != nil {
		return r, fh.Wrap(op, err)
	}
	c.log.Warn("general purpose interrupt serviced", zap.Strings("sources", r.Sources))
	return r, nil
}

func (c *Controller) word(ctx context.Context, opcode byte) (IntStatus, error) {
	if err := c.send(ctx, []byte{opcode}); err != nil {
		return 0, err
	}
	b, err := c.read(ctx, 4)
	if err != nil {
		return 0, err
	}
	s, err := DecodeStatus(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fh.ErrMalformed, err)
	}
	return s, nil
}

func (c *Controller) send(ctx context.Context, payload []byte) error {
	return adapter.Normalize(c.transport.SendMailbox(ctx, payload, adapter.PriorityNormal), nil)
}

func (c *Controller) read(ctx context.Context, n int) ([]byte, error) {
	b, err := c.transport.BulkRead(ctx, adapter.ScopeReadback, n)
	return b, adapter.Normalize(err, nil)
}
