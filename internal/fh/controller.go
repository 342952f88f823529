package fh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/channel"
)

// DefaultTriggerTimeout bounds the mailbox trigger that completes a transfer
// once its bulk phase has been written.
const DefaultTriggerTimeout = 2 * time.Second

// ChannelStates reports the state of RF channels.
type ChannelStates interface {
	ChannelState(ctx context.Context, id channel.ID) (channel.State, error)
}

type standbyChannels struct{}

func (standbyChannels) ChannelState(context.Context, channel.ID) (channel.State, error) {
	return channel.Standby, nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithTriggerTimeout sets the bound on the second phase of a transfer.
func WithTriggerTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.triggerTimeout = d
		}
	}
}

// WithClock replaces time.Now for transfer timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the host-side control surface of the hopping subsystem.
// Every operation holds the controller lock, so the two phases of a
// transfer never interleave with another command.
type Controller struct {
	mu             sync.Mutex
	transport      adapter.Transport
	channels       ChannelStates
	log            *zap.Logger
	now            func() time.Time
	triggerTimeout time.Duration

	applied   *Config
	transfers map[TableID]*transfer
}

// New returns a controller driving transport and reading channel state
// from channels. A nil channels reports every channel in STANDBY, so
// Configure is allowed and Hop never fires.
func New(transport adapter.Transport, channels ChannelStates, opts ...Option) *Controller {
	if channels == nil {
		channels = standbyChannels{}
	}
	c := &Controller{
		transport:      transport,
		channels:       channels,
		log:            zap.NewNop(),
		now:            time.Now,
		triggerTimeout: DefaultTriggerTimeout,
		transfers:      make(map[TableID]*transfer, len(Tables)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, t := range Tables {
		c.transfers[t] = &transfer{table: t, at: c.now()}
	}
	return c
}

// Configure replaces the device hopping configuration. Every channel that
// hops under the current or the new configuration must be in STANDBY.
func (c *Controller) Configure(ctx context.Context, cfg Config) error {
	const op = "configure"
	if err := cfg.Validate(); err != nil {
		return wrap(op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mask := cfg.Channels
	if c.applied != nil {
		mask |= c.applied.Channels
	}
	for _, id := range mask.IDs() {
		st, err := c.channels.ChannelState(ctx, id)
		if err != nil {
			return wrap(op, fmt.Errorf("%w: %v: %v", ErrChannelState, id, err))
		}
		if st != channel.Standby {
			return wrap(op, fmt.Errorf("%w: %v is %v, need %v", ErrChannelState, id, st, channel.Standby))
		}
	}

	if err := c.send(ctx, cmdConfigure(cfg)); err != nil {
		c.log.Warn("configure rejected", zap.Error(err))
		return wrap(op, err)
	}
	applied := cfg
	c.applied = &applied
	c.log.Info("hop configuration applied",
		zap.Stringer("mode", cfg.Mode),
		zap.Uint8("channels", uint8(cfg.Channels)))
	return nil
}

// Inspect returns the configuration currently applied on the device.
func (c *Controller) Inspect(ctx context.Context) (Config, error) {
	const op = "inspect"
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmdConfigInspect()); err != nil {
		return Config{}, wrap(op, err)
	}
	b, err := c.read(ctx, ConfigSize)
	if err != nil {
		return Config{}, wrap(op, err)
	}
	cfg, err := DecodeConfig(b)
	if err != nil {
		return Config{}, wrap(op, err)
	}
	applied := cfg
	c.applied = &applied
	return cfg, nil
}

// Applied returns the last configuration applied or inspected through c.
func (c *Controller) Applied() (Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied == nil {
		return Config{}, false
	}
	return *c.applied, true
}

// ConfigureTable loads frames into table id. The frames are bulk written to
// the staging scope and then ingested by a high-priority mailbox trigger.
// The table is only committed when the trigger succeeds. Once the bulk
// phase has started the trigger is sent even if ctx is cancelled.
func (c *Controller) ConfigureTable(ctx context.Context, id TableID, frames []HopFrame) error {
	const op = "table configure"
	if !id.Valid() {
		return wrap(op, ErrInvalidSelector)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ValidateTable(frames, c.applied); err != nil {
		return wrap(op, err)
	}

	tr := c.transfers[id]
	if err := tr.stage(len(frames), c.now()); err != nil {
		return wrap(op, fmt.Errorf("%w: %v", adapter.ErrBusy, err))
	}

	if err := c.transport.BulkWrite(ctx, adapter.ScopeStaging, EncodeTable(frames)); err != nil {
		err = adapter.Normalize(err, nil)
		tr.fail(err, c.now())
		c.log.Warn("table bulk write failed", zap.Stringer("table", id), zap.Error(err))
		return wrap(op, err)
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.triggerTimeout)
	defer cancel()
	if err := c.send(tctx, cmdTableLoad(id)); err != nil {
		tr.fail(err, c.now())
		c.log.Warn("table trigger failed, staged frames not committed",
			zap.Stringer("table", id), zap.Int("frames", len(frames)), zap.Error(err))
		return wrap(op, err)
	}
	tr.commit(c.now())
	c.log.Debug("table committed", zap.Stringer("table", id), zap.Int("frames", len(frames)))
	return nil
}

// InspectTable reads table id back into dst and returns the number of
// frames written. At most len(dst) frames are written even when the device
// table holds more.
func (c *Controller) InspectTable(ctx context.Context, id TableID, dst []HopFrame) (int, error) {
	const op = "table inspect"
	if !id.Valid() {
		return 0, wrap(op, ErrInvalidSelector)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmdTableInspect(id)); err != nil {
		return 0, wrap(op, err)
	}
	want := min(len(dst), MaxTableFrames)
	b, err := c.read(ctx, TableHeaderSize+want*FrameSize)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := DecodeTableInto(b, dst[:want])
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// Table returns a copy of every frame in table id.
func (c *Controller) Table(ctx context.Context, id TableID) ([]HopFrame, error) {
	dst := make([]HopFrame, MaxTableFrames)
	n, err := c.InspectTable(ctx, id, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Transfer reports the state of the last transfer into table id.
func (c *Controller) Transfer(id TableID) (Transfer, error) {
	if !id.Valid() {
		return Transfer{}, wrap("transfer", ErrInvalidSelector)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers[id].snapshot(), nil
}

// SetActiveTable selects the table used from the next hop edge. Selecting
// the table that is already active succeeds without effect.
func (c *Controller) SetActiveTable(ctx context.Context, id TableID) error {
	const op = "table set"
	if !id.Valid() {
		return wrap(op, ErrInvalidSelector)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmdTableSet(id)); err != nil {
		return wrap(op, err)
	}
	c.log.Debug("active table selected", zap.Stringer("table", id))
	return nil
}

// ActiveTable returns the table currently selected for hopping.
func (c *Controller) ActiveTable(ctx context.Context) (TableID, error) {
	const op = "table get"
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmdTableGet()); err != nil {
		return TableID{}, wrap(op, err)
	}
	b, err := c.read(ctx, 1)
	if err != nil {
		return TableID{}, wrap(op, err)
	}
	if len(b) < 1 {
		return TableID{}, wrap(op, fmt.Errorf("%w: empty table selection", ErrMalformed))
	}
	id, err := TableFromWire(b[0])
	if err != nil {
		return TableID{}, wrap(op, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return id, nil
}

// FrameInfo returns a snapshot of one slot of the lookahead window. The
// device keeps advancing the window, so consecutive calls may observe
// different hop counts.
func (c *Controller) FrameInfo(ctx context.Context, idx FrameIndex) (HopFrame, error) {
	const op = "frame inspect"
	if !idx.Valid() {
		return HopFrame{}, wrap(op, ErrInvalidSelector)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, cmdFrameInspect(idx)); err != nil {
		return HopFrame{}, wrap(op, err)
	}
	b, err := c.read(ctx, FrameSize)
	if err != nil {
		return HopFrame{}, wrap(op, err)
	}
	f, err := DecodeFrame(b)
	if err != nil {
		return HopFrame{}, wrap(op, err)
	}
	return f, nil
}

// Hop triggers an immediate hop with a direct register write.
//
// Unlike every other operation, Hop does not report an unmet precondition:
// when no hopping channel is PRIMED or RF_ENABLED it returns nil (NoAction)
// and the device is not touched. Callers that need to know whether a hop
// was issued use TryHop.
//
// Hop takes the controller lock like every other operation, so it waits
// for an in-flight table transfer to commit or fail, at most the trigger
// timeout after the bulk phase. A hop never lands between the two phases.
func (c *Controller) Hop(ctx context.Context) error {
	_, err := c.TryHop(ctx)
	return err
}

// TryHop is Hop that also reports whether the trigger was written.
func (c *Controller) TryHop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hopReady(ctx) {
		c.log.Debug("hop ignored, no hopping channel primed")
		return false, nil
	}
	if err := c.transport.WriteRegister(ctx, adapter.RegHopTrigger, 1); err != nil {
		return false, wrap("hop", adapter.Normalize(err, nil))
	}
	return true, nil
}

func (c *Controller) hopReady(ctx context.Context) bool {
	mask := MaskOfAll()
	if c.applied != nil {
		mask = c.applied.Channels
	}
	for _, id := range mask.IDs() {
		st, err := c.channels.ChannelState(ctx, id)
		if err != nil {
			continue
		}
		if st == channel.Primed || st == channel.RFEnabled {
			return true
		}
	}
	return false
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	return adapter.Normalize(c.transport.SendMailbox(ctx, cmd.payload, cmd.prio), nil)
}

func (c *Controller) read(ctx context.Context, n int) ([]byte, error) {
	b, err := c.transport.BulkRead(ctx, adapter.ScopeReadback, n)
	if err != nil {
		return nil, adapter.Normalize(err, nil)
	}
	return b, nil
}
