package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/channel"
	"github.com/radio-control/fhc/internal/config"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
	"github.com/radio-control/fhc/internal/telemetry"
)

// Orchestrator routes validated API intents to the controllers.
type Orchestrator struct {
	fh       *fh.Controller
	gpio     *gpio.Controller
	channels *channel.Manager

	config    *config.TimingConfig
	telemetry Publisher
	audit     AuditLogger
	log       *zap.Logger
	now       func() time.Time
}

var _ OrchestratorPort = (*Orchestrator)(nil)

// NewOrchestrator returns an orchestrator over the given controllers.
func NewOrchestrator(fhc *fh.Controller, gpioc *gpio.Controller, channels *channel.Manager, timing *config.TimingConfig) *Orchestrator {
	return &Orchestrator{
		fh:       fhc,
		gpio:     gpioc,
		channels: channels,
		config:   timing,
		log:      zap.NewNop(),
		now:      time.Now,
	}
}

// SetTelemetry sets the event publisher.
func (o *Orchestrator) SetTelemetry(p Publisher) { o.telemetry = p }

// SetAuditLogger sets the audit logger.
func (o *Orchestrator) SetAuditLogger(l AuditLogger) { o.audit = l }

// SetLogger sets the logger.
func (o *Orchestrator) SetLogger(l *zap.Logger) { o.log = l }

// Configure applies a hopping configuration.
func (o *Orchestrator) Configure(ctx context.Context, cfg fh.Config) error {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutConfigure)
	defer cancel()

	err := o.fh.Configure(cctx, cfg)
	o.finish(ctx, "fh.configure", "fh", map[string]interface{}{
		"mode":     cfg.Mode.String(),
		"channels": cfg.Channels,
	}, err, start)
	if err != nil {
		return err
	}
	o.emit(telemetry.EventConfig, "fh", map[string]interface{}{"config": cfg})
	return nil
}

// Inspect reads the applied configuration from the device.
func (o *Orchestrator) Inspect(ctx context.Context) (fh.Config, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.fh.Inspect(cctx)
}

// ConfigureTable loads frames into table id.
func (o *Orchestrator) ConfigureTable(ctx context.Context, id fh.TableID, frames []fh.HopFrame) error {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutTable)
	defer cancel()

	err := o.fh.ConfigureTable(cctx, id, frames)
	o.finish(ctx, "fh.table.configure", "table/"+id.String(), map[string]interface{}{
		"frames": len(frames),
	}, err, start)

	tr, _ := o.fh.Transfer(id)
	o.emit(telemetry.EventTable, "fh", map[string]interface{}{
		"table":  id,
		"state":  tr.State,
		"frames": tr.Frames,
		"code":   fh.Action(err).String(),
	})
	return err
}

// Table reads back at most capacity frames of table id. A capacity of zero
// or less reads the whole table.
func (o *Orchestrator) Table(ctx context.Context, id fh.TableID, capacity int) ([]fh.HopFrame, error) {
	if capacity < 0 {
		return nil, fh.Wrap("table inspect", fmt.Errorf("%w: negative capacity %d", adapter.ErrInvalidParam, capacity))
	}
	capacity = min(capacity, fh.MaxTableFrames)
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()

	dst := make([]fh.HopFrame, capacity)
	n, err := o.fh.InspectTable(cctx, id, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Transfer reports the last transfer into table id.
func (o *Orchestrator) Transfer(id fh.TableID) (fh.Transfer, error) {
	return o.fh.Transfer(id)
}

// SetActiveTable selects the table used from the next hop edge.
func (o *Orchestrator) SetActiveTable(ctx context.Context, id fh.TableID) error {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutSelect)
	defer cancel()

	err := o.fh.SetActiveTable(cctx, id)
	o.finish(ctx, "fh.table.set", "table/"+id.String(), nil, err, start)
	if err != nil {
		return err
	}
	o.emit(telemetry.EventActive, "fh", map[string]interface{}{"table": id})
	return nil
}

// ActiveTable returns the table selected for hopping.
func (o *Orchestrator) ActiveTable(ctx context.Context) (fh.TableID, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.fh.ActiveTable(cctx)
}

// FrameInfo returns one slot of the lookahead window.
func (o *Orchestrator) FrameInfo(ctx context.Context, idx fh.FrameIndex) (fh.HopFrame, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.fh.FrameInfo(cctx, idx)
}

// Hop triggers an immediate hop and reports whether it was issued.
func (o *Orchestrator) Hop(ctx context.Context) (bool, error) {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutHop)
	defer cancel()

	issued, err := o.fh.TryHop(cctx)
	o.finish(ctx, "fh.hop", "fh", map[string]interface{}{"issued": issued}, err, start)
	if err != nil {
		return false, err
	}
	o.emit(telemetry.EventHop, "fh", map[string]interface{}{"issued": issued})
	return issued, nil
}

// Channels lists every channel.
func (o *Orchestrator) Channels() *channel.ChannelList {
	return o.channels.List()
}

// Channel returns one channel.
func (o *Orchestrator) Channel(id channel.ID) (channel.Channel, error) {
	ch, err := o.channels.Get(id)
	if err != nil {
		return channel.Channel{}, fh.Wrap("channel get", fmt.Errorf("%w: %v", adapter.ErrInvalidParam, err))
	}
	return ch, nil
}

// SetChannelState records a channel state reported by the channel owner.
func (o *Orchestrator) SetChannelState(ctx context.Context, id channel.ID, state channel.State) error {
	start := o.now()
	prev, err := o.channels.SetState(id, state)
	if err != nil {
		err = fh.Wrap("channel set", fmt.Errorf("%w: %v", adapter.ErrInvalidParam, err))
	}
	o.finish(ctx, "channel.state", "channel/"+id.String(), map[string]interface{}{
		"state": state.String(),
	}, err, start)
	if err != nil {
		return err
	}
	o.emit(telemetry.EventChannel, id.String(), map[string]interface{}{
		"channel":  id,
		"state":    state,
		"previous": prev,
	})
	return nil
}

// SetInterruptMask masks the interrupt sources set in mask.
func (o *Orchestrator) SetInterruptMask(ctx context.Context, mask gpio.IntStatus) error {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutSelect)
	defer cancel()

	err := o.gpio.SetInterruptMask(cctx, mask)
	o.finish(ctx, "gpio.mask.set", "gpio", map[string]interface{}{"mask": mask.Names()}, err, start)
	return err
}

// InterruptMask returns the masked interrupt sources.
func (o *Orchestrator) InterruptMask(ctx context.Context) (gpio.IntStatus, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.gpio.InterruptMask(cctx)
}

// InterruptStatus returns the latched interrupt sources.
func (o *Orchestrator) InterruptStatus(ctx context.Context) (gpio.IntStatus, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.gpio.InterruptStatus(cctx)
}

// HandleInterrupt services the interrupt and publishes the active sources.
func (o *Orchestrator) HandleInterrupt(ctx context.Context) (gpio.Report, error) {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()

	rep, err := o.gpio.HandleInterrupt(cctx)
	o.finish(ctx, "gpio.interrupt.handle", "gpio", nil, err, start)
	if err != nil {
		return gpio.Report{}, err
	}
	if rep.Active != 0 {
		o.emit(telemetry.EventInterrupt, "gpio", map[string]interface{}{
			"status":  rep.Status,
			"active":  rep.Active,
			"sources": rep.Sources,
		})
	}
	return rep, nil
}

// ConfigureSignal routes sig to a pin.
func (o *Orchestrator) ConfigureSignal(ctx context.Context, sig gpio.Signal, cfg gpio.PinConfig) error {
	start := o.now()
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutSelect)
	defer cancel()

	err := o.gpio.ConfigureSignal(cctx, sig, cfg)
	o.finish(ctx, "gpio.signal.configure", "signal/"+sig.String(), map[string]interface{}{
		"pin":      cfg.Pin.String(),
		"inverted": cfg.Inverted,
	}, err, start)
	return err
}

// InspectSignal returns the routing of sig.
func (o *Orchestrator) InspectSignal(ctx context.Context, sig gpio.Signal) (gpio.PinConfig, error) {
	cctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutInspect)
	defer cancel()
	return o.gpio.InspectSignal(cctx, sig)
}

// Snapshot summarizes host-side state for the telemetry ready event. It
// does not touch the device.
func (o *Orchestrator) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"channels": o.channels.List().Items,
	}
	if cfg, ok := o.fh.Applied(); ok {
		snap["config"] = cfg
	}
	transfers := make([]fh.Transfer, 0, len(fh.Tables))
	for _, id := range fh.Tables {
		if tr, err := o.fh.Transfer(id); err == nil {
			transfers = append(transfers, tr)
		}
	}
	snap["transfers"] = transfers
	return snap
}

// finish audits a control action and publishes a fault when it failed.
func (o *Orchestrator) finish(ctx context.Context, action, target string, params map[string]interface{}, err error, start time.Time) {
	latency := o.now().Sub(start)
	if o.audit != nil {
		o.audit.LogAction(ctx, action, target, params, err, latency)
	}
	if err == nil {
		o.log.Debug("command completed", zap.String("action", action), zap.String("target", target), zap.Duration("latency", latency))
		return
	}
	code := fh.Action(err)
	o.log.Warn("command failed",
		zap.String("action", action),
		zap.String("target", target),
		zap.Stringer("actionCode", code),
		zap.Error(err))
	o.emit(telemetry.EventFault, "", map[string]interface{}{
		"action":     action,
		"target":     target,
		"actionCode": code,
		"code":       code.String(),
		"message":    err.Error(),
		"ts":         o.now().UTC().Format(time.RFC3339),
	})
}

func (o *Orchestrator) emit(typ, source string, data map[string]interface{}) {
	if o.telemetry == nil {
		return
	}
	o.telemetry.Emit(typ, source, data)
}
