package command

import (
	"context"
	"time"

	"github.com/radio-control/fhc/internal/channel"
	"github.com/radio-control/fhc/internal/fh"
	"github.com/radio-control/fhc/internal/gpio"
)

// OrchestratorPort is the surface the API needs from the orchestrator.
type OrchestratorPort interface {
	Configure(ctx context.Context, cfg fh.Config) error
	Inspect(ctx context.Context) (fh.Config, error)
	ConfigureTable(ctx context.Context, id fh.TableID, frames []fh.HopFrame) error
	Table(ctx context.Context, id fh.TableID, capacity int) ([]fh.HopFrame, error)
	Transfer(id fh.TableID) (fh.Transfer, error)
	SetActiveTable(ctx context.Context, id fh.TableID) error
	ActiveTable(ctx context.Context) (fh.TableID, error)
	FrameInfo(ctx context.Context, idx fh.FrameIndex) (fh.HopFrame, error)
	Hop(ctx context.Context) (bool, error)

	Channels() *channel.ChannelList
	Channel(id channel.ID) (channel.Channel, error)
	SetChannelState(ctx context.Context, id channel.ID, state channel.State) error

	SetInterruptMask(ctx context.Context, mask gpio.IntStatus) error
	InterruptMask(ctx context.Context) (gpio.IntStatus, error)
	InterruptStatus(ctx context.Context) (gpio.IntStatus, error)
	HandleInterrupt(ctx context.Context) (gpio.Report, error)
	ConfigureSignal(ctx context.Context, sig gpio.Signal, cfg gpio.PinConfig) error
	InspectSignal(ctx context.Context, sig gpio.Signal) (gpio.PinConfig, error)
}

// AuditLogger records control actions.
type AuditLogger interface {
	LogAction(ctx context.Context, action, target string, params map[string]interface{}, err error, latency time.Duration)
}

// Publisher receives telemetry events.
type Publisher interface {
	Emit(typ, source string, data map[string]interface{})
}
