package api

import (
	"context"
	"net/http"

	"github.com/radio-control/fhc/internal/command"
	"github.com/radio-control/fhc/internal/telemetry"
)

// OrchestratorPort is the orchestrator surface the API drives.
type OrchestratorPort interface {
	command.OrchestratorPort
}

// TelemetryPort streams events to a subscriber.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

var (
	_ OrchestratorPort = (*command.Orchestrator)(nil)
	_ TelemetryPort    = (*telemetry.Hub)(nil)
)
