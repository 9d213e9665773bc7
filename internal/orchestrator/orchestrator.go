package orchestrator

import (
	"context"
	"fmt"

	"github.com/fleetmatch/backend/internal/models"
)

// Orchestrator is the fleet-lifecycle system a game server reports to.
// Implementations are thin adapters; the agent drives the calls.
type Orchestrator interface {
	// Ready signals the server can accept a placement. Errors are fatal.
	Ready(ctx context.Context) error
	// Health is a periodic liveness signal. Errors are logged, not fatal.
	Health(ctx context.Context) error
	// Shutdown deregisters the server before process exit.
	Shutdown(ctx context.Context) error
	// WantsIdleShutdown reports whether the fleet policy is to terminate
	// idle servers.
	WantsIdleShutdown() bool
	// Kind identifies the adapter for the server record.
	Kind() models.Orchestration
}

// New returns the adapter for the given orchestration kind.
func New(kind models.Orchestration) (Orchestrator, error) {
	switch kind {
	case models.OrchestrationLocal:
		return &Local{}, nil
	case models.OrchestrationAgones:
		return NewAgones(), nil
	case models.OrchestrationGameLift:
		return &GameLift{}, nil
	}
	return nil, fmt.Errorf("unknown orchestration kind %q", kind)
}
