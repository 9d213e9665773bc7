package orchestrator

import (
	"context"

	"github.com/fleetmatch/backend/internal/models"
)

// Local is the no-op adapter for development: ready immediately, never
// asks for idle shutdown.
type Local struct{}

func (l *Local) Ready(ctx context.Context) error    { return nil }
func (l *Local) Health(ctx context.Context) error   { return nil }
func (l *Local) Shutdown(ctx context.Context) error { return nil }
func (l *Local) WantsIdleShutdown() bool            { return false }
func (l *Local) Kind() models.Orchestration         { return models.OrchestrationLocal }
