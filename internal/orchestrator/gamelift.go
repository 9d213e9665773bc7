package orchestrator

import (
	"context"
	"log"

	"github.com/fleetmatch/backend/internal/models"
)

// GameLift is a placeholder adapter. Fleet registration runs in the
// GameLift agent process alongside this one, so the lifecycle calls are
// informational; the idle-shutdown policy still applies.
type GameLift struct{}

func (g *GameLift) Ready(ctx context.Context) error {
	log.Println("[ORCH] gamelift: ready (registration handled by the GameLift agent)")
	return nil
}

func (g *GameLift) Health(ctx context.Context) error   { return nil }
func (g *GameLift) Shutdown(ctx context.Context) error { return nil }
func (g *GameLift) WantsIdleShutdown() bool            { return true }
func (g *GameLift) Kind() models.Orchestration         { return models.OrchestrationGameLift }
