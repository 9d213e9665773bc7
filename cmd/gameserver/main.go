package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/fleetmatch/backend/internal/agent"
	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/models"
	"github.com/fleetmatch/backend/internal/orchestrator"
)

func main() {
	// Initialize configuration (env + .env)
	cfg := config.Load()

	orchestration := flag.String("orchestration", "local", "fleet orchestrator: local, agones or gamelift")
	port := flag.Uint("port", 5576, "game UDP port")
	headless := flag.Bool("headless", false, "run without rendering")
	flag.Parse()

	orch, err := orchestrator.New(models.Orchestration(*orchestration))
	if err != nil {
		log.Fatalf("Invalid orchestration: %v", err)
	}
	if !*headless {
		// The control-plane build carries no renderer; the flag exists for
		// CLI parity with the full game binary.
		log.Println("Rendering is not available in this build; running headless")
	}

	ag := agent.New(cfg, orch, uint16(*port))
	log.Printf("Starting game server %s (orchestration=%s, port=%d)", ag.ServerID(), orch.Kind(), *port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ag.Run(ctx); err != nil {
		log.Fatalf("Game server failed: %v", err)
	}
}
