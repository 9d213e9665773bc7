package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fleetmatch/backend/internal/api"
	"github.com/fleetmatch/backend/internal/config"
	"github.com/fleetmatch/backend/internal/directory"
	"github.com/fleetmatch/backend/internal/matchmaker"
	"github.com/fleetmatch/backend/internal/redis"
	"github.com/fleetmatch/backend/internal/registry"
)

func main() {
	// Initialize configuration (env + .env)
	cfg := config.Load()

	host := flag.String("host", cfg.APIHost, "listen address")
	port := flag.String("port", cfg.APIPort, "listen port")
	redisHost := flag.String("redis-host", cfg.RedisURL, "redis URL")
	flag.Parse()

	// Initialize Redis-backed directory
	rdb, err := redis.Connect(*redisHost)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	dir := directory.New(rdb)
	reg := registry.New(dir,
		time.Duration(cfg.ServerTTLSeconds)*time.Second,
		time.Duration(cfg.SessionTTLSeconds)*time.Second)
	mm := matchmaker.New(reg, dir, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	api.SetupRoutes(router, mm, reg, cfg)

	srv := &http.Server{
		Addr:    *host + ":" + *port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting FleetMatch API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("FleetMatch API stopped")
}
