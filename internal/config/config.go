package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Redis
	RedisURL string

	// Matchmaking API
	APIHost string
	APIPort string

	// Notification Bus
	NotifierHost string
	NotifierPort string

	// Agent-side endpoints
	APIBaseURL  string
	NotifierURL string

	// Fleet TTLs (seconds)
	ServerTTLSeconds  int
	SessionTTLSeconds int

	// Matchmaking timeouts (seconds)
	PlacementTimeoutSeconds   int
	PlacementPollIntervalSecs int
	BackfillTimeoutSeconds    int
	BackfillPollIntervalSecs  int

	// Game server agent
	HeartbeatIntervalSeconds   int
	PendingPlayerTimeoutSecs   int
	SessionShutdownTimeoutSecs int
	MaxPlayers                 int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost"),

		// Matchmaking API
		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnv("API_PORT", "8000"),

		// Notification Bus
		NotifierHost: getEnv("NOTIFIER_HOST", "0.0.0.0"),
		NotifierPort: getEnv("NOTIFIER_PORT", "8001"),

		// Agent-side endpoints
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8000"),
		NotifierURL: getEnv("NOTIFIER_URL", "ws://localhost:8001"),

		// Fleet TTLs
		ServerTTLSeconds:  getEnvInt("SERVER_TTL_SECONDS", 10),
		SessionTTLSeconds: getEnvInt("SESSION_TTL_SECONDS", 60),

		// Matchmaking timeouts
		PlacementTimeoutSeconds:   getEnvInt("PLACEMENT_TIMEOUT_SECONDS", 60),
		PlacementPollIntervalSecs: getEnvInt("PLACEMENT_POLL_INTERVAL_SECONDS", 1),
		BackfillTimeoutSeconds:    getEnvInt("BACKFILL_TIMEOUT_SECONDS", 5),
		BackfillPollIntervalSecs:  getEnvInt("BACKFILL_POLL_INTERVAL_SECONDS", 1),

		// Game server agent
		HeartbeatIntervalSeconds:   getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 5),
		PendingPlayerTimeoutSecs:   getEnvInt("PENDING_PLAYER_TIMEOUT_SECONDS", 10),
		SessionShutdownTimeoutSecs: getEnvInt("SESSION_SHUTDOWN_TIMEOUT_SECONDS", 600),
		MaxPlayers:                 getEnvInt("MAX_PLAYERS", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
