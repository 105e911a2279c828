package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/synapse-fi/bridge-hub/internal/api"
	"github.com/synapse-fi/bridge-hub/internal/config"
	"github.com/synapse-fi/bridge-hub/internal/hub"
)

func main() {
	log.Println("Starting SYNAPSE-FI BRIDGE Hub (Behavioral Risk Intelligence Data Generation Engine)...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}

	apiKey := requireEnv("HUB_API_KEY")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	h := hub.New(cfg, nil)

	// Advisory fanout to connected entity dashboards.
	stream := api.NewStreamHub()
	go stream.Run()
	h.SetAdvisoryHook(api.BroadcastAdvisory(stream))

	// Background graph maintenance: prune expired edges, refresh decay.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.RunPruner(ctx)

	r := api.SetupRouter(h, stream, apiKey)

	port := getEnvOrDefault("HUB_PORT", "8400")

	log.Printf("BRIDGE Hub running on :%s (entity_threshold=%d, time_window=%ds)\n",
		port, cfg.EntityThreshold, cfg.TimeWindowSeconds)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the hub from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
