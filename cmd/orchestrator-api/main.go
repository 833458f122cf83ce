// Command orchestrator-api exposes the control-plane HTTP surface:
// health, strategy start/stop, runtime config overrides, per-stream
// metrics, and the full replay-task lifecycle.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/orchestrator"
	"github.com/zilinissleepin/crypto-news-trading/pkg/replay"
)

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ConfigureLogging()

	busConn, err := bus.Build(cfg.BusBackend, cfg.RedisURL)
	if err != nil {
		log.Fatalf("build bus: %v", err)
	}
	defer busConn.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	var taskStore replay.TaskStore
	if cfg.BusBackend == "memory" || cfg.BusBackend == "inmemory" {
		taskStore = replay.NewMemoryTaskStore()
	} else {
		taskStore, err = replay.NewRedisTaskStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("build replay task store: %v", err)
		}
	}
	replayEngine := replay.New(taskStore, busConn)

	server := orchestrator.New(redisClient, replayEngine, cfg.Env)

	addr := ":" + getEnv("HTTP_PORT", "8080")
	log.Printf("orchestrator-api listening on %s", addr)
	if err := server.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
