// Command ingest-service polls the configured RSS feeds on a fixed
// interval and publishes fresh, deduped entries to news.raw.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/dedup"
	"github.com/zilinissleepin/crypto-news-trading/pkg/ingest"
)

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

	dedupStore, err := dedup.Build(cfg.BusBackend, cfg.RedisURL)
	if err != nil {
		log.Fatalf("build dedup store: %v", err)
	}

	service := ingest.New(busConn, dedupStore, nil, cfg.DefaultEventTTLSec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("ingest-service starting, polling every 30s")
	service.RunForever(ctx, 30*time.Second)
	log.Printf("ingest-service stopped")
}
