// Command entity-service consumes news.raw and publishes news.entity:
// symbol/tag extraction, no external dependencies beyond the bus.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/entity"
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

	service := entity.New(cfg.Universe())

	worker := busworker.New(busworker.Config{
		ServiceName:  "entity-service",
		InputStream:  models.StreamNewsRaw,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	log.Printf("entity-service started")
	<-ctx.Done()
	worker.Stop()
	log.Printf("entity-service stopped")
}
