// Command signal-fusion-service consumes signal.raw and publishes
// signal.tradeable, filtering stale/low-confidence signals and
// suppressing close-in-time conflicting signals per symbol.
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
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/fusion"
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

	service := fusion.New(cfg.MinSignalConfidence)

	worker := busworker.New(busworker.Config{
		ServiceName:  "signal-fusion-service",
		InputStream:  models.StreamSignalRaw,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	log.Printf("signal-fusion-service started")
	<-ctx.Done()
	worker.Stop()
	log.Printf("signal-fusion-service stopped")
}
