// Command position-pnl-service consumes execution.report, maintains
// per-(market,symbol) positions with FIFO realized PnL, and publishes
// pnl.snapshot after every fill.
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
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/pnl"
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

	service := pnl.New()

	worker := busworker.New(busworker.Config{
		ServiceName:  "position-pnl-service",
		InputStream:  models.StreamExecutionReport,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	log.Printf("position-pnl-service started")
	<-ctx.Done()
	worker.Stop()
	log.Printf("position-pnl-service stopped")
}
