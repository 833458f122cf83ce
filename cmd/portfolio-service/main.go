// Command portfolio-service consumes signal.universe and publishes
// order.intent, sizing notional off account equity and signal strength.
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
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/portfolio"
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

	service := portfolio.New(cfg.AccountEquityUSD, cfg.RiskPerTradePct, cfg.MaxSlippageBps)

	worker := busworker.New(busworker.Config{
		ServiceName:  "portfolio-service",
		InputStream:  models.StreamSignalUniverse,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	log.Printf("portfolio-service started")
	<-ctx.Done()
	worker.Stop()
	log.Printf("portfolio-service stopped")
}
