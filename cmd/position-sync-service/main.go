// Command position-sync-service runs the exchange-truth reconciliation
// loop on a fixed interval, independent of the event bus.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/positionsync"
	"github.com/zilinissleepin/crypto-news-trading/pkg/state"
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

	stateStore, err := state.Build(cfg.BusBackend, cfg.RedisURL)
	if err != nil {
		log.Fatalf("build state store: %v", err)
	}

	adapter, err := exchange.Build(exchange.Config{
		ExecutionMode:       cfg.ExecutionMode,
		BinanceAPIKey:       cfg.BinanceAPIKey,
		BinanceAPISecret:    cfg.BinanceAPISecret,
		BinanceUseTestnet:   cfg.BinanceUseTestnet,
		BinanceRecvWindowMs: cfg.BinanceRecvWindowMs,
	})
	if err != nil {
		log.Fatalf("build exchange adapter: %v", err)
	}

	service := positionsync.New(positionsync.Settings{
		ExecutionMode:             cfg.ExecutionMode,
		AccountEquityUSD:          cfg.AccountEquityUSD,
		PositionSyncIntervalSec:   cfg.PositionSyncIntervalSec,
		PositionSyncDriftAlertPct: cfg.PositionSyncDriftAlertPct,
	}, adapter, stateStore, busConn)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("position-sync-service started (mode=%s)", cfg.ExecutionMode)
	service.RunForever(ctx)
	log.Printf("position-sync-service stopped")
}
