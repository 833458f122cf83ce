// Command risk-service runs two workers against one shared Service
// instance: order.intent gating and the pnl.snapshot kill-switch feed.
// Both must share state, so they run in the same process rather than as
// separate deployables.
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
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/risk"
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

	service := risk.New(risk.Limits{
		AccountEquityUSD:     cfg.AccountEquityUSD,
		MaxSymbolExposurePct: cfg.MaxSymbolExposurePct,
		MaxTotalExposurePct:  cfg.MaxTotalExposurePct,
		MaxSpotExposurePct:   cfg.MaxSpotExposurePct,
		MaxPerpExposurePct:   cfg.MaxPerpExposurePct,
		MaxLongExposurePct:   cfg.MaxLongExposurePct,
		MaxShortExposurePct:  cfg.MaxShortExposurePct,
		MaxDailyDrawdownPct:  cfg.MaxDailyDrawdownPct,
	}, stateStore)

	intentWorker := busworker.New(busworker.Config{
		ServiceName:  "risk-service-intent",
		InputStream:  models.StreamOrderIntent,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.HandleOrderIntent)

	pnlWorker := busworker.New(busworker.Config{
		ServiceName:  "risk-service-pnl",
		InputStream:  models.StreamPnLSnapshot,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.HandlePnLSnapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	intentWorker.Start(ctx)
	pnlWorker.Start(ctx)
	log.Printf("risk-service started")
	<-ctx.Done()
	intentWorker.Stop()
	pnlWorker.Stop()
	log.Printf("risk-service stopped")
}
