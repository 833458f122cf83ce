// Command persistence-service fans out one worker per stream it
// archives into Postgres: news, intents, rejected risk decisions,
// execution reports, and PnL snapshots.
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
	"github.com/zilinissleepin/crypto-news-trading/pkg/persistence"
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

	client, err := persistence.NewClient(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer client.Close()

	service := persistence.New(client)

	workerCfg := func(name, stream string) busworker.Config {
		return busworker.Config{
			ServiceName:  name,
			InputStream:  stream,
			PollMs:       cfg.ServicePollMs,
			IdleSleepSec: cfg.ServiceIdleSleepSec,
		}
	}

	// Only order.rejected carries a RiskDecision payload; order.approved
	// republishes the OrderIntent itself (already captured by the
	// order.intent worker below), so it is not a HandleRiskDecision input.
	workers := []*busworker.Worker{
		busworker.New(workerCfg("persistence-news", models.StreamNewsRaw), busConn, service.HandleNews),
		busworker.New(workerCfg("persistence-intent", models.StreamOrderIntent), busConn, service.HandleIntent),
		busworker.New(workerCfg("persistence-rejected", models.StreamOrderRejected), busConn,
			func(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
				return service.HandleRiskDecision(ctx, record, models.StreamOrderRejected)
			}),
		busworker.New(workerCfg("persistence-execution", models.StreamExecutionReport), busConn, service.HandleExecution),
		busworker.New(workerCfg("persistence-pnl", models.StreamPnLSnapshot), busConn, service.HandlePnL),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range workers {
		w.Start(ctx)
	}
	log.Printf("persistence-service started")
	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
	log.Printf("persistence-service stopped")
}
