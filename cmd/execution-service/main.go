// Command execution-service consumes order.approved, places orders
// through the configured exchange adapter, and republishes
// execution.report. In live execution mode it also pumps the adapter's
// own user-data stream through the same dedup path.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/stages/execution"
)

// pumpExchangeEvents forwards the live adapter's own execution-event
// stream through the same intent/report dedup path the order.approved
// worker uses, republishing anything novel to execution.report.
func pumpExchangeEvents(ctx context.Context, busConn bus.EventBus, service *execution.Service, adapter exchange.Adapter) {
	log := slog.With("component", "execution-service", "loop", "adapter-stream")
	events, err := adapter.StreamExecutionEvents(ctx)
	if err != nil {
		log.Error("failed to open adapter execution stream", "error", err)
		return
	}
	for event := range events {
		out, ok, err := service.NormalizeAdapterEvent(event)
		if err != nil {
			log.Error("normalize adapter event failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if _, err := busConn.Publish(ctx, out.Stream, out.Payload); err != nil {
			log.Error("publish failed", "error", err)
		}
	}
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

	service := execution.New(adapter)

	worker := busworker.New(busworker.Config{
		ServiceName:  "execution-service",
		InputStream:  models.StreamOrderApproved,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	if cfg.ExecutionMode == "live" {
		go pumpExchangeEvents(ctx, busConn, service, adapter)
	}

	log.Printf("execution-service started (mode=%s)", cfg.ExecutionMode)
	<-ctx.Done()
	worker.Stop()
	log.Printf("execution-service stopped")
}
