// Command llm-signal-service consumes news.entity and publishes one
// signal.raw SignalEvent per symbol, via the LLM provider with a
// deterministic heuristic fallback.
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
	signalstage "github.com/zilinissleepin/crypto-news-trading/pkg/stages/signal"
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

	provider := signalstage.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	service := signalstage.New(provider, cfg.DefaultEventTTLSec)

	worker := busworker.New(busworker.Config{
		ServiceName:  "llm-signal-service",
		InputStream:  models.StreamNewsEntity,
		PollMs:       cfg.ServicePollMs,
		IdleSleepSec: cfg.ServiceIdleSleepSec,
	}, busConn, service.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	log.Printf("llm-signal-service started")
	<-ctx.Done()
	worker.Stop()
	log.Printf("llm-signal-service stopped")
}
