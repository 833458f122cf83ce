// Command monitoring-alert-service turns news.raw, order.rejected,
// execution.report, and risk.alert into Telegram messages.
package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/config"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/notify"
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

	chatID, _ := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	notifier := notify.NewTelegramNotifier(cfg.TelegramBotToken, chatID)
	service := notify.New(notifier)

	workerCfg := func(name, stream string) busworker.Config {
		return busworker.Config{
			ServiceName:  name,
			InputStream:  stream,
			PollMs:       cfg.ServicePollMs,
			IdleSleepSec: cfg.ServiceIdleSleepSec,
		}
	}

	workers := []*busworker.Worker{
		busworker.New(workerCfg("monitoring-news", models.StreamNewsRaw), busConn, service.HandleNews),
		busworker.New(workerCfg("monitoring-rejected", models.StreamOrderRejected), busConn, service.HandleRejected),
		busworker.New(workerCfg("monitoring-execution", models.StreamExecutionReport), busConn, service.HandleExecution),
		busworker.New(workerCfg("monitoring-risk-alert", models.StreamRiskAlert), busConn, service.HandleRiskAlert),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range workers {
		w.Start(ctx)
	}
	log.Printf("monitoring-alert-service started")
	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
	log.Printf("monitoring-alert-service stopped")
}
