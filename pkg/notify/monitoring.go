package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// titleMaxLen is the truncated length of a news title in an alert
// message, ellipsis included.
const titleMaxLen = 180

// MonitoringService turns pipeline events into Telegram alerts. Every
// handler returns no outputs: it is a terminal consumer, not a
// republishing stage.
type MonitoringService struct {
	notifier *TelegramNotifier
}

// New wires a MonitoringService to its notifier.
func New(notifier *TelegramNotifier) *MonitoringService {
	return &MonitoringService{notifier: notifier}
}

// HandleNews is the busworker.Handler for news.raw.
func (m *MonitoringService) HandleNews(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamNewsRaw, record.Payload)
	if err != nil {
		return nil, err
	}
	news, ok := decoded.(models.NewsEvent)
	if !ok {
		return nil, fmt.Errorf("notify: unexpected decoded type %T", decoded)
	}
	message := fmt.Sprintf("[NEWS] source=%s\ntitle=%s\nurl=%s", news.Source, truncateTitle(news.Title), news.URL)
	m.notifier.Send(ctx, message)
	return nil, nil
}

// HandleRejected is the busworker.Handler for order.rejected.
func (m *MonitoringService) HandleRejected(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamOrderRejected, record.Payload)
	if err != nil {
		return nil, err
	}
	decision, ok := decoded.(models.RiskDecision)
	if !ok {
		return nil, fmt.Errorf("notify: unexpected decoded type %T", decoded)
	}
	message := fmt.Sprintf("[REJECTED] intent=%s reason=%s cap=%v",
		decision.IntentID, decision.ReasonCode, decision.CappedQtyUSD)
	m.notifier.Send(ctx, message)
	return nil, nil
}

// HandleExecution is the busworker.Handler for execution.report.
func (m *MonitoringService) HandleExecution(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamExecutionReport, record.Payload)
	if err != nil {
		return nil, err
	}
	report, ok := decoded.(models.ExecutionReport)
	if !ok {
		return nil, fmt.Errorf("notify: unexpected decoded type %T", decoded)
	}
	message := fmt.Sprintf("[EXEC] order=%s %s status=%s qty=%v px=%v",
		report.OrderID, report.Symbol, report.Status, report.FilledQty, report.AvgPrice)
	m.notifier.Send(ctx, message)
	return nil, nil
}

// HandleRiskAlert is the busworker.Handler for risk.alert. Producers
// publish risk.alert as a loose map rather than a fixed struct (both
// risk and position-sync stages add their own fields), so this decodes
// only the one field every alert carries.
func (m *MonitoringService) HandleRiskAlert(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	var alert struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(record.Payload, &alert); err != nil {
		return nil, fmt.Errorf("notify: decode risk.alert: %w", err)
	}
	m.notifier.Send(ctx, fmt.Sprintf("[RISK] %s", alert.Message))
	return nil, nil
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleMaxLen {
		return title
	}
	return string(runes[:titleMaxLen-3]) + "..."
}
