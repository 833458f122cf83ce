// Package execution implements the execution stage: it places approved
// order intents on an exchange adapter and republishes the resulting
// report, deduplicating both by intent id and by the (order, status,
// filled_qty) tuple so at-least-once delivery never double-places or
// double-reports a fill.
package execution

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

type reportKey struct {
	orderID   string
	status    string
	filledQty float64
}

// Service places orders through an exchange.Adapter and normalizes
// adapter-sourced execution events.
type Service struct {
	adapter exchange.Adapter

	mu               sync.Mutex
	processedIntents map[string]bool
	seenReportKeys   map[reportKey]bool
}

// New builds a Service around adapter.
func New(adapter exchange.Adapter) *Service {
	return &Service{
		adapter:          adapter,
		processedIntents: make(map[string]bool),
		seenReportKeys:   make(map[reportKey]bool),
	}
}

func roundTo10(f float64) float64 {
	const scale = 1e10
	return math.Round(f*scale) / scale
}

func (s *Service) isDuplicateReport(report models.ExecutionReport) bool {
	key := reportKey{orderID: report.OrderID, status: report.Status, filledQty: roundTo10(report.FilledQty)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenReportKeys[key] {
		return true
	}
	s.seenReportKeys[key] = true
	return false
}

// Handle is the busworker.Handler for order.approved.
func (s *Service) Handle(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamOrderApproved, record.Payload)
	if err != nil {
		return nil, err
	}
	intent, ok := decoded.(models.OrderIntent)
	if !ok {
		return nil, fmt.Errorf("execution: unexpected decoded type %T", decoded)
	}

	s.mu.Lock()
	alreadyProcessed := s.processedIntents[intent.IntentID]
	s.mu.Unlock()
	if alreadyProcessed {
		return nil, nil
	}

	report, err := s.adapter.PlaceOrder(ctx, intent)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.processedIntents[intent.IntentID] = true
	s.mu.Unlock()

	if s.isDuplicateReport(report) {
		return nil, nil
	}

	payload, err := models.Encode(report)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamExecutionReport, Payload: payload}}, nil
}

// NormalizeAdapterEvent turns one event off the adapter's live
// execution-event stream into a busworker.Output: an alert event is
// forwarded to risk.alert untouched, while an execution event passes
// through the same (order_id, status, filled_qty) dedup check the
// order.approved path uses. Returns ok=false for a duplicate report.
func (s *Service) NormalizeAdapterEvent(event exchange.AdapterEvent) (out busworker.Output, ok bool, err error) {
	if event.Type == "alert" {
		payload, err := models.Encode(map[string]any{
			"schema_version": models.SchemaVersion,
			"severity":       event.Severity,
			"message":        event.Message,
		})
		if err != nil {
			return busworker.Output{}, false, err
		}
		return busworker.Output{Stream: models.StreamRiskAlert, Payload: payload}, true, nil
	}

	if s.isDuplicateReport(event.Report) {
		return busworker.Output{}, false, nil
	}
	payload, err := models.Encode(event.Report)
	if err != nil {
		return busworker.Output{}, false, err
	}
	return busworker.Output{Stream: models.StreamExecutionReport, Payload: payload}, true, nil
}
