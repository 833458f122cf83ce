// Package risk implements the risk-gating stage: four exposure-dimension
// caps (symbol, total, market, side) plus a daily-drawdown kill switch
// that, once latched, rejects every intent until the process restarts.
package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/state"
)

// Limits holds the account-equity-scaled percentages the risk stage caps
// exposure against.
type Limits struct {
	AccountEquityUSD     float64
	MaxSymbolExposurePct float64
	MaxTotalExposurePct  float64
	MaxSpotExposurePct   float64
	MaxPerpExposurePct   float64
	MaxLongExposurePct   float64
	MaxShortExposurePct  float64
	MaxDailyDrawdownPct  float64
}

// Service evaluates OrderIntents against exposure limits and the kill
// switch, and folds realized PnL deltas from pnl.snapshot into the daily
// drawdown counter.
type Service struct {
	limits Limits
	store  state.Store

	mu                    sync.Mutex
	killSwitch            bool
	lastSnapshotRealized  float64
}

// New builds a Service.
func New(limits Limits, store state.Store) *Service {
	return &Service{limits: limits, store: store}
}

func (s *Service) dailyDrawdownBreached(ctx context.Context) (bool, error) {
	realized, err := s.store.DailyRealizedPnL(ctx)
	if err != nil {
		return false, err
	}
	limit := s.limits.AccountEquityUSD * s.limits.MaxDailyDrawdownPct
	return realized <= -limit, nil
}

// HandleOrderIntent is the busworker.Handler for order.intent.
func (s *Service) HandleOrderIntent(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamOrderIntent, record.Payload)
	if err != nil {
		return nil, err
	}
	intent, ok := decoded.(models.OrderIntent)
	if !ok {
		return nil, fmt.Errorf("risk: unexpected decoded type %T", decoded)
	}

	s.mu.Lock()
	latched := s.killSwitch
	s.mu.Unlock()

	breached, err := s.dailyDrawdownBreached(ctx)
	if err != nil {
		return nil, err
	}
	if latched || breached {
		s.mu.Lock()
		s.killSwitch = true
		s.mu.Unlock()
		return s.reject(intent.IntentID, "DAILY_DRAWDOWN_BREACH", 0)
	}

	symbolLimit := s.limits.AccountEquityUSD * s.limits.MaxSymbolExposurePct
	totalLimit := s.limits.AccountEquityUSD * s.limits.MaxTotalExposurePct
	marketLimitPct := s.limits.MaxPerpExposurePct
	if intent.Market == "spot" {
		marketLimitPct = s.limits.MaxSpotExposurePct
	}
	marketLimit := s.limits.AccountEquityUSD * marketLimitPct
	sideLimitPct := s.limits.MaxShortExposurePct
	if intent.Side > 0 {
		sideLimitPct = s.limits.MaxLongExposurePct
	}
	sideLimit := s.limits.AccountEquityUSD * sideLimitPct

	currentSymbol, err := s.store.SymbolExposure(ctx, intent.Symbol)
	if err != nil {
		return nil, err
	}
	currentTotal, err := s.store.TotalExposure(ctx)
	if err != nil {
		return nil, err
	}
	currentMarket, err := s.store.MarketExposure(ctx, intent.Market)
	if err != nil {
		return nil, err
	}
	currentSide, err := s.store.SideExposure(ctx, intent.Side)
	if err != nil {
		return nil, err
	}

	allowedBySymbol := maxFloat(0, symbolLimit-currentSymbol)
	allowedByTotal := maxFloat(0, totalLimit-currentTotal)
	allowedByMarket := maxFloat(0, marketLimit-currentMarket)
	allowedBySide := maxFloat(0, sideLimit-currentSide)
	capped := minFloat(intent.QtyUSD, allowedBySymbol, allowedByTotal, allowedByMarket, allowedBySide)

	if capped <= 0 {
		reasonCode := "TOTAL_EXPOSURE_LIMIT"
		switch {
		case allowedBySymbol <= 0:
			reasonCode = "SYMBOL_EXPOSURE_LIMIT"
		case allowedByMarket <= 0:
			reasonCode = "MARKET_EXPOSURE_LIMIT"
		case allowedBySide <= 0:
			reasonCode = "SIDE_EXPOSURE_LIMIT"
		}
		return s.reject(intent.IntentID, reasonCode, 0)
	}

	approved := intent
	approved.QtyUSD = capped

	if err := s.store.AddSymbolExposure(ctx, intent.Symbol, capped); err != nil {
		return nil, err
	}
	if err := s.store.AddTotalExposure(ctx, capped); err != nil {
		return nil, err
	}
	if err := s.store.AddMarketExposure(ctx, intent.Market, capped); err != nil {
		return nil, err
	}
	if err := s.store.AddSideExposure(ctx, intent.Side, capped); err != nil {
		return nil, err
	}

	payload, err := models.Encode(approved)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamOrderApproved, Payload: payload}}, nil
}

func (s *Service) reject(intentID, reasonCode string, cappedQtyUSD float64) ([]busworker.Output, error) {
	decision := models.RiskDecision{
		BaseEvent:    models.BaseEvent{SchemaVersion: models.SchemaVersion},
		IntentID:     intentID,
		Allow:        false,
		ReasonCode:   reasonCode,
		CappedQtyUSD: cappedQtyUSD,
	}
	payload, err := models.Encode(decision)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamOrderRejected, Payload: payload}}, nil
}

// HandlePnLSnapshot is the busworker.Handler for pnl.snapshot: it folds
// the snapshot's realized-PnL delta into the daily counter and emits a
// risk.alert if that trips the drawdown limit.
func (s *Service) HandlePnLSnapshot(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamPnLSnapshot, record.Payload)
	if err != nil {
		return nil, err
	}
	snap, ok := decoded.(models.PnLSnapshot)
	if !ok {
		return nil, fmt.Errorf("risk: unexpected decoded type %T", decoded)
	}

	s.mu.Lock()
	deltaRealized := snap.Realized - s.lastSnapshotRealized
	s.lastSnapshotRealized = snap.Realized
	s.mu.Unlock()

	if err := s.store.AddDailyRealizedPnL(ctx, deltaRealized); err != nil {
		return nil, err
	}

	breached, err := s.dailyDrawdownBreached(ctx)
	if err != nil {
		return nil, err
	}
	if !breached {
		return nil, nil
	}

	s.mu.Lock()
	s.killSwitch = true
	s.mu.Unlock()

	alert := map[string]any{
		"schema_version": models.SchemaVersion,
		"message":        "Daily drawdown breached. Strategy halted.",
		"drawdown":       snap.Drawdown,
	}
	payload, err := models.Encode(alert)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamRiskAlert, Payload: payload}}, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
