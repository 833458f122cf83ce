// Package positionsync reconciles the risk stage's in-memory exposure
// counters against the exchange's own view of open positions. It only
// does anything in live execution mode: paper trading never drifts from
// its own bookkeeping.
package positionsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/state"
)

// Settings bundles the config fields positionsync needs, kept separate
// from config.AppSettings so the package doesn't import the whole config
// tree.
type Settings struct {
	ExecutionMode            string
	AccountEquityUSD          float64
	PositionSyncIntervalSec   int
	PositionSyncDriftAlertPct float64
}

// Service periodically fetches the exchange's positions, rebuilds the
// exposure snapshot they imply, and reconciles it into state.Store.
type Service struct {
	settings Settings
	adapter  exchange.Adapter
	store    state.Store
	eventBus bus.EventBus
}

// New wires a Service to its adapter, state store, and event bus.
func New(settings Settings, adapter exchange.Adapter, store state.Store, eventBus bus.EventBus) *Service {
	return &Service{settings: settings, adapter: adapter, store: store, eventBus: eventBus}
}

// Result is what RunOnce reports, mirroring the Python source's run_once
// return dict.
type Result struct {
	Skipped      bool
	Reason       string
	Positions    int
	TotalExposure float64
	DriftPct     float64
}

func safeNotional(p exchange.Position) float64 {
	if p.NotionalUSD != 0 {
		return absFloat(p.NotionalUSD)
	}
	return absFloat(p.Qty)
}

// BuildSnapshot folds a position listing into the per-symbol,
// per-market, and per-side exposure totals the state store expects.
func BuildSnapshot(positions []exchange.Position) state.Snapshot {
	snapshot := state.Snapshot{
		SymbolExposure: make(map[string]float64),
		MarketExposure: make(map[string]float64),
	}
	for _, pos := range positions {
		if pos.Symbol == "" || pos.Market == "" {
			continue
		}
		notional := safeNotional(pos)
		if notional <= 0 {
			continue
		}
		snapshot.SymbolExposure[pos.Symbol] += notional
		snapshot.MarketExposure[pos.Market] += notional
		if pos.Qty >= 0 {
			snapshot.LongExposure += notional
		} else {
			snapshot.ShortExposure += notional
		}
	}
	for _, v := range snapshot.MarketExposure {
		snapshot.TotalExposure += v
	}
	return snapshot
}

// RunOnce fetches and reconciles once. It is a no-op outside live
// execution mode.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	if s.settings.ExecutionMode != "live" {
		return Result{Skipped: true, Reason: "execution_mode_not_live"}, nil
	}

	positions, err := s.adapter.FetchPositions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("positionsync: fetch positions: %w", err)
	}
	snapshot := BuildSnapshot(positions)

	currentTotal, err := s.store.TotalExposure(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("positionsync: read total exposure: %w", err)
	}

	equity := s.settings.AccountEquityUSD
	if equity < 1.0 {
		equity = 1.0
	}
	driftPct := absFloat(snapshot.TotalExposure-currentTotal) / equity

	if driftPct >= s.settings.PositionSyncDriftAlertPct {
		message := fmt.Sprintf(
			"Position sync drift detected and reconciled. current_total=%.2f desired_total=%.2f drift_pct=%.4f",
			currentTotal, snapshot.TotalExposure, driftPct)
		alert := map[string]any{
			"schema_version": models.SchemaVersion,
			"message":        message,
			"severity":       "warning",
			"source":         "position-sync-service",
		}
		payload, err := models.Encode(alert)
		if err != nil {
			return Result{}, err
		}
		if _, err := s.eventBus.Publish(ctx, models.StreamRiskAlert, payload); err != nil {
			return Result{}, fmt.Errorf("positionsync: publish risk.alert: %w", err)
		}
	}

	if err := s.store.ReplaceExposureSnapshot(ctx, snapshot); err != nil {
		return Result{}, fmt.Errorf("positionsync: replace exposure snapshot: %w", err)
	}

	return Result{
		Skipped:       false,
		Positions:     len(positions),
		TotalExposure: snapshot.TotalExposure,
		DriftPct:      driftPct,
	}, nil
}

// RunForever loops RunOnce on an interval until ctx is canceled, logging
// each result and surviving individual failures the way a long-lived
// service must.
func (s *Service) RunForever(ctx context.Context) {
	interval := s.settings.PositionSyncIntervalSec
	if interval < 5 {
		interval = 5
	}
	log := slog.With("component", "positionsync")

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		result, err := s.RunOnce(ctx)
		if err != nil {
			log.Error("position sync failed", "error", err)
		} else {
			log.Info("position sync result",
				"skipped", result.Skipped, "reason", result.Reason,
				"positions", result.Positions, "total_exposure", result.TotalExposure,
				"drift_pct", result.DriftPct)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
