package state

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store guarded by a single mutex, used by
// tests and single-process runs.
type MemoryStore struct {
	mu             sync.Mutex
	symbolExposure map[string]float64
	marketExposure map[string]float64
	sideExposure   map[string]float64
	totalExposure  float64
	dailyRealized  float64
}

// NewMemoryStore returns a zeroed-out store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		symbolExposure: make(map[string]float64),
		marketExposure: make(map[string]float64),
		sideExposure:   make(map[string]float64),
	}
}

func sideKey(side int) string {
	if side > 0 {
		return "long"
	}
	return "short"
}

func (s *MemoryStore) SymbolExposure(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbolExposure[strings.ToUpper(symbol)], nil
}

func (s *MemoryStore) AddSymbolExposure(_ context.Context, symbol string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolExposure[strings.ToUpper(symbol)] += delta
	return nil
}

func (s *MemoryStore) TotalExposure(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalExposure, nil
}

func (s *MemoryStore) AddTotalExposure(_ context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalExposure += delta
	return nil
}

func (s *MemoryStore) MarketExposure(_ context.Context, market string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marketExposure[strings.ToLower(market)], nil
}

func (s *MemoryStore) AddMarketExposure(_ context.Context, market string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketExposure[strings.ToLower(market)] += delta
	return nil
}

func (s *MemoryStore) SideExposure(_ context.Context, side int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sideExposure[sideKey(side)], nil
}

func (s *MemoryStore) AddSideExposure(_ context.Context, side int, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sideExposure[sideKey(side)] += delta
	return nil
}

func (s *MemoryStore) ReplaceExposureSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolExposure = make(map[string]float64, len(snap.SymbolExposure))
	for sym, exp := range snap.SymbolExposure {
		s.symbolExposure[strings.ToUpper(sym)] = exp
	}
	s.marketExposure = make(map[string]float64, len(snap.MarketExposure))
	for mkt, exp := range snap.MarketExposure {
		s.marketExposure[strings.ToLower(mkt)] = exp
	}
	s.sideExposure = map[string]float64{"long": snap.LongExposure, "short": snap.ShortExposure}
	s.totalExposure = snap.TotalExposure
	return nil
}

func (s *MemoryStore) DailyRealizedPnL(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyRealized, nil
}

func (s *MemoryStore) AddDailyRealizedPnL(_ context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyRealized += delta
	return nil
}
