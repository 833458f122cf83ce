// Package fusion implements the signal-fusion stage: it applies the
// ordered drop rules (neutral side, low confidence, staleness, opposite-
// side conflict) and scales surviving signals' strength by the fusion
// formula (a factor between 0.8 and 1.0, set by confidence) before
// republishing them as tradeable.
package fusion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

const conflictWindow = 30 * time.Minute

// Service fuses incoming signal.raw events into signal.tradeable,
// holding the last surviving signal per symbol for conflict suppression.
type Service struct {
	MinConfidence float64

	mu         sync.Mutex
	lastSignal map[string]models.SignalEvent
}

// New builds a Service.
func New(minConfidence float64) *Service {
	return &Service{MinConfidence: minConfidence, lastSignal: make(map[string]models.SignalEvent)}
}

// Handle is the busworker.Handler for the fusion stage.
func (s *Service) Handle(_ context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamSignalRaw, record.Payload)
	if err != nil {
		return nil, err
	}
	sig, ok := decoded.(models.SignalEvent)
	if !ok {
		return nil, fmt.Errorf("fusion: unexpected decoded type %T", decoded)
	}

	if sig.Side == 0 {
		return nil, nil
	}
	if sig.Confidence < s.MinConfidence {
		return nil, nil
	}
	if sig.IsStale(time.Now()) {
		return nil, nil
	}

	s.mu.Lock()
	prev, hasPrev := s.lastSignal[strings.ToUpper(sig.Symbol)]
	s.mu.Unlock()

	if hasPrev {
		delta := absFloat(sig.GeneratedAt.Sub(prev.GeneratedAt).Seconds())
		opposite := sig.Side != prev.Side
		closeStrength := absFloat(sig.Strength-prev.Strength) < 0.2
		if opposite && delta <= conflictWindow.Seconds() && closeStrength {
			return nil, nil
		}
	}

	fusedStrength := sig.Strength * (0.8 + 0.2*sig.Confidence)
	if fusedStrength > 1.0 {
		fusedStrength = 1.0
	}

	fused := sig
	fused.Strength = fusedStrength
	fused.GeneratedAt = time.Now().UTC()
	fused.Rationale = "fused: " + sig.Rationale

	s.mu.Lock()
	s.lastSignal[strings.ToUpper(sig.Symbol)] = fused
	s.mu.Unlock()

	payload, err := models.Encode(fused)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamSignalTradeable, Payload: payload}}, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
