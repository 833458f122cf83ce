// Package universe implements the universe-filter stage: it passes
// through only tradeable signals whose symbol is both a USDT pair and a
// member of the configured tradable universe.
package universe

import (
	"context"
	"fmt"
	"strings"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Service filters signals to the tradable universe.
type Service struct {
	Universe map[string]bool
}

// New builds a Service scoped to universe (uppercased symbol set).
func New(universe map[string]bool) *Service {
	return &Service{Universe: universe}
}

// Handle is the busworker.Handler for the universe stage.
func (s *Service) Handle(_ context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamSignalTradeable, record.Payload)
	if err != nil {
		return nil, err
	}
	sig, ok := decoded.(models.SignalEvent)
	if !ok {
		return nil, fmt.Errorf("universe: unexpected decoded type %T", decoded)
	}

	if !strings.HasSuffix(sig.Symbol, "USDT") {
		return nil, nil
	}
	if !s.Universe[strings.ToUpper(sig.Symbol)] {
		return nil, nil
	}

	payload, err := models.Encode(sig)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamSignalUniverse, Payload: payload}}, nil
}
