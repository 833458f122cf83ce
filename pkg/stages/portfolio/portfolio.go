// Package portfolio implements the portfolio-sizing stage: it turns a
// universe-approved signal into a sized OrderIntent.
package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Service sizes order intents from signals.
type Service struct {
	AccountEquityUSD float64
	RiskPerTradePct  float64
	MaxSlippageBps   int
}

// New builds a Service.
func New(accountEquityUSD, riskPerTradePct float64, maxSlippageBps int) *Service {
	return &Service{AccountEquityUSD: accountEquityUSD, RiskPerTradePct: riskPerTradePct, MaxSlippageBps: maxSlippageBps}
}

// Handle is the busworker.Handler for the portfolio stage.
func (s *Service) Handle(_ context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamSignalUniverse, record.Payload)
	if err != nil {
		return nil, err
	}
	sig, ok := decoded.(models.SignalEvent)
	if !ok {
		return nil, fmt.Errorf("portfolio: unexpected decoded type %T", decoded)
	}

	baseRiskCapital := s.AccountEquityUSD * s.RiskPerTradePct
	strengthFactor := sig.Strength
	if strengthFactor < 0.2 {
		strengthFactor = 0.2
	}
	qtyUSD := baseRiskCapital * strengthFactor
	if qtyUSD < 10.0 {
		qtyUSD = 10.0
	}

	market := "perp"
	if sig.Side > 0 {
		market = "spot"
	}

	intent := models.OrderIntent{
		BaseEvent:      models.BaseEvent{SchemaVersion: models.SchemaVersion},
		IntentID:       strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		EventID:        sig.EventID,
		Symbol:         sig.Symbol,
		Market:         market,
		Side:           sig.Side,
		QtyUSD:         qtyUSD,
		MaxSlippageBps: s.MaxSlippageBps,
		Reason:         fmt.Sprintf("signal strength=%.3f conf=%.3f", sig.Strength, sig.Confidence),
	}

	payload, err := models.Encode(intent)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamOrderIntent, Payload: payload}}, nil
}
