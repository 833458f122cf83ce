package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Service turns EntityEvents into one SignalEvent per mentioned symbol.
type Service struct {
	Provider   *Provider
	DefaultTTL int
}

// New builds a Service.
func New(provider *Provider, defaultTTLSec int) *Service {
	return &Service{Provider: provider, DefaultTTL: defaultTTLSec}
}

// Handle is the busworker.Handler for the signal stage.
func (s *Service) Handle(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamNewsEntity, record.Payload)
	if err != nil {
		return nil, err
	}
	event, ok := decoded.(models.EntityEvent)
	if !ok {
		return nil, fmt.Errorf("signal: unexpected decoded type %T", decoded)
	}

	outputs := make([]busworker.Output, 0, len(event.Symbols))
	for _, symbol := range event.Symbols {
		inf := s.Provider.Infer(ctx, event.Title, event.Content, symbol)

		sig := models.SignalEvent{
			BaseEvent:   models.BaseEvent{SchemaVersion: models.SchemaVersion},
			EventID:     event.EventID,
			Symbol:      symbol,
			Side:        inf.Side,
			Strength:    inf.Strength,
			Confidence:  inf.Confidence,
			HorizonMin:  inf.HorizonMin,
			TTLSec:      s.DefaultTTL,
			Rationale:   inf.Rationale,
			GeneratedAt: time.Now().UTC(),
		}

		payload, err := models.Encode(sig)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, busworker.Output{Stream: models.StreamSignalRaw, Payload: payload})
	}
	return outputs, nil
}
