// Package entity implements the entity-extraction stage: it scans raw
// news text for tradable symbols and topical tags and emits an
// EntityEvent when at least one symbol is found.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// symbolAliases maps a common-name mention to the exchange symbol it
// refers to, grounded on the source service's SYMBOL_ALIASES table.
var symbolAliases = map[string]string{
	"bitcoin":    "BTCUSDT",
	"ethereum":   "ETHUSDT",
	"bnb":        "BNBUSDT",
	"solana":     "SOLUSDT",
	"xrp":        "XRPUSDT",
	"cardano":    "ADAUSDT",
	"dogecoin":   "DOGEUSDT",
	"chainlink":  "LINKUSDT",
	"avalanche":  "AVAXUSDT",
	"toncoin":    "TONUSDT",
}

// tagKeywords maps a lowercase keyword to the tag it contributes,
// grounded on TAG_KEYWORDS.
var tagKeywords = map[string]string{
	"etf":         "macro",
	"hack":        "security",
	"exploit":     "security",
	"partnership": "adoption",
	"listing":     "exchange",
	"delist":      "exchange",
	"regulation":  "regulation",
	"sec":         "regulation",
}

var aliasWordBoundary = buildAliasPattern()

func buildAliasPattern() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(symbolAliases))
	for alias := range symbolAliases {
		out[alias] = regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
	}
	return out
}

// Service extracts symbols and tags from news text.
type Service struct {
	Universe map[string]bool // uppercased tradable symbols
}

// New returns a Service scoped to the given tradable universe.
func New(universe map[string]bool) *Service {
	return &Service{Universe: universe}
}

// ExtractSymbols returns the sorted, deduplicated set of symbols
// mentioned in text, matching both literal universe symbols and known
// common-name aliases.
func (s *Service) ExtractSymbols(text string) []string {
	found := make(map[string]bool)

	upper := strings.ToUpper(text)
	for symbol := range s.Universe {
		if strings.Contains(upper, symbol) {
			found[symbol] = true
		}
	}

	lower := strings.ToLower(text)
	for alias, symbol := range symbolAliases {
		if aliasWordBoundary[alias].MatchString(lower) {
			found[symbol] = true
		}
	}

	out := make([]string, 0, len(found))
	for sym := range found {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ExtractTags returns the sorted, deduplicated set of topical tags
// implied by any keyword present in text.
func (s *Service) ExtractTags(text string) []string {
	lower := strings.ToLower(text)
	found := make(map[string]bool)
	for keyword, tag := range tagKeywords {
		if strings.Contains(lower, keyword) {
			found[tag] = true
		}
	}
	out := make([]string, 0, len(found))
	for tag := range found {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Handle is the busworker.Handler for the entity stage: it decodes a
// NewsEvent, extracts symbols/tags, and emits an EntityEvent to
// news.entity unless no symbols were found.
func (s *Service) Handle(_ context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamNewsRaw, record.Payload)
	if err != nil {
		return nil, err
	}
	news, ok := decoded.(models.NewsEvent)
	if !ok {
		return nil, fmt.Errorf("entity: unexpected decoded type %T", decoded)
	}

	mergedText := news.Title + "\n" + news.Content
	symbols := s.ExtractSymbols(mergedText)
	tags := s.ExtractTags(mergedText)

	if len(symbols) == 0 {
		slog.Debug("entity: no symbols extracted", "event_id", news.EventID)
		return nil, nil
	}

	relevance := 0.5 + 0.1*float64(len(tags)) + 0.1*float64(len(symbols))
	if relevance > 1.0 {
		relevance = 1.0
	}

	entity := models.EntityEvent{
		BaseEvent:      models.BaseEvent{SchemaVersion: models.SchemaVersion},
		EventID:        news.EventID,
		Symbols:        symbols,
		Tags:           tags,
		Regions:        []string{},
		RelevanceScore: relevance,
		Title:          news.Title,
		Content:        news.Content,
	}

	payload, err := models.Encode(entity)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamNewsEntity, Payload: payload}}, nil
}
