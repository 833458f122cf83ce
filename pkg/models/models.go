// Package models defines the wire-level event types carried on the event
// bus streams, and the stream-name -> type registry used to decode them.
// Every type embeds BaseEvent so a schema_version tag rides along on the
// wire, matching the Python source's pydantic BaseEvent.
package models

import "time"

// Stream names. These are the literal keys used on the event bus and must
// match across every producer/consumer pair.
const (
	StreamNewsRaw          = "news.raw"
	StreamNewsEntity       = "news.entity"
	StreamSignalRaw        = "signal.raw"
	StreamSignalTradeable  = "signal.tradeable"
	StreamSignalUniverse   = "signal.universe"
	StreamOrderIntent      = "order.intent"
	StreamOrderApproved    = "order.approved"
	StreamOrderRejected    = "order.rejected"
	StreamExecutionReport  = "execution.report"
	StreamPnLSnapshot      = "pnl.snapshot"
	StreamRiskAlert        = "risk.alert"
)

// SchemaVersion is the current wire schema version stamped on every event.
const SchemaVersion = "1.0"

// BaseEvent carries the schema_version every event type embeds.
type BaseEvent struct {
	SchemaVersion string `json:"schema_version"`
}

func newBase() BaseEvent { return BaseEvent{SchemaVersion: SchemaVersion} }

// NewsEvent is a raw ingested news item, published to news.raw.
type NewsEvent struct {
	BaseEvent
	EventID     string    `json:"event_id"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Lang        string    `json:"lang"`
	URL         string    `json:"url"`
	DedupHash   string    `json:"dedup_hash"`
}

// NewNewsEvent fills in the schema_version and defaults (Lang="en").
func NewNewsEvent(eventID, source string, publishedAt time.Time, title, content string) NewsEvent {
	return NewsEvent{
		BaseEvent:   newBase(),
		EventID:     eventID,
		Source:      source,
		PublishedAt: publishedAt,
		Title:       title,
		Content:     content,
		Lang:        "en",
	}
}

// EntityEvent is the output of the entity-extraction stage, published to
// news.entity.
type EntityEvent struct {
	BaseEvent
	EventID        string   `json:"event_id"`
	Symbols        []string `json:"symbols"`
	Tags           []string `json:"tags"`
	Regions        []string `json:"regions"`
	RelevanceScore float64  `json:"relevance_score"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
}

// SignalEvent is a directional trading signal, published to signal.raw,
// signal.tradeable, and signal.universe at successive pipeline stages.
type SignalEvent struct {
	BaseEvent
	EventID     string    `json:"event_id"`
	Symbol      string    `json:"symbol"`
	Side        int       `json:"side"` // -1, 0, or 1
	Strength    float64   `json:"strength"`
	Confidence  float64   `json:"confidence"`
	HorizonMin  int       `json:"horizon_min"`
	TTLSec      int       `json:"ttl_sec"`
	Rationale   string    `json:"rationale"`
	GeneratedAt time.Time `json:"generated_at"`
}

// IsStale reports whether the signal's TTL has elapsed as of now.
func (s SignalEvent) IsStale(now time.Time) bool {
	return now.Sub(s.GeneratedAt).Seconds() > float64(s.TTLSec)
}

// OrderIntent is a sized trade proposal awaiting risk review, published to
// order.intent.
type OrderIntent struct {
	BaseEvent
	IntentID       string  `json:"intent_id"`
	EventID        string  `json:"event_id"`
	Symbol         string  `json:"symbol"`
	Market         string  `json:"market"` // "spot" | "perp"
	Side           int     `json:"side"`   // -1 | 1
	QtyUSD         float64 `json:"qty_usd"`
	MaxSlippageBps int     `json:"max_slippage_bps"`
	Reason         string  `json:"reason"`
}

// RiskDecision is the risk stage's verdict on an OrderIntent, published to
// order.rejected when Allow is false (approved intents are republished
// to order.approved as OrderIntents with qty_usd set to the capped amount).
type RiskDecision struct {
	BaseEvent
	IntentID     string  `json:"intent_id"`
	Allow        bool    `json:"allow"`
	ReasonCode   string  `json:"reason_code"`
	CappedQtyUSD float64 `json:"capped_qty_usd"`
}

// ExecutionReport is a fill/rejection report from the exchange adapter,
// published to execution.report. Multiple reports may arrive for the same
// order_id as its status progresses.
type ExecutionReport struct {
	BaseEvent
	OrderID   string    `json:"order_id"`
	IntentID  string    `json:"intent_id"`
	Symbol    string    `json:"symbol"`
	Market    string    `json:"market"`
	Side      int       `json:"side"`
	Status    string    `json:"status"` // new|partially_filled|filled|rejected|canceled
	FilledQty float64   `json:"filled_qty"`
	AvgPrice  float64   `json:"avg_price"`
	Fee       float64   `json:"fee"`
	Ts        time.Time `json:"ts"`
}

// PnLSnapshot is a point-in-time account snapshot, published to
// pnl.snapshot.
type PnLSnapshot struct {
	BaseEvent
	Ts         time.Time `json:"ts"`
	Account    string    `json:"account"`
	Unrealized float64   `json:"unrealized"`
	Realized   float64   `json:"realized"`
	Exposure   float64   `json:"exposure"`
	Drawdown   float64   `json:"drawdown"`
}

// NewPnLSnapshot stamps Ts/Account defaults the way the Python model's
// default_factory does.
func NewPnLSnapshot(ts time.Time) PnLSnapshot {
	return PnLSnapshot{BaseEvent: newBase(), Ts: ts, Account: "paper"}
}
