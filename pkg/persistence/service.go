package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// statusRank orders execution-report statuses so merge_execution_state can
// tell whether an incoming report represents forward progress. Equal rank
// falls through to a timestamp comparison.
var statusRank = map[string]int{
	"new":             0,
	"partially_filled": 1,
	"filled":          3,
	"rejected":        3,
	"canceled":        3,
}

func rankOf(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return 0
}

// Service upserts every pipeline event type into Postgres, keyed for
// idempotent replay: re-processing the same news, intent, risk-decision
// or execution event is always a no-op or a monotonic merge, never a
// duplicate row. PnL snapshots are the exception: each one is inserted as
// a new row, so re-processing a snapshot adds another row.
type Service struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB.
func New(client *Client) *Service {
	return &Service{db: client.db}
}

// HandleNews upserts a news.raw event keyed on event_id.
func (s *Service) HandleNews(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamNewsRaw, record.Payload)
	if err != nil {
		return nil, err
	}
	news, ok := decoded.(models.NewsEvent)
	if !ok {
		return nil, fmt.Errorf("persistence: unexpected decoded type %T", decoded)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO news_events (event_id, source, published_at, title, content, lang, url, dedup_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		news.EventID, news.Source, news.PublishedAt, news.Title, news.Content, news.Lang, news.URL, news.DedupHash)
	if err != nil {
		return nil, fmt.Errorf("persistence: insert news_events: %w", err)
	}
	return nil, nil
}

// HandleIntent upserts an order.intent event keyed on intent_id.
func (s *Service) HandleIntent(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamOrderIntent, record.Payload)
	if err != nil {
		return nil, err
	}
	intent, ok := decoded.(models.OrderIntent)
	if !ok {
		return nil, fmt.Errorf("persistence: unexpected decoded type %T", decoded)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_intents (intent_id, event_id, symbol, market, side, qty_usd, max_slippage_bps, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (intent_id) DO NOTHING`,
		intent.IntentID, intent.EventID, intent.Symbol, intent.Market, intent.Side,
		intent.QtyUSD, intent.MaxSlippageBps, intent.Reason)
	if err != nil {
		return nil, fmt.Errorf("persistence: insert order_intents: %w", err)
	}
	return nil, nil
}

// HandleRiskDecision upserts an order.rejected RiskDecision keyed on
// intent_id. order.approved carries an OrderIntent, not a RiskDecision,
// so a record from that stream fails the type check and returns an error.
func (s *Service) HandleRiskDecision(ctx context.Context, record bus.Record, stream string) ([]busworker.Output, error) {
	decoded, err := models.Decode(stream, record.Payload)
	if err != nil {
		return nil, err
	}
	decision, ok := decoded.(models.RiskDecision)
	if !ok {
		return nil, fmt.Errorf("persistence: unexpected decoded type %T", decoded)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_decisions (intent_id, allow, reason_code, capped_qty_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (intent_id) DO UPDATE SET
			allow = EXCLUDED.allow,
			reason_code = EXCLUDED.reason_code,
			capped_qty_usd = EXCLUDED.capped_qty_usd`,
		decision.IntentID, decision.Allow, decision.ReasonCode, decision.CappedQtyUSD)
	if err != nil {
		return nil, fmt.Errorf("persistence: upsert risk_decisions: %w", err)
	}
	return nil, nil
}

// HandleExecution records an execution.report event in two steps: an
// append-only insert into execution_report_events (a no-op on a duplicate
// tuple), then a merge of the current execution_reports row, matching
// merge_execution_state's rank-then-timestamp precedence.
func (s *Service) HandleExecution(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamExecutionReport, record.Payload)
	if err != nil {
		return nil, err
	}
	report, ok := decoded.(models.ExecutionReport)
	if !ok {
		return nil, fmt.Errorf("persistence: unexpected decoded type %T", decoded)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_report_events
			(order_id, intent_id, symbol, market, side, status, filled_qty, avg_price, fee, ts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (order_id, status, filled_qty, avg_price, fee, ts) DO NOTHING`,
		report.OrderID, report.IntentID, report.Symbol, report.Market, report.Side,
		report.Status, report.FilledQty, report.AvgPrice, report.Fee, report.Ts, string(record.Payload))
	if err != nil {
		return nil, fmt.Errorf("persistence: insert execution_report_events: %w", err)
	}

	var current models.ExecutionReport
	err = tx.QueryRowContext(ctx, `
		SELECT order_id, intent_id, symbol, market, side, filled_qty, avg_price, fee, status, ts
		FROM execution_reports WHERE order_id = $1`, report.OrderID).
		Scan(&current.OrderID, &current.IntentID, &current.Symbol, &current.Market, &current.Side,
			&current.FilledQty, &current.AvgPrice, &current.Fee, &current.Status, &current.Ts)
	switch {
	case err == sql.ErrNoRows:
		current = report
	case err != nil:
		return nil, fmt.Errorf("persistence: select execution_reports: %w", err)
	default:
		current = mergeExecutionState(current, report)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_reports
			(order_id, intent_id, symbol, market, side, filled_qty, avg_price, fee, status, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id) DO UPDATE SET
			filled_qty = EXCLUDED.filled_qty,
			avg_price = EXCLUDED.avg_price,
			fee = EXCLUDED.fee,
			status = EXCLUDED.status,
			ts = EXCLUDED.ts`,
		current.OrderID, current.IntentID, current.Symbol, current.Market, current.Side,
		current.FilledQty, current.AvgPrice, current.Fee, current.Status, current.Ts)
	if err != nil {
		return nil, fmt.Errorf("persistence: upsert execution_reports: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("persistence: commit: %w", err)
	}
	return nil, nil
}

// mergeExecutionState folds incoming into current field-by-field so a
// reordered or re-delivered report can never roll the row backwards:
// status only advances on a higher rank (or a same-rank report with a
// later timestamp), while filled_qty/fee/ts are each taken as the max
// independently of which side "won" status.
func mergeExecutionState(current, incoming models.ExecutionReport) models.ExecutionReport {
	merged := current

	currentRank := rankOf(current.Status)
	incomingRank := rankOf(incoming.Status)
	if incomingRank > currentRank || (incomingRank == currentRank && !incoming.Ts.Before(current.Ts)) {
		merged.Status = incoming.Status
	}
	if incoming.FilledQty > merged.FilledQty {
		merged.FilledQty = incoming.FilledQty
	}
	if incoming.Fee > merged.Fee {
		merged.Fee = incoming.Fee
	}
	if incoming.Ts.After(merged.Ts) {
		merged.Ts = incoming.Ts
	}
	if incoming.FilledQty >= current.FilledQty {
		merged.AvgPrice = incoming.AvgPrice
	}
	return merged
}

// HandlePnL upserts a pnl.snapshot event as an append-only row.
func (s *Service) HandlePnL(ctx context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamPnLSnapshot, record.Payload)
	if err != nil {
		return nil, err
	}
	snap, ok := decoded.(models.PnLSnapshot)
	if !ok {
		return nil, fmt.Errorf("persistence: unexpected decoded type %T", decoded)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pnl_snapshots (ts, account, unrealized, realized, exposure, drawdown)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.Ts, snap.Account, snap.Unrealized, snap.Realized, snap.Exposure, snap.Drawdown)
	if err != nil {
		return nil, fmt.Errorf("persistence: insert pnl_snapshots: %w", err)
	}
	return nil, nil
}
