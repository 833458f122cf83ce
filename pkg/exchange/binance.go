package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/cenkalti/backoff/v4"

	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// statusMap normalizes Binance order statuses onto the pipeline's five
// execution-report statuses, matching the Python adapter's _parse_status.
var statusMap = map[string]string{
	"NEW":              "new",
	"PARTIALLY_FILLED":  "partially_filled",
	"FILLED":           "filled",
	"REJECTED":         "rejected",
	"CANCELED":         "canceled",
	"EXPIRED":          "canceled",
}

func normalizeStatus(status string) string {
	if v, ok := statusMap[status]; ok {
		return v
	}
	return "new"
}

// BinanceAdapter places live orders via the go-binance REST clients for
// spot and USDT-M futures markets. Retries use exponential backoff,
// matching the resilience idiom the rest of the pipeline uses for its
// LLM provider calls.
type BinanceAdapter struct {
	spot    *binance.Client
	futures *futures.Client
}

// NewBinanceAdapter builds a live adapter. apiKey/apiSecret are required;
// callers (exchange.Build) enforce that before construction.
func NewBinanceAdapter(apiKey, apiSecret string, useTestnet bool, recvWindowMs int) *BinanceAdapter {
	binance.UseTestnet = useTestnet
	futures.UseTestnet = useTestnet

	spotClient := binance.NewClient(apiKey, apiSecret)
	futuresClient := futures.NewClient(apiKey, apiSecret)
	_ = recvWindowMs // go-binance manages recvWindow internally per-request

	return &BinanceAdapter{spot: spotClient, futures: futuresClient}
}

func retryBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 8 * time.Second
	return bo
}

func (a *BinanceAdapter) PlaceOrder(ctx context.Context, intent models.OrderIntent) (models.ExecutionReport, error) {
	side := binance.SideTypeBuy
	if intent.Side < 0 {
		side = binance.SideTypeSell
	}
	clientOrderID := intent.IntentID
	if len(clientOrderID) > 32 {
		clientOrderID = clientOrderID[:32]
	}

	if intent.Market == "spot" {
		return a.placeSpotOrder(ctx, intent, side, clientOrderID)
	}
	return a.placePerpOrder(ctx, intent, clientOrderID)
}

func (a *BinanceAdapter) placeSpotOrder(ctx context.Context, intent models.OrderIntent, side binance.SideType, clientOrderID string) (models.ExecutionReport, error) {
	var resp *binance.CreateOrderResponse
	err := backoff.Retry(func() error {
		var err error
		resp, err = a.spot.NewCreateOrderService().
			Symbol(intent.Symbol).
			Side(side).
			Type(binance.OrderTypeMarket).
			QuoteOrderQty(strconv.FormatFloat(intent.QtyUSD, 'f', 2, 64)).
			NewClientOrderID(clientOrderID).
			Do(ctx)
		return err
	}, backoff.WithMaxRetries(retryBackoff(), 2))
	if err != nil {
		return models.ExecutionReport{}, fmt.Errorf("exchange: spot order failed: %w", err)
	}

	filledQty, err := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if err != nil {
		filledQty = 0
	}

	var avgPrice, fee float64
	if len(resp.Fills) > 0 {
		var totalQuote, totalQty float64
		for _, f := range resp.Fills {
			price, _ := strconv.ParseFloat(f.Price, 64)
			qty, _ := strconv.ParseFloat(f.Quantity, 64)
			commission, _ := strconv.ParseFloat(f.Commission, 64)
			totalQuote += price * qty
			totalQty += qty
			fee += commission
		}
		if totalQty > 0 {
			avgPrice = totalQuote / totalQty
		}
	} else {
		cumQuote, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
		if filledQty > 1e-9 {
			avgPrice = cumQuote / filledQty
		}
	}

	return models.ExecutionReport{
		BaseEvent: models.BaseEvent{SchemaVersion: models.SchemaVersion},
		OrderID:   fmt.Sprintf("spot:%s:%d", intent.Symbol, resp.OrderID),
		IntentID:  intent.IntentID,
		Symbol:    intent.Symbol,
		Market:    "spot",
		Side:      intent.Side,
		Status:    normalizeStatus(string(resp.Status)),
		FilledQty: filledQty,
		AvgPrice:  avgPrice,
		Fee:       fee,
		Ts:        time.Now().UTC(),
	}, nil
}

func (a *BinanceAdapter) placePerpOrder(ctx context.Context, intent models.OrderIntent, clientOrderID string) (models.ExecutionReport, error) {
	markPrices, err := a.futures.NewListSymbolMarkPriceService().Symbol(intent.Symbol).Do(ctx)
	if err != nil || len(markPrices) == 0 {
		return models.ExecutionReport{}, fmt.Errorf("exchange: fetch mark price: %w", err)
	}
	markPrice, _ := strconv.ParseFloat(markPrices[0].MarkPrice, 64)
	if markPrice <= 0 {
		markPrice = 1e-9
	}
	quantity := intent.QtyUSD / markPrice
	if quantity < 0.001 {
		quantity = 0.001
	}

	side := futures.SideTypeBuy
	if intent.Side < 0 {
		side = futures.SideTypeSell
	}

	var resp *futures.CreateOrderResponse
	err = backoff.Retry(func() error {
		var err error
		resp, err = a.futures.NewCreateOrderService().
			Symbol(intent.Symbol).
			Side(side).
			Type(futures.OrderTypeMarket).
			Quantity(strconv.FormatFloat(quantity, 'f', 3, 64)).
			NewClientOrderID(clientOrderID).
			Do(ctx)
		return err
	}, backoff.WithMaxRetries(retryBackoff(), 2))
	if err != nil {
		return models.ExecutionReport{}, fmt.Errorf("exchange: perp order failed: %w", err)
	}

	filledQty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if filledQty == 0 {
		filledQty = quantity
	}
	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	if avgPrice == 0 {
		avgPrice = markPrice
	}

	return models.ExecutionReport{
		BaseEvent: models.BaseEvent{SchemaVersion: models.SchemaVersion},
		OrderID:   fmt.Sprintf("perp:%s:%d", intent.Symbol, resp.OrderID),
		IntentID:  intent.IntentID,
		Symbol:    intent.Symbol,
		Market:    "perp",
		Side:      intent.Side,
		Status:    normalizeStatus(string(resp.Status)),
		FilledQty: filledQty,
		AvgPrice:  avgPrice,
		Fee:       0,
		Ts:        time.Now().UTC(),
	}, nil
}

func (a *BinanceAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	market, symbol, exchangeOrderID, err := splitOrderID(orderID)
	if err != nil {
		return false, err
	}
	id, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("exchange: invalid exchange order id %q: %w", exchangeOrderID, err)
	}

	if market == "spot" {
		_, err := a.spot.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		return err == nil, err
	}
	_, err = a.futures.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	return err == nil, err
}

func splitOrderID(orderID string) (market, symbol, exchangeOrderID string, err error) {
	parts := make([]string, 0, 3)
	start := 0
	for i, c := range orderID {
		if c == ':' {
			parts = append(parts, orderID[start:i])
			start = i + 1
		}
	}
	parts = append(parts, orderID[start:])
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("exchange: order_id must be market:symbol:exchange_order_id, got %q", orderID)
	}
	return parts[0], parts[1], parts[2], nil
}

func (a *BinanceAdapter) FetchPositions(ctx context.Context) ([]Position, error) {
	var positions []Position

	account, err := a.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch spot account: %w", err)
	}
	priceCache := make(map[string]float64)
	for _, bal := range account.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		total := free + locked
		if total <= 0 {
			continue
		}
		asset := bal.Asset
		if asset == "USDT" || asset == "BUSD" || asset == "USDC" {
			continue
		}
		symbol := asset + "USDT"
		px, ok := priceCache[symbol]
		if !ok {
			ticker, err := a.spot.NewListPricesService().Symbol(symbol).Do(ctx)
			if err != nil || len(ticker) == 0 {
				px = 0
			} else {
				px, _ = strconv.ParseFloat(ticker[0].Price, 64)
			}
			priceCache[symbol] = px
		}
		notional := total * px
		if notional < 0 {
			notional = -notional
		}
		positions = append(positions, Position{Market: "spot", Symbol: symbol, Qty: total, NotionalUSD: notional})
	}

	perpPositions, err := a.futures.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch perp positions: %w", err)
	}
	for _, p := range perpPositions {
		qty, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		notional, _ := strconv.ParseFloat(p.Notional, 64)
		if notional < 0 {
			notional = -notional
		}
		positions = append(positions, Position{Market: "perp", Symbol: p.Symbol, Qty: qty, NotionalUSD: notional})
	}

	return positions, nil
}

// StreamExecutionEvents opens Binance's spot and futures user-data
// websockets and normalizes their events into AdapterEvents: execution
// reports, plus alerts when the underlying listen key's keepalive fails
// or the socket drops, matching the Python adapter's _build_alert path.
// Either stream reconnecting after a drop logs and retries rather than
// ending the whole stream, matching the Python adapter's reconnect loop.
func (a *BinanceAdapter) StreamExecutionEvents(ctx context.Context) (<-chan AdapterEvent, error) {
	out := make(chan AdapterEvent, 32)

	spotListenKey, err := a.spot.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: create spot listen key: %w", err)
	}
	futuresListenKey, err := a.futures.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: create futures listen key: %w", err)
	}

	go a.runUserDataStream(ctx, "spot", spotListenKey, out)
	go a.runUserDataStream(ctx, "perp", futuresListenKey, out)

	go func() {
		<-ctx.Done()
		close(out)
	}()

	return out, nil
}

// keepaliveListenKey pings Binance every 30 minutes to keep listenKey
// alive, matching the Python adapter's _keepalive_listen_key. It returns
// (nil only via ctx cancellation) the first keepalive error it hits so
// the caller can alert and reconnect, mirroring the Python task's
// exception surfacing through the stream queue.
func (a *BinanceAdapter) keepaliveListenKey(ctx context.Context, market, listenKey string) error {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var err error
			if market == "spot" {
				err = a.spot.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
			} else {
				err = a.futures.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
			}
			if err != nil {
				return err
			}
		}
	}
}

func (a *BinanceAdapter) runUserDataStream(ctx context.Context, market, listenKey string, out chan<- AdapterEvent) {
	log := slog.With("component", "exchange.binance", "market", market)

	sendAlert := func(severity, message string) {
		select {
		case out <- AdapterEvent{Type: "alert", Severity: severity, Message: message}:
		case <-ctx.Done():
		}
	}
	sendExecution := func(orderID, clientOrderID, symbol string, side int, status string, filledQty, avgPrice float64) {
		report := models.ExecutionReport{
			BaseEvent: models.BaseEvent{SchemaVersion: models.SchemaVersion},
			OrderID:   orderID,
			IntentID:  clientOrderID,
			Symbol:    symbol,
			Market:    market,
			Side:      side,
			Status:    normalizeStatus(status),
			FilledQty: filledQty,
			AvgPrice:  avgPrice,
			Fee:       0,
			Ts:        time.Now().UTC(),
		}
		select {
		case out <- AdapterEvent{Type: "execution", Report: report}:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		keepaliveCtx, cancelKeepalive := context.WithCancel(ctx)
		keepaliveErr := make(chan error, 1)
		go func() { keepaliveErr <- a.keepaliveListenKey(keepaliveCtx, market, listenKey) }()

		var doneC, stopC chan struct{}
		var err error
		if market == "spot" {
			doneC, stopC, err = binance.WsUserDataServe(listenKey, func(event *binance.WsUserDataEvent) {
				if event.Event != binance.UserDataEventTypeExecutionReport {
					return
				}
				filledQty, _ := strconv.ParseFloat(event.OrderUpdate.AccumulatedFilledQty, 64)
				quoteFilled, _ := strconv.ParseFloat(event.OrderUpdate.AccumulatedQuoteTransactedQty, 64)
				var avgPrice float64
				if filledQty > 0 {
					avgPrice = quoteFilled / filledQty
				}
				side := 1
				if event.OrderUpdate.Side == "SELL" {
					side = -1
				}
				sendExecution(
					fmt.Sprintf("spot:%s:%d", event.OrderUpdate.Symbol, event.OrderUpdate.Id),
					event.OrderUpdate.ClientOrderId, event.OrderUpdate.Symbol, side,
					event.OrderUpdate.Status, filledQty, avgPrice,
				)
			}, func(err error) {
				log.Warn("user data stream error", "error", err)
			})
		} else {
			doneC, stopC, err = futures.WsUserDataServe(listenKey, func(event *futures.WsUserDataEvent) {
				if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
					return
				}
				upd := event.OrderTradeUpdate
				filledQty, _ := strconv.ParseFloat(upd.AccumulatedFilledQty, 64)
				avgPrice, _ := strconv.ParseFloat(upd.AveragePrice, 64)
				side := 1
				if upd.Side == "SELL" {
					side = -1
				}
				sendExecution(
					fmt.Sprintf("perp:%s:%d", upd.Symbol, upd.ID),
					upd.ClientOrderId, upd.Symbol, side,
					string(upd.Status), filledQty, avgPrice,
				)
			}, func(err error) {
				log.Warn("user data stream error", "error", err)
			})
		}
		if err != nil {
			cancelKeepalive()
			log.Warn("user data stream connect failed, retrying", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}

		select {
		case <-ctx.Done():
			cancelKeepalive()
			close(stopC)
			return
		case kaErr := <-keepaliveErr:
			msg := fmt.Sprintf("Binance %s listenKey keepalive failed; reconnecting stream. error=%v", market, kaErr)
			log.Warn(msg)
			sendAlert("error", msg)
			close(stopC)
			cancelKeepalive()
			time.Sleep(2 * time.Second)
		case <-doneC:
			cancelKeepalive()
			msg := fmt.Sprintf("Binance %s user data stream disconnected; reconnecting.", market)
			log.Warn(msg)
			sendAlert("warning", msg)
			time.Sleep(2 * time.Second)
		}
	}
}
