package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/ident"
	"github.com/feedeater/feedeater/pkg/models"
)

// subscription routes a connection-scoped channel id to its stream.
type subscription struct {
	channel string
	symbol  string
}

// streamState is the per-invocation state machine behind the stream
// job. Single-flight dispatch guarantees one owner, so no locking.
type streamState struct {
	m   *Module
	s   *collect.Session
	ctx context.Context
	cfg Settings

	subs         map[int64]subscription
	candles      *collect.Candles
	books        map[string]*collect.Book
	lastSnapshot map[string]time.Time
}

// stream holds the public stream for one budget window: trades land as
// raw rows and candle folds, book frames maintain per-symbol books
// whose snapshots persist on the configured cadence.
func (m *Module) stream(ctx context.Context, s *collect.Session) error {
	cfg, err := parseSettings(s.Settings)
	if err != nil {
		return err
	}

	m.ensureLabels(ctx, s.NewFetcher(0), cfg.APIURL)

	st := &streamState{
		m:            m,
		s:            s,
		ctx:          ctx,
		cfg:          cfg,
		subs:         make(map[int64]subscription),
		candles:      collect.NewCandles(cfg.CandleInterval),
		books:        make(map[string]*collect.Book),
		lastSnapshot: make(map[string]time.Time),
	}

	err = s.RunWS(ctx, collect.WSConfig{
		URL:       cfg.WSURL,
		OnConnect: st.subscribe,
	}, st.handleFrame)

	st.flushCandles()
	return err
}

// subscribe sends the channel requests after every (re)connect.
// Channel ids are connection-scoped, so the routing table resets here;
// books rebuild from the snapshot each subscription replays.
func (st *streamState) subscribe(ctx context.Context, conn *collect.WSConn) error {
	st.subs = make(map[int64]subscription)
	for _, symbol := range st.cfg.Symbols {
		if err := conn.WriteJSON(ctx, map[string]any{
			"event":   "subscribe",
			"channel": "trades",
			"symbol":  symbol,
		}); err != nil {
			return err
		}
		if err := conn.WriteJSON(ctx, map[string]any{
			"event":   "subscribe",
			"channel": "book",
			"symbol":  symbol,
			"prec":    "P0",
			"freq":    "F0",
			"len":     strconv.Itoa(st.cfg.BookDepth),
		}); err != nil {
			return err
		}
	}

	st.s.Bus.PublishEvent(bus.EventStreamOnline, streamOnline{
		Symbols:     st.cfg.Symbols,
		ConnectedAt: time.Now().UTC(),
	})
	return nil
}

// streamOnline announces a fresh connection; consumers treat it as the
// boundary after which live frames resume.
type streamOnline struct {
	Symbols     []string  `json:"symbols"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (st *streamState) handleFrame(frame []byte) error {
	parsed := gjson.ParseBytes(frame)
	switch {
	case parsed.IsObject():
		return st.handleEvent(parsed)
	case parsed.IsArray():
		return st.handleChannel(parsed)
	default:
		return fmt.Errorf("unrecognized frame shape")
	}
}

func (st *streamState) handleEvent(v gjson.Result) error {
	ev := parseEventFrame(v)
	switch ev.Name {
	case "subscribed":
		st.subs[ev.ChanID] = subscription{channel: ev.Channel, symbol: ev.Symbol}
		if ev.Channel == "book" {
			st.books[ev.Symbol] = collect.NewBook(ev.Symbol, st.cfg.BookDepth)
		}
		st.s.Log.Info("Channel subscribed", map[string]any{
			"channel": ev.Channel, "symbol": ev.Symbol, "chanId": ev.ChanID,
		})
	case "error":
		return fmt.Errorf("subscribe rejected: %s (code %d)", ev.Msg, ev.Code)
	case "info":
		if ev.Code != 0 {
			st.s.Log.Warn("Platform status event", map[string]any{"code": ev.Code, "msg": ev.Msg})
		}
	}
	return nil
}

func (st *streamState) handleChannel(v gjson.Result) error {
	fields := v.Array()
	if len(fields) < 2 {
		return fmt.Errorf("channel frame has %d fields", len(fields))
	}
	chanID := fields[0].Int()
	sub, ok := st.subs[chanID]
	if !ok {
		return fmt.Errorf("frame for unknown channel %d", chanID)
	}

	payload := fields[1]
	if payload.Type == gjson.String {
		switch payload.String() {
		case "hb":
			return nil
		case "te", "tu":
			if len(fields) < 3 {
				return fmt.Errorf("%s frame missing trade payload", payload.String())
			}
			tr, err := parseTrade(fields[2])
			if err != nil {
				return err
			}
			// te announces the execution; tu re-sends it with the final
			// trade id and dedups on the insert path.
			return st.handleTrade(sub.symbol, tr, payload.String() == "te")
		default:
			// Checksums and other maintenance payloads are not consumed.
			return nil
		}
	}

	switch sub.channel {
	case "trades":
		// Subscription snapshot: recent history, stored as backfill.
		for _, raw := range payload.Array() {
			tr, err := parseTrade(raw)
			if err != nil {
				return err
			}
			if err := st.handleTrade(sub.symbol, tr, false); err != nil {
				return err
			}
		}
		return nil
	case "book":
		return st.handleBook(sub.symbol, payload)
	default:
		return nil
	}
}

// handleTrade persists one trade. Live executions additionally publish
// the tradeExecuted event and fold into the candle window; snapshot
// backfill and tu confirmations only touch the store.
func (st *streamState) handleTrade(symbol string, tr trade, live bool) error {
	fresh, err := st.insertTrade(symbol, tr)
	if err != nil {
		return err
	}
	if fresh {
		st.s.Count("trades_collected")
		if st.s.Bus.PublishMessage(st.tradeMessage(symbol, tr)) {
			st.s.Count("messages_published")
		}
	}
	if !live {
		return nil
	}

	st.s.Bus.PublishEvent(bus.EventTradeExecuted, tradeExecuted{
		Symbol:     symbol,
		TradeID:    tr.ID,
		Price:      tr.Price,
		Size:       tr.size(),
		Side:       tr.side(),
		ExecutedAt: tr.ExecutedAt,
	})

	if finished := st.candles.Apply(symbol, tr.ExecutedAt, tr.Price, tr.size()); finished != nil {
		st.storeCandle(st.ctx, finished)
	}
	return nil
}

// tradeExecuted is the domain event published for every live execution,
// regardless of whether the row was fresh.
type tradeExecuted struct {
	Symbol     string    `json:"symbol"`
	TradeID    int64     `json:"tradeId"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Side       string    `json:"side"`
	ExecutedAt time.Time `json:"executedAt"`
}

func (st *streamState) insertTrade(symbol string, tr trade) (bool, error) {
	id := tradeRecordID(symbol, tr.ID)
	now := time.Now().UTC()

	tag, err := st.s.Store.Exec(st.ctx, `
		INSERT INTO `+tradesTable+` (id, symbol, trade_id, price, amount, side, executed_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		id, symbol, tr.ID, tr.Price, tr.Amount, tr.side(), tr.ExecutedAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := st.s.Store.Exec(st.ctx, `
		INSERT INTO `+embeddingsTable+` (record_id, source_key, content, collected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO NOTHING`,
		id, symbol, st.tradeText(symbol, tr), now); err != nil {
		return true, fmt.Errorf("failed to insert retrieval row: %w", err)
	}
	return true, nil
}

func (st *streamState) tradeMessage(symbol string, tr trade) models.Message {
	return models.Message{
		ID:        tradeRecordID(symbol, tr.ID),
		CreatedAt: tr.ExecutedAt,
		Source:    models.Source{Module: moduleName, Stream: symbol},
		Realtime:  true,
		Text:      st.tradeText(symbol, tr),
		From:      moduleName,
		ContextRef: &models.ContextRef{
			OwnerModule: moduleName,
			SourceKey:   symbol,
		},
		Tags: models.Tags{
			"symbol": symbol,
			"side":   tr.side(),
			"price":  tr.Price,
			"size":   tr.size(),
		},
	}
}

func (st *streamState) tradeText(symbol string, tr trade) string {
	return fmt.Sprintf("%s (%s): %s %s at %s",
		st.m.symbolLabel(symbol), symbol, tr.side(), formatQty(tr.size()), formatQty(tr.Price))
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// tradeRecordID derives the canonical id from the natural key, e.g.
// bitfinex:tBTCUSD:tradeId=12345.
func tradeRecordID(symbol string, tradeID int64) string {
	return ident.MessageID(moduleName, ident.SourceID(moduleName, symbol, fmt.Sprintf("tradeId=%d", tradeID)))
}

func (st *streamState) handleBook(symbol string, payload gjson.Result) error {
	book := st.books[symbol]
	if book == nil {
		book = collect.NewBook(symbol, st.cfg.BookDepth)
		st.books[symbol] = book
	}

	levels := payload.Array()
	if len(levels) > 0 && levels[0].IsArray() {
		for _, raw := range levels {
			lvl, err := parseBookLevel(raw)
			if err != nil {
				return err
			}
			applyBookLevel(book, lvl)
		}
	} else {
		lvl, err := parseBookLevel(payload)
		if err != nil {
			return err
		}
		applyBookLevel(book, lvl)
	}
	st.s.Count("book_updates")

	return st.maybeSnapshot(symbol, book)
}

// applyBookLevel translates the v2 semantics onto the shared book:
// count 0 removes the level, otherwise it holds |amount| with the sign
// picking the side.
func applyBookLevel(book *collect.Book, lvl bookLevel) {
	side := collect.Bid
	if lvl.Amount < 0 {
		side = collect.Ask
	}
	if lvl.Count == 0 {
		book.Update(side, lvl.Price, 0)
		return
	}
	size := lvl.Amount
	if size < 0 {
		size = -size
	}
	book.Update(side, lvl.Price, size)
}

// maybeSnapshot persists and publishes the book once per configured
// interval per symbol.
func (st *streamState) maybeSnapshot(symbol string, book *collect.Book) error {
	now := time.Now().UTC()
	if last, ok := st.lastSnapshot[symbol]; ok && now.Sub(last) < st.cfg.SnapshotInterval {
		return nil
	}

	snap := book.Snapshot(now)
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return nil
	}

	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return fmt.Errorf("failed to encode bids: %w", err)
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return fmt.Errorf("failed to encode asks: %w", err)
	}

	id := ident.MessageID(moduleName,
		ident.SourceID(moduleName, symbol, "book", strconv.FormatInt(now.Unix(), 10)))
	if _, err := st.s.Store.Exec(st.ctx, `
		INSERT INTO `+snapshotsTable+` (id, symbol, bids, asks, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		id, symbol, bids, asks, now); err != nil {
		return fmt.Errorf("failed to store book snapshot: %w", err)
	}

	st.lastSnapshot[symbol] = now
	st.s.Count("snapshots_stored")
	st.s.Bus.PublishEvent(bus.EventOrderbookSnapshot, snap)
	return nil
}

func (st *streamState) storeCandle(ctx context.Context, c *collect.Candle) {
	_, err := st.s.Store.Exec(ctx, `
		INSERT INTO `+candlesTable+` AS c (symbol, interval_ms, start_time, open, high, low, close, volume, trade_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, interval_ms, start_time) DO UPDATE SET
			high        = GREATEST(c.high, EXCLUDED.high),
			low         = LEAST(c.low, EXCLUDED.low),
			close       = EXCLUDED.close,
			volume      = c.volume + EXCLUDED.volume,
			trade_count = c.trade_count + EXCLUDED.trade_count`,
		c.Symbol, c.Interval.Milliseconds(), c.StartTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount)
	if err != nil {
		st.s.Log.Warn("Failed to store candle", map[string]any{"symbol": c.Symbol, "error": err.Error()})
		return
	}
	st.s.Count("candles_closed")
}

// flushCandles persists the windows still open when the stream ends.
// The sweep's own context is spent by then; a short independent one
// covers the final writes.
func (st *streamState) flushCandles() {
	finished := st.candles.FlushAll()
	if len(finished) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range finished {
		st.storeCandle(ctx, c)
	}
}
