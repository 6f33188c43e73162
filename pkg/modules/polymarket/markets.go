package polymarket

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// market is one row from the Gamma markets listing. Numeric fields
// arrive as JSON numbers or quoted strings depending on the market's
// age; gjson coerces both.
type market struct {
	ConditionID string
	Question    string
	Slug        string
	Description string
	Outcomes    []string
	Volume24h   float64
	Liquidity   float64
	EndDate     time.Time
	Active      bool
}

// parseMarkets decodes a Gamma /markets response, also reporting how
// many rows the server sent before filtering so callers can tell a
// short page from dropped entries. Entries without a condition id are
// dropped.
func parseMarkets(body []byte) ([]market, int, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, 0, fmt.Errorf("expected a JSON array of markets, got %s", root.Type)
	}

	rows := root.Array()
	var out []market
	for _, v := range rows {
		mk, ok := parseMarket(v)
		if !ok {
			continue
		}
		out = append(out, mk)
	}
	return out, len(rows), nil
}

func parseMarket(v gjson.Result) (market, bool) {
	id := strings.TrimSpace(v.Get("conditionId").String())
	if id == "" {
		return market{}, false
	}

	mk := market{
		ConditionID: id,
		Question:    strings.TrimSpace(v.Get("question").String()),
		Slug:        v.Get("slug").String(),
		Description: strings.TrimSpace(v.Get("description").String()),
		Outcomes:    stringArray(v.Get("outcomes")),
		Volume24h:   v.Get("volume24hr").Float(),
		Liquidity:   v.Get("liquidity").Float(),
		Active:      v.Get("active").Bool(),
	}
	if s := v.Get("endDate").String(); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			mk.EndDate = t.UTC()
		}
	}
	return mk, true
}

// embedText renders the market for retrieval. Only the question and
// description carry meaning; price-like fields churn every sweep and
// would invalidate the stored vector for nothing.
func (m *market) embedText() string {
	var b strings.Builder
	b.WriteString(m.Question)
	if len(m.Outcomes) > 0 {
		b.WriteString("\nOutcomes: ")
		b.WriteString(strings.Join(m.Outcomes, ", "))
	}
	if m.Description != "" {
		b.WriteString("\n")
		b.WriteString(m.Description)
	}
	return strings.TrimSpace(b.String())
}

// stringArray handles Gamma's habit of shipping arrays both natively
// and as JSON-encoded strings ("[\"Yes\", \"No\"]").
func stringArray(v gjson.Result) []string {
	if v.Type == gjson.String {
		v = gjson.Parse(v.String())
	}
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, e := range v.Array() {
		if s := strings.TrimSpace(e.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// trade is one fill from the Data API trades listing.
type trade struct {
	TradeID    string
	Side       string
	Outcome    string
	Price      float64
	Size       float64
	ExecutedAt time.Time
}

// parseTrades decodes a Data API /trades response. Entries without a
// timestamp are dropped.
func parseTrades(body []byte) ([]trade, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("expected a JSON array of trades, got %s", root.Type)
	}

	var out []trade
	for _, v := range root.Array() {
		tr, ok := parseTradeEntry(v)
		if !ok {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func parseTradeEntry(v gjson.Result) (trade, bool) {
	ts := v.Get("timestamp").Int()
	if ts <= 0 {
		return trade{}, false
	}

	tr := trade{
		TradeID:    strings.TrimSpace(v.Get("transactionHash").String()),
		Side:       strings.ToLower(v.Get("side").String()),
		Outcome:    v.Get("outcome").String(),
		Price:      v.Get("price").Float(),
		Size:       v.Get("size").Float(),
		ExecutedAt: time.Unix(ts, 0).UTC(),
	}
	if tr.TradeID == "" {
		tr.TradeID = fmt.Sprintf("%d:%s:%s:%s", ts, tr.Side, formatQty(tr.Price), formatQty(tr.Size))
	}
	return tr, true
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
