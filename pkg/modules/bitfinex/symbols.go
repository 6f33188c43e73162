package bitfinex

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/feedeater/feedeater/pkg/collect"
)

// confLabelsPath maps currency codes to display labels, e.g.
// BTC → Bitcoin.
const confLabelsPath = "/v2/conf/pub:map:currency:label"

// ensureLabels fills the currency label cache from the conf endpoint.
// Failures are tolerated; labels degrade to raw currency codes until
// the next sweep.
func (m *Module) ensureLabels(ctx context.Context, fetcher *collect.Fetcher, apiURL string) {
	if m.labels.Len() > 0 {
		return
	}

	body, err := fetcher.Get(ctx, apiURL+confLabelsPath)
	if err != nil {
		return
	}
	for _, pair := range gjson.GetBytes(body, "0").Array() {
		kv := pair.Array()
		if len(kv) == 2 && kv[0].String() != "" {
			m.labels.Add(kv[0].String(), kv[1].String())
		}
	}
}

// symbolLabel renders a human-readable pair name, falling back to the
// raw symbol when the parts are unknown.
func (m *Module) symbolLabel(symbol string) string {
	base, quote, ok := symbolParts(symbol)
	if !ok {
		return symbol
	}
	baseLabel, okBase := m.labels.Get(base)
	if !okBase {
		baseLabel = base
	}
	quoteLabel, okQuote := m.labels.Get(quote)
	if !okQuote {
		quoteLabel = quote
	}
	return baseLabel + " / " + quoteLabel
}

// symbolParts splits a trading pair: a leading t, then either a
// colon-separated pair (tDOGE:USD) or two three-letter codes (tBTCUSD).
func symbolParts(symbol string) (base, quote string, ok bool) {
	s := strings.TrimPrefix(symbol, "t")
	if i := strings.IndexByte(s, ':'); i > 0 && i < len(s)-1 {
		return s[:i], s[i+1:], true
	}
	if len(s) == 6 {
		return s[:3], s[3:], true
	}
	return "", "", false
}
