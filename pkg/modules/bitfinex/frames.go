package bitfinex

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// event carries the object-frame fields the stream inspects. The v2
// protocol multiplexes channels over one socket: object frames are
// lifecycle events, array frames are channel data.
type event struct {
	Name    string
	Channel string
	Symbol  string
	ChanID  int64
	Code    int64
	Msg     string
}

func parseEventFrame(v gjson.Result) event {
	return event{
		Name:    v.Get("event").String(),
		Channel: v.Get("channel").String(),
		Symbol:  v.Get("symbol").String(),
		ChanID:  v.Get("chanId").Int(),
		Code:    v.Get("code").Int(),
		Msg:     v.Get("msg").String(),
	}
}

// trade is one executed trade: [ID, MTS, AMOUNT, PRICE]. Amount is
// signed; positive buys, negative sells.
type trade struct {
	ID         int64
	ExecutedAt time.Time
	Amount     float64
	Price      float64
}

func parseTrade(v gjson.Result) (trade, error) {
	fields := v.Array()
	if len(fields) < 4 {
		return trade{}, fmt.Errorf("trade frame has %d fields, want 4", len(fields))
	}
	return trade{
		ID:         fields[0].Int(),
		ExecutedAt: time.UnixMilli(fields[1].Int()).UTC(),
		Amount:     fields[2].Float(),
		Price:      fields[3].Float(),
	}, nil
}

func (t trade) side() string {
	if t.Amount < 0 {
		return "sell"
	}
	return "buy"
}

func (t trade) size() float64 {
	return math.Abs(t.Amount)
}

// bookLevel is one [PRICE, COUNT, AMOUNT] book entry. Count 0 removes
// the level; the amount's sign picks the side.
type bookLevel struct {
	Price  float64
	Count  int64
	Amount float64
}

func parseBookLevel(v gjson.Result) (bookLevel, error) {
	fields := v.Array()
	if len(fields) < 3 {
		return bookLevel{}, fmt.Errorf("book frame has %d fields, want 3", len(fields))
	}
	return bookLevel{
		Price:  fields[0].Float(),
		Count:  fields[1].Int(),
		Amount: fields[2].Float(),
	}, nil
}
