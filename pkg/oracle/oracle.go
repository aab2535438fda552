package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"

	"xmrbridge/config"
)

// ErrRateUnavailable is returned when the feed yields no usable XMR/BTC rate.
// Callers may retry the quote later.
var ErrRateUnavailable = errors.New("XMR/BTC rate is not available")

// RateSource provides the current XMR/BTC exchange rate.
type RateSource interface {
	XMRBTCRate(ctx context.Context) (decimal.Decimal, error)
}

// Feed consumes a websocket price stream that delivers rate updates tagged by
// a command field.
type Feed struct {
	config config.OracleConfig
}

var _ RateSource = (*Feed)(nil)

// NewFeed creates a rate source reading from the configured websocket URL.
func NewFeed(cfg config.OracleConfig) *Feed {
	return &Feed{config: cfg}
}

// feedMessage is one message on the price stream. Only crypto_rates messages
// carry the entries we consume.
type feedMessage struct {
	Cmd  string  `json:"cmd"`
	Data []Entry `json:"data"`
}

// Entry is a single currency quote on the feed.
type Entry struct {
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// XMRBTCRate connects to the feed, waits for the next crypto_rates update and
// returns the XMR price expressed in BTC.
func (f *Feed) XMRBTCRate(ctx context.Context) (decimal.Decimal, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, f.config.FeedURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: dial failed: %v", ErrRateUnavailable, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "rate received")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: read failed: %v", ErrRateUnavailable, err)
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Not every frame on the feed is JSON we understand.
			continue
		}
		if msg.Cmd != "crypto_rates" {
			continue
		}

		return RatioFromRates(msg.Data)
	}
}

// RatioFromRates computes the XMR/BTC ratio from a crypto_rates payload,
// rounded to 12 decimals.
func RatioFromRates(rates []Entry) (decimal.Decimal, error) {
	var btc, xmr decimal.Decimal
	for _, rate := range rates {
		switch rate.Symbol {
		case "btc":
			btc = rate.CurrentPrice
		case "xmr":
			xmr = rate.CurrentPrice
		}
	}

	if btc.IsZero() || xmr.IsZero() {
		return decimal.Zero, ErrRateUnavailable
	}

	return xmr.Div(btc).Round(12), nil
}
