package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const QuoteCurrency = "USDT"

// Price is an exact USDT-denominated quote for one symbol.
type Price struct {
	Date   time.Time
	Value  decimal.Decimal
	Symbol string
}

// ParsePrice builds a Price from the exchange's decimal string without
// passing through float64.
func ParsePrice(symbol, raw string, date time.Time) (Price, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", raw, err)
	}

	return Price{
		Date:   date,
		Value:  value,
		Symbol: symbol,
	}, nil
}

func (p Price) String() string {
	return p.Value.String()
}

// NormalizeSymbol trims and upper-cases a ticker, dropping a trailing quote
// currency if the caller passed a full pair ("btc-usdt", "BTCUSDT").
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "-"+QuoteCurrency)
	if s != QuoteCurrency {
		s = strings.TrimSuffix(s, QuoteCurrency)
	}

	return s
}

// Pair returns the exchange instrument id for symbol, e.g. BTC-USDT.
func Pair(symbol string) string {
	return NormalizeSymbol(symbol) + "-" + QuoteCurrency
}
