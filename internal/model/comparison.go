package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
	NoChange Direction = "no_change"
)

// DirectionOf returns the trend for an already rounded percent change.
func DirectionOf(pc decimal.Decimal) Direction {
	switch pc.Sign() {
	case 1:
		return Increase
	case -1:
		return Decrease
	default:
		return NoChange
	}
}

// PercentChange computes (current-historical)/historical*100 rounded half-up
// to places. A zero historical price yields zero.
func PercentChange(historical, current decimal.Decimal, places int32) decimal.Decimal {
	if historical.IsZero() {
		return decimal.Zero
	}

	return current.Sub(historical).
		Mul(decimal.NewFromInt(100)).
		DivRound(historical, places)
}

type Comparison struct {
	Asset         string
	Date          string
	PriceOnDate   decimal.Decimal
	CurrentPrice  decimal.Decimal
	PercentChange decimal.Decimal
	Direction     Direction
	// Precision is the number of fractional digits PercentChange is rounded to.
	Precision int32
}

type comparisonJSON struct {
	Asset         string    `json:"asset"`
	Date          string    `json:"date"`
	PriceOnDate   string    `json:"price_on_date"`
	CurrentPrice  string    `json:"current_price"`
	PercentChange string    `json:"percent_change"`
	Direction     Direction `json:"direction"`
}

func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(comparisonJSON{
		Asset:         c.Asset,
		Date:          c.Date,
		PriceOnDate:   c.PriceOnDate.String(),
		CurrentPrice:  c.CurrentPrice.String(),
		PercentChange: c.PercentChange.StringFixed(c.Precision),
		Direction:     c.Direction,
	})
}

func (c *Comparison) UnmarshalJSON(data []byte) error {
	var raw comparisonJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if c.PriceOnDate, err = decimal.NewFromString(raw.PriceOnDate); err != nil {
		return fmt.Errorf("price_on_date: %w", err)
	}
	if c.CurrentPrice, err = decimal.NewFromString(raw.CurrentPrice); err != nil {
		return fmt.Errorf("current_price: %w", err)
	}
	if c.PercentChange, err = decimal.NewFromString(raw.PercentChange); err != nil {
		return fmt.Errorf("percent_change: %w", err)
	}

	c.Asset = raw.Asset
	c.Date = raw.Date
	c.Direction = raw.Direction
	c.Precision = -c.PercentChange.Exponent()
	if c.Precision < 0 {
		c.Precision = 0
	}

	return nil
}

// Summary renders the comparison as the plain text block shown to users.
func (c Comparison) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Asset: %s\n", c.Asset)
	fmt.Fprintf(&b, "Date checked: %s\n", c.Date)
	fmt.Fprintf(&b, "Price on date: $%s\n", c.PriceOnDate.String())
	fmt.Fprintf(&b, "Current price: $%s\n", c.CurrentPrice.String())
	fmt.Fprintf(&b, "Percentage change: %s%%\n", c.PercentChange.StringFixed(c.Precision))
	fmt.Fprintf(&b, "Direction: %s\n", c.Direction)

	return b.String()
}
