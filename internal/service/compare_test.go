package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(close string) string {
	return `[["1704067200000","1","1","1","` + close + `","1"]]`
}

func ticker(last string) string {
	return `[{"instId":"BTC-USDT","last":"` + last + `"}]`
}

func TestCompare(t *testing.T) {
	type T struct {
		name      string
		historic  string
		current   string
		change    string
		direction model.Direction
	}

	testTable := []T{
		{name: "increase", historic: "40000", current: "44000", change: "10.0000", direction: model.Increase},
		{name: "decrease", historic: "50000", current: "45000", change: "-10.0000", direction: model.Decrease},
		{name: "unchanged", historic: "42000.5", current: "42000.50", change: "0.0000", direction: model.NoChange},
		{name: "repeating fraction", historic: "3", current: "4", change: "33.3333", direction: model.Increase},
		{name: "zero historical", historic: "0", current: "44000", change: "0.0000", direction: model.NoChange},
	}

	for _, test := range testTable {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, map[string]http.HandlerFunc{
				candlesPath: okxData(candle(test.historic)),
				tickerPath:  okxData(ticker(test.current)),
			})

			cmp, err := f.comparator.Compare(context.Background(), "btc", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			assert.Equal(t, "BTC", cmp.Asset)
			assert.Equal(t, "2024-01-01", cmp.Date)
			assert.Equal(t, test.change, cmp.PercentChange.StringFixed(4))
			assert.Equal(t, test.direction, cmp.Direction)
			assert.Equal(t, int32(4), cmp.Precision)
			assert.Equal(t, test.historic, cmp.PriceOnDate.String())
		})
	}
}

func TestCompareInvalidSymbol(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		instrumentsPath: okxData(`[{"instId":"BTC-USDT"},{"instId":"ETH-USDT"}]`),
		candlesPath:     okxData(candle("1")),
		tickerPath:      okxData(ticker("1")),
	})

	_, err := f.comparator.CompareText(context.Background(), "NOPE", "2024-01-01")
	assert.True(t, errors.Is(err, model.ErrInvalidSymbol))
	assert.Equal(t, "InvalidSymbol", model.Kind(err))
	assert.Equal(t, 0, f.okx.Calls(candlesPath))
	assert.Equal(t, 0, f.okx.Calls(tickerPath))
	assert.Equal(t, 1, f.okx.Calls(instrumentsPath), "both fetches share one symbol download")
}

func TestCompareNoDataNotRetried(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(`[]`),
		tickerPath:  okxData(ticker("44000")),
	})

	_, err := f.comparator.CompareText(context.Background(), "BTC", "2024-01-01")
	assert.True(t, errors.Is(err, model.ErrNoDataForDate))
	assert.Equal(t, 1, f.okx.Calls(candlesPath))
}

func TestCompareHistoricalErrorWins(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(`[]`),
		tickerPath:  okxStatus(http.StatusTooManyRequests),
	})

	_, err := f.comparator.Compare(context.Background(), "BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, model.ErrNoDataForDate))
	assert.False(t, errors.Is(err, model.ErrUpstreamUnavailable))
}

func TestCompareAbandonsCurrentOnHistoricalFailure(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(`[]`),
		// a ticker that never answers on its own
		tickerPath: func(_ http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := f.comparator.Compare(ctx, "BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.True(t, errors.Is(err, model.ErrNoDataForDate))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, f.okx.Calls(candlesPath))
	assert.LessOrEqual(t, f.okx.Calls(tickerPath), 1)
}

func TestCompareUpstreamUnavailable(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(candle("40000")),
		tickerPath:  okxStatus(http.StatusServiceUnavailable),
	})

	_, err := f.comparator.Compare(context.Background(), "BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, 3, f.okx.Calls(tickerPath))
}

func TestCompareTextRelativeDate(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: func(w http.ResponseWriter, r *http.Request) {
			// testNow is 2024-03-15, so yesterday is 2024-03-14 00:00 UTC
			assert.Equal(t, "1710374400000", r.URL.Query().Get("after"))
			okxData(candle("100"))(w, r)
		},
		tickerPath: okxData(ticker("110")),
	})

	cmp, err := f.comparator.CompareText(context.Background(), "BTC", "yesterday")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", cmp.Date)
	assert.Equal(t, "10.0000", cmp.PercentChange.StringFixed(4))
}

func TestCompareTextInvalidDate(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.comparator.CompareText(context.Background(), "BTC", "")
	assert.True(t, errors.Is(err, model.ErrInvalidDate))
}
