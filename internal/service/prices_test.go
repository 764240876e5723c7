package service

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bar = `[["1706745600000","41000","42500","40900","42000.12","123.4","5180000","5180000","1"]]`

func TestCurrentPriceRateLimitedThreeAttempts(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		tickerPath: okxStatus(http.StatusTooManyRequests),
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.fetcher.CurrentPrice(context.Background(), "BTC")
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
		assert.True(t, errors.Is(err, model.ErrRateLimited))
	case <-time.After(5 * time.Second):
		t.Fatal("CurrentPrice did not return")
	}
	assert.Equal(t, 3, f.okx.Calls(tickerPath))

	_, ok, err := f.cache.Get(context.Background(), repository.PriceKey("BTC-USDT"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentPriceRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, map[string]http.HandlerFunc{
		tickerPath: func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				okxStatus(http.StatusBadGateway)(w, r)
				return
			}
			okxData(`[{"instId":"BTC-USDT","last":"67000.5"}]`)(w, r)
		},
	})

	price, err := f.fetcher.CurrentPrice(context.Background(), "btc")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("67000.5").Equal(price.Value))
	assert.Equal(t, "BTC", price.Symbol)
	assert.Equal(t, 3, f.okx.Calls(tickerPath))
}

func TestCurrentPriceMalformedExhausts(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		tickerPath: okxData(`[{"instId":"BTC-USDT","last":"n/a"}]`),
	})

	_, err := f.fetcher.CurrentPrice(context.Background(), "BTC")
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, exchange.KindMalformed, exchange.KindOf(err))
	assert.Equal(t, 3, f.okx.Calls(tickerPath))
}

func TestCurrentPriceCachedBriefly(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		tickerPath: okxData(`[{"instId":"ETH-USDT","last":"3500.25"}]`),
	})
	ctx := context.Background()

	first, err := f.fetcher.CurrentPrice(ctx, "ETH")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	second, err := f.fetcher.CurrentPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, first.Value.Equal(second.Value))
	assert.Equal(t, 1, f.okx.Calls(tickerPath))

	f.clock.Advance(6 * time.Second)
	_, err = f.fetcher.CurrentPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, 2, f.okx.Calls(tickerPath))
}

func TestHistoricalPriceCachedAndExact(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(bar),
	})
	ctx := context.Background()

	first, err := f.fetcher.HistoricalPriceText(ctx, "BTC", "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, "42000.12", first.Value.String())
	assert.True(t, decimal.RequireFromString("42000.12").Equal(first.Value))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), first.Date)

	second, err := f.fetcher.HistoricalPrice(ctx, "BTC", time.Date(2024, 2, 1, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.okx.Calls(candlesPath))

	raw, ok, err := f.cache.Get(ctx, repository.HistoryKey("BTC-USDT", "2024-02-01"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42000.12", raw)
}

func TestHistoricalPriceTerminalFailures(t *testing.T) {
	type T struct {
		name    string
		handler http.HandlerFunc
	}

	testTable := []T{
		{name: "empty bars", handler: okxData(`[]`)},
		{name: "server error", handler: okxStatus(http.StatusInternalServerError)},
		{name: "okx error code", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
		}},
		{name: "close not a number", handler: okxData(`[["1706745600000","1","1","1","x"]]`)},
	}

	for _, test := range testTable {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, map[string]http.HandlerFunc{
				candlesPath: test.handler,
			})

			_, err := f.fetcher.HistoricalPrice(context.Background(), "BTC", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			assert.True(t, errors.Is(err, model.ErrNoDataForDate), err)
			assert.Equal(t, 1, f.okx.Calls(candlesPath))

			_, ok, err := f.cache.Get(context.Background(), repository.HistoryKey("BTC-USDT", "2024-02-01"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHistoricalPriceRateLimitedIsRetried(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxStatus(http.StatusTooManyRequests),
	})

	_, err := f.fetcher.HistoricalPrice(context.Background(), "BTC", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, 3, f.okx.Calls(candlesPath))
}

func TestHistoricalPriceFutureDay(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(bar),
	})
	ctx := context.Background()

	_, err := f.fetcher.HistoricalPrice(ctx, "BTC", testNow.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, model.ErrNoDataForDate))

	_, err = f.fetcher.HistoricalPriceText(ctx, "BTC", "2030-01-01")
	assert.True(t, errors.Is(err, model.ErrNoDataForDate))
	assert.Equal(t, 0, f.okx.Calls(candlesPath))

	_, err = f.fetcher.HistoricalPrice(ctx, "BTC", testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, f.okx.Calls(candlesPath))
}

func TestInvalidSymbolSkipsPriceEndpoints(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		instrumentsPath: okxData(`[{"instId":"BTC-USDT"},{"instId":"ETH-USDT"}]`),
		tickerPath:      okxData(`[{"instId":"NOPE-USDT","last":"1"}]`),
		candlesPath:     okxData(bar),
	})
	ctx := context.Background()

	_, err := f.fetcher.CurrentPrice(ctx, "NOPE")
	assert.True(t, errors.Is(err, model.ErrInvalidSymbol))

	_, err = f.fetcher.HistoricalPrice(ctx, "NOPE", testNow)
	assert.True(t, errors.Is(err, model.ErrInvalidSymbol))

	assert.Equal(t, 0, f.okx.Calls(tickerPath))
	assert.Equal(t, 0, f.okx.Calls(candlesPath))
	assert.Equal(t, 1, f.okx.Calls(instrumentsPath))
}

func TestHistoricalPriceInvalidDate(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		candlesPath: okxData(bar),
	})

	_, err := f.fetcher.HistoricalPriceText(context.Background(), "BTC", "whenever")
	assert.True(t, errors.Is(err, model.ErrInvalidDate))
	assert.Equal(t, 0, f.okx.Calls(candlesPath))
}

func TestRetryPolicyTable(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, RateLimitBackoff: 300 * time.Millisecond, RetryBackoff: 200 * time.Millisecond}

	type T struct {
		kind    exchange.FailureKind
		ticker  Step
		history Step
	}

	upstream := model.ErrUpstreamUnavailable
	testTable := []T{
		{
			kind:    exchange.KindRateLimited,
			ticker:  Step{Retry: true, Backoff: 300 * time.Millisecond, Final: upstream},
			history: Step{Retry: true, Backoff: 300 * time.Millisecond, Final: upstream},
		},
		{
			kind:    exchange.KindTimeout,
			ticker:  Step{Retry: true, Backoff: 200 * time.Millisecond, Final: upstream},
			history: Step{Retry: true, Backoff: 200 * time.Millisecond, Final: upstream},
		},
		{
			kind:    exchange.KindBadStatus,
			ticker:  Step{Retry: true, Backoff: 200 * time.Millisecond, Final: upstream},
			history: Step{Final: model.ErrNoDataForDate},
		},
		{
			kind:    exchange.KindEmpty,
			ticker:  Step{Retry: true, Backoff: 200 * time.Millisecond, Final: upstream},
			history: Step{Final: model.ErrNoDataForDate},
		},
	}

	for _, test := range testTable {
		assert.Equal(t, test.ticker, p.TickerStep(test.kind), test.kind)
		assert.Equal(t, test.history, p.HistoryStep(test.kind), test.kind)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, RetryBackoff: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := p.run(ctx, "test", p.TickerStep, func(context.Context) (string, error) {
		calls++
		cancel()
		return "", &exchange.FetchError{Kind: exchange.KindNetwork}
	})

	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
