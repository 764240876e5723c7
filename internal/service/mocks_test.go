package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	"github.com/stretchr/testify/mock"
)

const (
	instrumentsPath = "/api/v5/public/instruments"
	tickerPath      = "/api/v5/market/ticker"
	candlesPath     = "/api/v5/market/history-candles"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Instruments(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)

	return ids, args.Error(1)
}

func (m *mockClient) Ticker(ctx context.Context, pair string) (string, error) {
	args := m.Called(ctx, pair)

	return args.String(0), args.Error(1)
}

func (m *mockClient) DailyClose(ctx context.Context, pair string, day time.Time) (string, error) {
	args := m.Called(ctx, pair, day)

	return args.String(0), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// fakeOKX serves canned OKX responses by path and counts calls per path.
type fakeOKX struct {
	srv    *httptest.Server
	mu     sync.Mutex
	calls  map[string]int
	routes map[string]http.HandlerFunc
}

func newFakeOKX(t *testing.T, routes map[string]http.HandlerFunc) *fakeOKX {
	f := &fakeOKX{
		calls:  map[string]int{},
		routes: routes,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.mu.Unlock()

		handler, ok := f.routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeOKX) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[path]
}

func okxData(data string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":` + data + `}`))
	}
}

func okxStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

type fixture struct {
	okx        *fakeOKX
	clock      *fakeClock
	cache      repository.Cache
	registry   SymbolRegistry
	fetcher    PriceFetcher
	comparator Comparator
}

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, routes map[string]http.HandlerFunc) *fixture {
	okx := newFakeOKX(t, routes)
	clock := &fakeClock{now: testNow}
	cache := repository.NewMemory(clock.Now)
	client := exchange.New(okx.srv.Client(), okx.srv.URL)
	resolver := dates.NewResolver()

	registry := NewSymbolRegistry(cache, client, 24*time.Hour)
	fetcher := NewPriceFetcher(registry, client, cache, resolver, FetcherOptions{
		CurrentTTL: 10 * time.Second,
		HistoryTTL: time.Hour,
		Retry: RetryPolicy{
			MaxAttempts:      3,
			RateLimitBackoff: time.Millisecond,
			RetryBackoff:     time.Millisecond,
		},
		Now: clock.Now,
	})

	return &fixture{
		okx:        okx,
		clock:      clock,
		cache:      cache,
		registry:   registry,
		fetcher:    fetcher,
		comparator: NewComparator(fetcher, resolver, 4, clock.Now),
	}
}
