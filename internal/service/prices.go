package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/metrics"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	log "github.com/sirupsen/logrus"
)

type PriceFetcher interface {
	// CurrentPrice returns the last traded price, cached for a few seconds.
	CurrentPrice(ctx context.Context, symbol string) (model.Price, error)
	// HistoricalPrice returns the daily close of day (calendar date, UTC bar).
	HistoricalPrice(ctx context.Context, symbol string, day time.Time) (model.Price, error)
	// HistoricalPriceText resolves dateText first and fails with
	// model.ErrInvalidDate when it cannot.
	HistoricalPriceText(ctx context.Context, symbol, dateText string) (model.Price, error)
}

type FetcherOptions struct {
	CurrentTTL time.Duration
	HistoryTTL time.Duration
	Retry      RetryPolicy
	// Now defaults to time.Now.
	Now func() time.Time
}

type priceFetcher struct {
	registry SymbolRegistry
	client   exchange.Client
	cache    repository.Cache
	resolver dates.Resolver
	opts     FetcherOptions
}

func NewPriceFetcher(registry SymbolRegistry, client exchange.Client, cache repository.Cache, resolver dates.Resolver, opts FetcherOptions) PriceFetcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &priceFetcher{
		registry: registry,
		client:   client,
		cache:    cache,
		resolver: resolver,
		opts:     opts,
	}
}

func (p *priceFetcher) CurrentPrice(ctx context.Context, symbol string) (model.Price, error) {
	sym, err := p.validate(ctx, symbol)
	if err != nil {
		return model.Price{}, err
	}

	pair := model.Pair(sym)
	key := repository.PriceKey(pair)
	now := p.opts.Now()

	if raw, ok := p.lookup(ctx, "price", key); ok {
		if price, err := model.ParsePrice(sym, raw, now); err == nil {
			return price, nil
		}
	}

	var price model.Price
	raw, err := p.opts.Retry.run(ctx, "current price "+pair, p.opts.Retry.TickerStep, func(ctx context.Context) (string, error) {
		raw, err := p.client.Ticker(ctx, pair)
		if err != nil {
			return "", err
		}
		price, err = model.ParsePrice(sym, raw, now)
		if err != nil {
			return "", &exchange.FetchError{Kind: exchange.KindMalformed, Endpoint: "ticker", Err: err}
		}

		return raw, nil
	})
	if err != nil {
		return model.Price{}, err
	}

	p.store(ctx, key, raw, p.opts.CurrentTTL)

	return price, nil
}

func (p *priceFetcher) HistoricalPrice(ctx context.Context, symbol string, day time.Time) (model.Price, error) {
	sym, err := p.validate(ctx, symbol)
	if err != nil {
		return model.Price{}, err
	}

	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	// a future day has no bar; the candles endpoint would answer with an older one
	if now := p.opts.Now().UTC(); day.After(now) {
		return model.Price{}, fmt.Errorf("%s is after %s: %w", day.Format(dates.Layout), now.Format(dates.Layout), model.ErrNoDataForDate)
	}
	pair := model.Pair(sym)
	key := repository.HistoryKey(pair, day.Format(dates.Layout))

	if raw, ok := p.lookup(ctx, "history", key); ok {
		if price, err := model.ParsePrice(sym, raw, day); err == nil {
			return price, nil
		}
	}

	var price model.Price
	raw, err := p.opts.Retry.run(ctx, "historical price "+pair+" "+day.Format(dates.Layout), p.opts.Retry.HistoryStep, func(ctx context.Context) (string, error) {
		raw, err := p.client.DailyClose(ctx, pair, day)
		if err != nil {
			return "", err
		}
		price, err = model.ParsePrice(sym, raw, day)
		if err != nil {
			return "", &exchange.FetchError{Kind: exchange.KindMalformed, Endpoint: "history-candles", Err: err}
		}

		return raw, nil
	})
	if err != nil {
		return model.Price{}, err
	}

	p.store(ctx, key, raw, p.opts.HistoryTTL)

	return price, nil
}

func (p *priceFetcher) HistoricalPriceText(ctx context.Context, symbol, dateText string) (model.Price, error) {
	day, err := dates.Parse(p.resolver, dateText, p.opts.Now())
	if err != nil {
		return model.Price{}, err
	}

	return p.HistoricalPrice(ctx, symbol, day)
}

func (p *priceFetcher) validate(ctx context.Context, symbol string) (string, error) {
	sym := model.NormalizeSymbol(symbol)
	if !p.registry.IsValid(ctx, sym) {
		return "", fmt.Errorf("%q: %w", symbol, model.ErrInvalidSymbol)
	}

	return sym, nil
}

// lookup treats cache errors as misses.
func (p *priceFetcher) lookup(ctx context.Context, kind, key string) (string, bool) {
	raw, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("cache read %s: %v", key, err)
		ok = false
	}
	metrics.ObserveCache(kind, ok)

	return raw, ok
}

// store runs only after a successful, parsed fetch.
func (p *priceFetcher) store(ctx context.Context, key, raw string, ttl time.Duration) {
	if err := p.cache.Set(ctx, key, strings.TrimSpace(raw), ttl); err != nil {
		log.Warnf("cache write %s: %v", key, err)
	}
}
