package service

import (
	"context"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/metrics"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	log "github.com/sirupsen/logrus"
)

type Comparator interface {
	Compare(ctx context.Context, symbol string, day time.Time) (model.Comparison, error)
	// CompareText resolves dateText relative to now before comparing.
	CompareText(ctx context.Context, symbol, dateText string) (model.Comparison, error)
}

type comparator struct {
	fetcher   PriceFetcher
	resolver  dates.Resolver
	precision int32
	now       func() time.Time
}

func NewComparator(fetcher PriceFetcher, resolver dates.Resolver, precision int32, now func() time.Time) Comparator {
	if now == nil {
		now = time.Now
	}

	return &comparator{
		fetcher:   fetcher,
		resolver:  resolver,
		precision: precision,
		now:       now,
	}
}

type fetchResult struct {
	price model.Price
	err   error
}

func (c *comparator) Compare(ctx context.Context, symbol string, day time.Time) (model.Comparison, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	histCh := make(chan fetchResult, 1)
	curCh := make(chan fetchResult, 1)

	go func() {
		price, err := c.fetcher.HistoricalPrice(ctx, symbol, day)
		histCh <- fetchResult{price, err}
	}()
	go func() {
		price, err := c.fetcher.CurrentPrice(ctx, symbol)
		curCh <- fetchResult{price, err}
	}()

	// the historical error wins so terminal kinds are not hidden by transient
	// ones; once it is known the current fetch is abandoned
	hist := <-histCh
	if hist.err != nil {
		cancel()
	}
	cur := <-curCh

	err := hist.err
	if err == nil {
		err = cur.err
	}
	if err != nil {
		metrics.ObserveComparison(model.Kind(err))
		log.WithFields(log.Fields{
			"symbol": symbol,
			"date":   day.Format(dates.Layout),
		}).Debugf("compare failed: %v", err)

		return model.Comparison{}, err
	}

	pc := model.PercentChange(hist.price.Value, cur.price.Value, c.precision)
	metrics.ObserveComparison("ok")

	return model.Comparison{
		Asset:         model.NormalizeSymbol(symbol),
		Date:          day.Format(dates.Layout),
		PriceOnDate:   hist.price.Value,
		CurrentPrice:  cur.price.Value,
		PercentChange: pc,
		Direction:     model.DirectionOf(pc),
		Precision:     c.precision,
	}, nil
}

func (c *comparator) CompareText(ctx context.Context, symbol, dateText string) (model.Comparison, error) {
	day, err := dates.Parse(c.resolver, dateText, c.now())
	if err != nil {
		metrics.ObserveComparison(model.Kind(err))
		return model.Comparison{}, err
	}

	return c.Compare(ctx, symbol, day)
}
