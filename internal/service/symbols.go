package service

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/metrics"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// AllowList pairs are always valid, even when the exchange cannot be reached.
var AllowList = []string{
	"BTC-USDT",
	"ETH-USDT",
	"SOL-USDT",
	"XRP-USDT",
	"ADA-USDT",
	"DOGE-USDT",
	"DOT-USDT",
}

type SymbolRegistry interface {
	IsValid(ctx context.Context, symbol string) bool
	// Refresh fetches the live instrument list. On success the union with
	// AllowList is cached; on failure AllowList alone is returned and the
	// cache is left untouched.
	Refresh(ctx context.Context) []string
}

type symbolRegistry struct {
	cache  repository.Cache
	client exchange.Client
	ttl    time.Duration
	// concurrent cold-cache lookups share one instrument download
	group singleflight.Group
}

func NewSymbolRegistry(cache repository.Cache, client exchange.Client, ttl time.Duration) SymbolRegistry {
	return &symbolRegistry{
		cache:  cache,
		client: client,
		ttl:    ttl,
	}
}

func (s *symbolRegistry) IsValid(ctx context.Context, symbol string) bool {
	sym := model.NormalizeSymbol(symbol)
	if sym == "" || sym == model.QuoteCurrency {
		return false
	}

	pair := model.Pair(sym)
	if slices.Contains(AllowList, pair) {
		return true
	}

	set, ok := s.cached(ctx)
	if !ok {
		set = s.Refresh(ctx)
	}

	_, found := slices.BinarySearch(set, pair)
	return found
}

func (s *symbolRegistry) Refresh(ctx context.Context) []string {
	set, _, _ := s.group.Do(repository.SymbolsKey, func() (any, error) {
		return s.refresh(ctx), nil
	})

	return slices.Clone(set.([]string))
}

func (s *symbolRegistry) refresh(ctx context.Context) []string {
	ids, err := s.client.Instruments(ctx)
	if err != nil {
		log.WithField("kind", exchange.KindOf(err)).Warnf("symbol refresh failed, using allow-list: %v", err)
		return sortedAllowList()
	}

	set := union(ids, AllowList)

	raw, err := json.Marshal(set)
	if err != nil {
		log.Errorf("encode symbol set: %v", err)
		return set
	}
	if err := s.cache.Set(ctx, repository.SymbolsKey, string(raw), s.ttl); err != nil {
		log.Warnf("cache symbol set: %v", err)
	}

	log.Debugf("symbol set refreshed: %d pairs", len(set))

	return set
}

// cached returns the sorted symbol set if one is cached and readable.
func (s *symbolRegistry) cached(ctx context.Context) ([]string, bool) {
	raw, ok, err := s.cache.Get(ctx, repository.SymbolsKey)
	if err != nil {
		log.Warnf("read symbol set: %v", err)
		ok = false
	}
	metrics.ObserveCache("symbols", ok)
	if !ok {
		return nil, false
	}

	var set []string
	if err := json.Unmarshal([]byte(raw), &set); err != nil || len(set) == 0 {
		log.Warnf("discarding unreadable symbol set: %v", err)
		return nil, false
	}
	slices.Sort(set)

	return set, true
}

func union(ids, extra []string) []string {
	out := make([]string, 0, len(ids)+len(extra))
	out = append(out, ids...)
	out = append(out, extra...)
	slices.Sort(out)

	return slices.Compact(out)
}

func sortedAllowList() []string {
	out := slices.Clone(AllowList)
	slices.Sort(out)

	return out
}
