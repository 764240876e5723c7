package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/model"
)

var coinSymbols = map[string]string{
	"bitcoin":  "BTC",
	"btc":      "BTC",
	"ethereum": "ETH",
	"ether":    "ETH",
	"eth":      "ETH",
	"solana":   "SOL",
	"sol":      "SOL",
	"ripple":   "XRP",
	"xrp":      "XRP",
	"cardano":  "ADA",
	"ada":      "ADA",
	"dogecoin": "DOGE",
	"doge":     "DOGE",
	"polkadot": "DOT",
	"dot":      "DOT",
}

var assetNames = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
}

var fillers = map[string]bool{
	"check": true, "compare": true, "price": true, "prices": true, "of": true,
	"the": true, "for": true, "what": true, "was": true, "is": true, "tell": true,
	"me": true, "show": true, "how": true, "much": true, "did": true, "cost": true,
	"value": true, "at": true, "on": true, "vs": true, "now": true, "since": true,
}

type staticParser struct {
	resolver dates.Resolver
	now      func() time.Time
}

// NewStaticParser recognises well-known coin names and any all-caps ticker,
// and resolves whatever is left of the text as the date.
func NewStaticParser(resolver dates.Resolver, now func() time.Time) Parser {
	if now == nil {
		now = time.Now
	}

	return &staticParser{
		resolver: resolver,
		now:      now,
	}
}

func (p *staticParser) Parse(_ context.Context, text string) (ParsedQuery, error) {
	var (
		query ParsedQuery
		rest  []string
	)

	for _, word := range strings.Fields(text) {
		w := strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) && r != '-' && r != '/'
		})
		lw := strings.ToLower(w)

		if query.Symbol == "" {
			if sym, ok := coinSymbols[lw]; ok {
				query.Symbol = sym
				continue
			}
			if isTicker(w) {
				query.Symbol = model.NormalizeSymbol(w)
				continue
			}
		}
		if fillers[lw] || lw == "" {
			continue
		}
		rest = append(rest, w)
	}

	if query.Symbol != "" {
		query.Asset = assetName(query.Symbol)
	}

	dateText := strings.Join(rest, " ")
	if dateText == "" {
		dateText = "today"
	}
	if iso, ok := p.resolver.Resolve(dateText, p.now()); ok {
		query.Date = iso
	}

	return query, nil
}

func isTicker(w string) bool {
	if len(w) < 2 || len(w) > 10 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}

	return unicode.IsUpper(rune(w[0]))
}

func assetName(symbol string) string {
	if name, ok := assetNames[symbol]; ok {
		return name
	}

	return strings.ToLower(symbol)
}

type staticResponder struct{}

// NewStaticResponder renders the comparison without a language model.
func NewStaticResponder() Responder {
	return staticResponder{}
}

func (staticResponder) Respond(_ context.Context, cmp model.Comparison) (string, error) {
	var sentiment string
	switch cmp.Direction {
	case model.Increase:
		sentiment = "has risen (bullish)"
	case model.Decrease:
		sentiment = "has fallen (bearish)"
	default:
		sentiment = "has held flat (neutral)"
	}

	return fmt.Sprintf("%s\nSince %s, %s %s.\nCrypto prices are volatile; this is a snapshot, not financial advice.",
		strings.TrimRight(cmp.Summary(), "\n"), cmp.Date, cmp.Asset, sentiment), nil
}
