package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticParser(t *testing.T) {
	parser := NewStaticParser(dates.NewResolver(), fixedNow)

	testTable := []struct {
		input    string
		expected ParsedQuery
	}{
		{input: "check btc yesterday", expected: ParsedQuery{Asset: "bitcoin", Symbol: "BTC", Date: "2024-03-14"}},
		{input: "ethereum price three days ago", expected: ParsedQuery{Asset: "ethereum", Symbol: "ETH", Date: "2024-03-12"}},
		{input: "solana on 2025-12-31", expected: ParsedQuery{Asset: "solana", Symbol: "SOL", Date: "2025-12-31"}},
		{input: "compare eth price one week ago", expected: ParsedQuery{Asset: "ethereum", Symbol: "ETH", Date: "2024-03-08"}},
		{input: "what was Cardano on 2025-31-12?", expected: ParsedQuery{Asset: "cardano", Symbol: "ADA", Date: "2025-12-31"}},
		{input: "PEPE 2024-01-05", expected: ParsedQuery{Asset: "pepe", Symbol: "PEPE", Date: "2024-01-05"}},
		{input: "bitcoin", expected: ParsedQuery{Asset: "bitcoin", Symbol: "BTC", Date: "2024-03-15"}},
		{input: "hello there", expected: ParsedQuery{}},
	}

	for _, test := range testTable {
		actual, err := parser.Parse(context.Background(), test.input)
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, actual, test.input)
	}
}

func TestStaticResponder(t *testing.T) {
	text, err := NewStaticResponder().Respond(context.Background(), testComparison())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "Asset: BTC\n"))
	assert.Contains(t, text, "Percentage change: 10.0000%")
	assert.Contains(t, text, "Since 2024-01-01, BTC has risen (bullish).")
	assert.Contains(t, text, "not financial advice")
}
