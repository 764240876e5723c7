// Package llm extracts comparison requests from free text and writes the
// prose answer, using an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const (
	parseMaxTokens   = 120
	respondMaxTokens = 300
)

var (
	ErrNonJSONReply = errors.New("model returned non-JSON")
	ErrEmptyReply   = errors.New("model returned no choices")
)

// ParsedQuery is what the user asked about. Date is an ISO day, or empty when
// the date text could not be resolved.
type ParsedQuery struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Raw    string `json:"raw,omitempty"`
}

type Parser interface {
	Parse(ctx context.Context, text string) (ParsedQuery, error)
}

type Responder interface {
	Respond(ctx context.Context, cmp model.Comparison) (string, error)
}

// ChatCompleter is satisfied by *openai.Client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewClient(baseURL, token string) *openai.Client {
	conf := openai.DefaultConfig(token)
	conf.BaseURL = strings.TrimRight(baseURL, "/")

	return openai.NewClientWithConfig(conf)
}

const parserPrompt = `You turn crypto price questions into JSON.
Find the coin the user means, even if misspelled, and return its common
name as "asset" (lowercase, words joined with "-") and its ticker as "symbol".
Copy the date expression the user gave into "date" unchanged, e.g. "yesterday",
"3 days ago" or "2025-12-31". Use "today" when no date is given.
Reply with one JSON object and nothing else:
{"asset":"bitcoin","symbol":"BTC","date":"yesterday"}`

const responderPrompt = `You are a cryptocurrency market assistant.
You receive a JSON comparison of an asset's price on a past date and now.
Write a short, plain answer for beginners that covers: what the asset is
known for, the date and both prices, whether the price rose, fell or stayed
flat, and a sentiment word (bullish, bearish or neutral) based only on that
trend. Use only the data given. No predictions and no financial advice.
End with a reminder that crypto prices are volatile.`

type chatParser struct {
	client   ChatCompleter
	model    string
	resolver dates.Resolver
	now      func() time.Time
}

func NewParser(client ChatCompleter, modelName string, resolver dates.Resolver, now func() time.Time) Parser {
	if now == nil {
		now = time.Now
	}

	return &chatParser{
		client:   client,
		model:    modelName,
		resolver: resolver,
		now:      now,
	}
}

func (p *chatParser) Parse(ctx context.Context, text string) (ParsedQuery, error) {
	raw, err := complete(ctx, p.client, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: parserPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: parseMaxTokens,
	})
	if err != nil {
		return ParsedQuery{}, err
	}

	var reply struct {
		Asset  string `json:"asset"`
		Symbol string `json:"symbol"`
		Date   string `json:"date"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return ParsedQuery{Raw: raw}, fmt.Errorf("%w: %q", ErrNonJSONReply, raw)
	}

	query := ParsedQuery{
		Asset:  strings.ToLower(strings.TrimSpace(reply.Asset)),
		Symbol: model.NormalizeSymbol(reply.Symbol),
		Raw:    raw,
	}
	if iso, ok := p.resolver.Resolve(reply.Date, p.now()); ok {
		query.Date = iso
	}

	return query, nil
}

type chatResponder struct {
	client ChatCompleter
	model  string
}

func NewResponder(client ChatCompleter, modelName string) Responder {
	return &chatResponder{
		client: client,
		model:  modelName,
	}
}

func (r *chatResponder) Respond(ctx context.Context, cmp model.Comparison) (string, error) {
	data, err := json.Marshal(cmp)
	if err != nil {
		return "", err
	}

	return complete(ctx, r.client, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: responderPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(data)},
		},
		MaxTokens: respondMaxTokens,
	})
}

func complete(ctx context.Context, client ChatCompleter, req openai.ChatCompletionRequest) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.WithField("model", req.Model).Debugf("chat reply: %.200s", content)

	return content, nil
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}
