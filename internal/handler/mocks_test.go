package handler

import (
	"context"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/llm"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/stretchr/testify/mock"
)

type mockComparator struct {
	mock.Mock
}

func (m *mockComparator) Compare(ctx context.Context, symbol string, day time.Time) (model.Comparison, error) {
	args := m.Called(ctx, symbol, day)

	return args.Get(0).(model.Comparison), args.Error(1)
}

func (m *mockComparator) CompareText(ctx context.Context, symbol, dateText string) (model.Comparison, error) {
	args := m.Called(ctx, symbol, dateText)

	return args.Get(0).(model.Comparison), args.Error(1)
}

type mockParser struct {
	mock.Mock
}

func (m *mockParser) Parse(ctx context.Context, text string) (llm.ParsedQuery, error) {
	args := m.Called(ctx, text)

	return args.Get(0).(llm.ParsedQuery), args.Error(1)
}

type mockResponder struct {
	mock.Mock
}

func (m *mockResponder) Respond(ctx context.Context, cmp model.Comparison) (string, error) {
	args := m.Called(ctx, cmp)

	return args.String(0), args.Error(1)
}

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, window)

	return args.Get(0).(int64), args.Error(1)
}
