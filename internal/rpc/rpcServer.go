package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/service"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type server struct {
	comparator service.Comparator
}

func NewComparatorServer(comparator service.Comparator) ComparatorServer {
	return &server{
		comparator: comparator,
	}
}

func (s *server) Compare(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := req.GetFields()["symbol"].GetStringValue()
	date := req.GetFields()["date"].GetStringValue()
	if symbol == "" || date == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol and date are required")
	}

	cmp, err := s.comparator.CompareText(ctx, symbol, date)
	if err != nil {
		log.WithField("kind", model.Kind(err)).Errorf("Compare error: %v", err)
		return nil, status.Error(codeOf(err), model.UserMessage(err))
	}

	resp, err := toStruct(cmp)
	if err != nil {
		log.Errorf("Compare encode error: %v", err)
		return nil, status.Error(codes.Internal, "encode comparison")
	}

	return resp, nil
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, model.ErrInvalidDate):
		return codes.InvalidArgument
	case errors.Is(err, model.ErrInvalidSymbol), errors.Is(err, model.ErrNoDataForDate):
		return codes.NotFound
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// toStruct goes through the comparison's JSON form so prices stay decimal strings.
func toStruct(cmp model.Comparison) (*structpb.Struct, error) {
	data, err := json.Marshal(cmp)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	return structpb.NewStruct(fields)
}
