package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/service"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Request is one compare job read from the request topic.
type Request struct {
	RequestID string `json:"request_id"`
	Symbol    string `json:"symbol"`
	Date      string `json:"date"`
}

// Result is written to the result topic, keyed by symbol.
type Result struct {
	RequestID  string            `json:"request_id"`
	Comparison *model.Comparison `json:"comparison,omitempty"`
	Error      *ResultError      `json:"error,omitempty"`
}

type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type consumer struct {
	readers    []MessageReader
	writer     MessageWriter
	comparator service.Comparator
}

type Reader interface {
	// Read blocks until ctx is done or every reader has stopped.
	Read(ctx context.Context)
}

// New joins groupID with workers readers on requestTopic and answers on resultTopic.
func New(brokerURL, requestTopic, resultTopic, groupID string, workers int, comparator service.Comparator) Reader {
	readers := make([]MessageReader, 0, max(workers, 1))
	for i := 0; i < max(workers, 1); i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{brokerURL},
			Topic:   requestTopic,
			GroupID: groupID,
		}))
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerURL),
		Topic:                  resultTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	return NewWithClients(readers, writer, comparator)
}

func NewWithClients(readers []MessageReader, writer MessageWriter, comparator service.Comparator) Reader {
	return &consumer{
		readers:    readers,
		writer:     writer,
		comparator: comparator,
	}
}

func (cons *consumer) Read(ctx context.Context) {
	var wg sync.WaitGroup

	for i, reader := range cons.readers {
		wg.Add(1)

		go func(num int, reader MessageReader) {
			defer wg.Done()
			defer reader.Close()

			log.Info("Successful start of kafka reader ", num)
			cons.readLoop(ctx, num, reader)
		}(i, reader)
	}

	wg.Wait()

	if err := cons.writer.Close(); err != nil {
		log.Errorf("closing kafka writer: %v", err)
	}
}

func (cons *consumer) readLoop(ctx context.Context, num int, reader MessageReader) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			log.Info(fmt.Sprintf("exiting kafka read goroutine-%d", num))
			return
		}
		if err != nil {
			log.Error(fmt.Sprintf("error occurred in goroutine-%d: %v", num, err))
			return
		}

		out, ok := cons.handle(ctx, msg)
		if !ok {
			continue
		}

		if err := cons.writer.WriteMessages(ctx, out); err != nil {
			log.Errorf("writing compare result: %v", err)
		}
	}
}

// handle turns one request message into a result message. Malformed
// requests are skipped.
func (cons *consumer) handle(ctx context.Context, msg kafka.Message) (kafka.Message, bool) {
	var req Request
	if err := json.Unmarshal(msg.Value, &req); err != nil || req.Symbol == "" {
		log.WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warnf("skipping malformed compare request: %.128s", msg.Value)
		return kafka.Message{}, false
	}

	res := Result{RequestID: req.RequestID}

	cmp, err := cons.comparator.CompareText(ctx, req.Symbol, req.Date)
	if err != nil {
		log.WithField("request_id", req.RequestID).Infof("compare request failed: %v", err)
		res.Error = &ResultError{
			Kind:    model.Kind(err),
			Message: model.UserMessage(err),
		}
	} else {
		res.Comparison = &cmp
	}

	value, err := json.Marshal(res)
	if err != nil {
		log.Errorf("encode compare result: %v", err)
		return kafka.Message{}, false
	}

	return kafka.Message{
		Key:   []byte(model.NormalizeSymbol(req.Symbol)),
		Value: value,
	}, true
}
