// Package consumer pulls platform export payloads off Kafka and feeds them
// into the reconciliation pipeline. Platform bridges publish the same JSON
// bodies the HTTP ingest endpoints accept.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader surface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of one platform export record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Platform  string
	BatchID   string
	Payload   []byte
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a
// Handler. Offsets are committed only after a successful handle, except for
// undecodable messages, which are committed to avoid poison-pill loops.
type Processor struct {
	reader  Reader
	handler Handler
	log     *slog.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, log *slog.Logger) *Processor {
	return &Processor{reader: reader, handler: handler, log: log}
}

// Run starts a blocking loop that processes messages until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.log.Error("fetch error", "error", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.log.Error("decode error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			recordDecodeError(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.log.Error("commit error after decode failure", "error", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.log.Error("handler error", "platform", event.Platform, "batch", event.BatchID, "error", handleErr)
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.log.Error("commit error", "error", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}

	platform, ok := headerValue(msg, "platform")
	if !ok {
		return Message{}, errors.New("missing platform header")
	}
	switch string(platform) {
	case "apple_healthkit", "google_health_connect":
	default:
		return Message{}, fmt.Errorf("unknown platform %q", platform)
	}
	batchID, _ := headerValue(msg, "batch_id")

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Platform:  string(platform),
		BatchID:   string(batchID),
		Payload:   append([]byte(nil), msg.Value...),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
