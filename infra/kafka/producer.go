package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"matchcore/domain/event"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CommandProducer publishes submissions to the command topic instead of
// calling the engine directly. Messages are keyed by user id.
type CommandProducer struct {
	writer messageWriter
}

func NewCommandProducer(brokers []string, topic string) *CommandProducer {
	return &CommandProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *CommandProducer) SubmitOrder(ctx context.Context, o event.OrderPlaced) error {
	if err := o.Validate(); err != nil {
		return err
	}
	body, err := EncodeOrder(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	return p.send(ctx, o.UserID, body)
}

func (p *CommandProducer) SubmitDeposit(ctx context.Context, d event.Deposit) error {
	if err := d.Validate(); err != nil {
		return err
	}
	body, err := EncodeDeposit(d)
	if err != nil {
		return errors.Wrap(err, "encode deposit")
	}
	return p.send(ctx, d.UserID, body)
}

func (p *CommandProducer) send(ctx context.Context, user int64, body []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   userKey(user),
		Value: body,
	})
	return errors.Wrap(err, "publish command")
}

func (p *CommandProducer) Close() error {
	return p.writer.Close()
}
