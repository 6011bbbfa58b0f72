package kafka

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"matchcore/domain/event"
	"matchcore/domain/instrument"
)

// Engine is what the consumer feeds.
type Engine interface {
	SubmitOrder(ctx context.Context, o event.OrderPlaced) error
	SubmitDeposit(ctx context.Context, d event.Deposit) error
}

// Instruments resolves the instrument an order targets.
type Instruments interface {
	GetByID(id int64) (instrument.Instrument, bool)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

/*
Consumer moves commands from the command topic into the engine.

IMPORTANT:
  - A message is committed only after the engine accepted it into its queue
  - Undecodable or invalid messages are logged and committed; they would
    fail the same way on every redelivery
  - Orders get the same instrument checks (minimum amount, tick size,
    precision) as the gRPC facade; unknown instruments go through so the
    engine reports the rejection
  - Commit happens once the command is queued, not processed. Commands
    still queued when the engine stops or halts are lost
  - If the engine refuses a valid command (stopped or halted) the consumer
    returns without committing, so the message is redelivered later
*/
type Consumer struct {
	reader      messageReader
	engine      Engine
	instruments Instruments
	log         *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, engine Engine, instruments Instruments, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Sugar().Errorf(msg, args...)
		}),
	})
	return &Consumer{reader: r, engine: engine, instruments: instruments, log: log}
}

// Run consumes until ctx ends or the engine stops accepting.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("kafka_intake_started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch command")
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit command")
		}
	}
}

// handle returns an error only when the message must not be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := Decode(msg.Value)
	if err != nil {
		c.log.Warn("kafka_command_dropped",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	switch ev := ev.(type) {
	case event.OrderPlaced:
		if inst, ok := c.instruments.GetByID(ev.InstrumentID); ok {
			if verr := inst.ValidateOrder(ev.Amount, ev.Price); verr != nil {
				c.log.Warn("kafka_command_invalid",
					zap.Int64("offset", msg.Offset),
					zap.String("instrument", inst.Symbol),
					zap.Error(verr))
				return nil
			}
		}
		err = c.engine.SubmitOrder(ctx, ev)
	case event.Deposit:
		err = c.engine.SubmitDeposit(ctx, ev)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, event.ErrInvalidOrder) || errors.Is(err, event.ErrInvalidDeposit) {
		c.log.Warn("kafka_command_invalid", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	return errors.Wrapf(err, "submit command at offset %d", msg.Offset)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
