package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"matchcore/domain/execution"
	"matchcore/infra/metrics"
	"matchcore/infra/outbox"
)

const (
	DefaultInterval = 250 * time.Millisecond
	MaxRetries      = 5
)

// Store is the slice of the outbox the broadcaster drains.
type Store interface {
	ScanByState(state outbox.State, fn func(outbox.Entry) error) error
	Mark(seq uint64, state outbox.State, retries uint32) error
	Delete(seq uint64) error
}

/*
Broadcaster publishes execution reports from the outbox to Kafka.

IMPORTANT:
  - Delivery is at-least-once: an entry marked SENT whose ack was lost is
    published again after a restart
  - Reports are keyed by user id, so one user's reports stay ordered within
    a partition
*/
type Broadcaster struct {
	store    Store
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// NewProducer builds the sync producer New expects.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka report producer")
	}
	return p, nil
}

func New(
	store Store,
	producer sarama.SyncProducer,
	topic string,
	interval time.Duration,
	log *zap.Logger,
) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		store:    store,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run publishes pending entries every interval until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster_started", zap.String("topic", b.topic), zap.Duration("interval", b.interval))

	if n, err := b.Requeue(); err != nil {
		b.log.Error("broadcaster_requeue_failed", zap.Error(err))
	} else if n > 0 {
		b.log.Warn("broadcaster_requeued_unacked", zap.Int("entries", n))
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster_stopped")
			return
		case <-ticker.C:
			if _, err := b.PublishPending(); err != nil {
				b.log.Error("broadcast_round_failed", zap.Error(err))
			}
		}
	}
}

// PublishPending makes one pass over NEW entries and then FAILED entries
// that still have retries left. It returns how many were published.
func (b *Broadcaster) PublishPending() (int, error) {
	published := 0
	attempted := make(map[uint64]struct{})
	visit := func(e outbox.Entry) error {
		if e.State == outbox.StateFailed && e.Retries >= MaxRetries {
			return nil
		}
		if _, seen := attempted[e.Seq]; seen {
			return nil
		}
		attempted[e.Seq] = struct{}{}
		ok, err := b.publish(e)
		if ok {
			published++
		}
		return err
	}

	if err := b.store.ScanByState(outbox.StateNew, visit); err != nil {
		return published, err
	}
	if err := b.store.ScanByState(outbox.StateFailed, visit); err != nil {
		return published, err
	}
	return published, nil
}

// Requeue turns SENT entries back into NEW. A SENT entry at startup means
// the previous process died between send and delete.
func (b *Broadcaster) Requeue() (int, error) {
	n := 0
	err := b.store.ScanByState(outbox.StateSent, func(e outbox.Entry) error {
		n++
		return b.store.Mark(e.Seq, outbox.StateNew, e.Retries)
	})
	return n, err
}

// publish returns an error only when the outbox itself fails.
func (b *Broadcaster) publish(e outbox.Entry) (bool, error) {
	if err := b.store.Mark(e.Seq, outbox.StateSent, e.Retries); err != nil {
		return false, err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(e.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(e.Seq, 10))},
		},
	}
	if r, err := execution.Unmarshal(e.Payload); err == nil {
		msg.Key = sarama.StringEncoder(strconv.FormatInt(r.UserID, 10))
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		metrics.OutboxPublished.WithLabelValues("failed").Inc()
		b.log.Warn("report_publish_failed",
			zap.Uint64("seq", e.Seq),
			zap.Uint32("retries", e.Retries+1),
			zap.Error(err))
		return false, b.store.Mark(e.Seq, outbox.StateFailed, e.Retries+1)
	}

	metrics.OutboxPublished.WithLabelValues("ok").Inc()
	return true, b.store.Delete(e.Seq)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
