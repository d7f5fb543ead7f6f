// Package ingest consumes exception events from the bus and stores them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	natsclient "github.com/telhawk-systems/exception-monitor/common/messaging/nats"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/metrics"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/mirror"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
)

const DefaultShutdownGrace = 10 * time.Second

// Failure reasons reported on the failed messages counter.
const (
	ReasonDecode   = "decode"
	ReasonValidate = "validate"
	ReasonStore    = "store"
)

type Config struct {
	Topic         string
	Group         string
	Stream        string
	Partitions    int
	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topic:         messaging.DefaultTopic,
		Group:         messaging.DefaultConsumerGroup,
		Stream:        messaging.DefaultStream,
		Partitions:    1,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.Group == "" {
		c.Group = d.Group
	}
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.Partitions <= 0 {
		c.Partitions = d.Partitions
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	return c
}

// Worker runs one serial consumer per partition of the topic. Each consumed
// event is stored and then mirrored; a message is acknowledged once it has
// been handled, whether or not it could be stored.
type Worker struct {
	cfg    Config
	js     *natsclient.JetStreamClient
	repo   repository.Repository
	mirror mirror.Mirror
	logger *logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	consumptions []*natsclient.Consumption
}

func NewWorker(cfg Config, js *natsclient.JetStreamClient, repo repository.Repository, m mirror.Mirror, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = mirror.Nop{}
	}
	return &Worker{
		cfg:    cfg.withDefaults(),
		js:     js,
		repo:   repo,
		mirror: m,
		logger: logger.Component("ingest"),
		now:    time.Now,
	}
}

// Start declares the stream and the per-partition durable consumers, then
// begins consuming. Handlers receive ctx; cancelling it makes in-flight
// messages go back to the stream.
func (w *Worker) Start(ctx context.Context) error {
	if w.js == nil {
		return errors.New("ingest worker has no JetStream client")
	}

	streamCfg := natsclient.DefaultStreamConfig(w.cfg.Stream, messaging.StreamSubjects(w.cfg.Topic))
	if _, err := w.js.CreateOrUpdateStream(ctx, streamCfg); err != nil {
		return err
	}

	for p := 0; p < w.cfg.Partitions; p++ {
		name := messaging.ConsumerName(w.cfg.Group, w.cfg.Partitions, p)
		subject := messaging.PartitionSubject(w.cfg.Topic, w.cfg.Partitions, p)

		if _, err := w.js.CreateOrUpdateConsumer(ctx, w.cfg.Stream, natsclient.DefaultConsumerConfig(name, subject)); err != nil {
			w.stopAll()
			return err
		}

		c, err := w.js.ConsumeMessages(ctx, w.cfg.Stream, name, w.handlerFor(p))
		if err != nil {
			w.stopAll()
			return err
		}

		w.mu.Lock()
		w.consumptions = append(w.consumptions, c)
		w.mu.Unlock()

		w.logger.InfoContext(ctx, "Consuming exception events",
			logging.Consumer(name),
			logging.Subject(subject),
			logging.Partition(p),
		)
	}
	return nil
}

func (w *Worker) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.consumptions {
		c.Stop()
	}
	w.consumptions = nil
}

// Stop drains every consumer, waiting for in-flight handlers up to the
// configured grace period or until ctx is done.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	consumptions := w.consumptions
	w.consumptions = nil
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.ShutdownGrace)
	defer cancel()

	var errs []error
	for _, c := range consumptions {
		if err := c.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to drain consumers: %w", err)
	}
	w.logger.InfoContext(ctx, "Ingestion stopped")
	return nil
}

func (w *Worker) handlerFor(partition int) messaging.MessageHandler {
	label := strconv.Itoa(partition)
	return func(ctx context.Context, msg *messaging.Message) error {
		metrics.MessagesReceived.WithLabelValues(label).Inc()
		return w.Handle(ctx, msg)
	}
}

// Handle processes one message. It only fails, asking for redelivery, when
// ctx was cancelled before the event could be stored. Undecodable, invalid
// and unstorable events are logged and dropped.
func (w *Worker) Handle(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", natsclient.ErrRedeliver, err)
	}

	ev, err := events.Decode(msg.Data)
	if err != nil {
		w.drop(ctx, msg, ReasonDecode, err)
		return nil
	}

	if !ev.Timestamp.Valid() {
		metrics.TimestampFallbacks.Inc()
		w.logger.WarnContext(ctx, "Event timestamp missing or malformed, using ingestion time",
			logging.EventID(ev.ID),
			slog.String("timestamp", ev.Timestamp.Raw),
		)
		ev.Timestamp = events.NewLocalDateTime(w.now())
	}

	if err := events.Validate(ev); err != nil {
		w.drop(ctx, msg, ReasonValidate, err)
		return nil
	}

	rec := models.RecordFromEvent(ev, w.now())

	start := time.Now()
	err = w.repo.Put(ctx, rec)
	metrics.StoreDuration.WithLabelValues("put").Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", natsclient.ErrRedeliver, err)
		}
		w.drop(ctx, msg, ReasonStore, err)
		return nil
	}
	metrics.MessagesStored.Inc()

	w.logger.DebugContext(ctx, "Stored exception event",
		logging.EventID(rec.ID),
		slog.String("exception_type", rec.ExceptionType),
	)

	if err := w.mirror.Index(ctx, rec); err != nil {
		metrics.MirrorFailures.Inc()
		w.logger.WarnContext(ctx, "Failed to mirror exception event",
			logging.EventID(rec.ID),
			logging.Error(err),
		)
	}
	return nil
}

func (w *Worker) drop(ctx context.Context, msg *messaging.Message, reason string, err error) {
	metrics.MessagesFailed.WithLabelValues(reason).Inc()
	w.logger.ErrorContext(ctx, "Dropping exception event",
		logging.EventID(msg.Key()),
		logging.Subject(msg.Subject),
		slog.String("reason", reason),
		logging.Error(err),
	)
}
