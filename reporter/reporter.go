// Package reporter captures errors raised by a service, enriches them with
// deployment and HTTP request context and publishes them as exception events
// for the monitor. Reporting never blocks the caller and never fails: events
// that cannot be published are logged and dropped.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	natsclient "github.com/telhawk-systems/exception-monitor/common/messaging/nats"
)

// ErrClosed is logged for events handed to a closed Reporter.
var ErrClosed = errors.New("reporter closed")

type Reporter struct {
	cfg       Config
	publisher messaging.Publisher
	logger    *logging.Logger
	now       func() time.Time

	queue   chan *events.Event
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	closeMu sync.Mutex
	// sendMu orders enqueues before the close flag flips, so Close never
	// misses an event sent after its drain began.
	sendMu sync.RWMutex

	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter

	dropped atomic.Int64
}

// New starts a Reporter publishing through publisher.
func New(cfg Config, publisher messaging.Publisher, logger *logging.Logger) *Reporter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Component("reporter")

	r := &Reporter{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan *events.Event, cfg.QueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "exception-publisher",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Publisher circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	go r.run()
	return r
}

// Connect opens a JetStream connection to cfg.Bus.Servers and starts a
// Reporter on it. The Reporter owns the connection.
func Connect(cfg Config, logger *logging.Logger) (*Reporter, error) {
	cfg = cfg.withDefaults()
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = cfg.Bus.Servers
	if cfg.ComponentName != "" {
		natsCfg.Name = cfg.ComponentName
	}
	if logger != nil {
		natsCfg.Logger = logger.Logger
	}

	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect reporter: %w", err)
	}
	return New(cfg, js, logger), nil
}

// Handle reports err with optional additional data.
func (r *Reporter) Handle(ctx context.Context, err error, additionalData map[string]any) {
	r.report(ctx, err, nil, additionalData)
}

// HandleWithHTTPHeaders reports err with the request captured in scope. The
// headers, query parameters and remote address go to additional data.
func (r *Reporter) HandleWithHTTPHeaders(ctx context.Context, scope *RequestScope, err error, additionalData map[string]any) {
	r.report(ctx, err, scope, additionalData)
}

func (r *Reporter) report(ctx context.Context, err error, scope *RequestScope, extra map[string]any) {
	if err == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Reporting an exception panicked", slog.Any("panic", p))
		}
	}()

	ev, buildErr := r.buildEvent(err, scope, extra)
	if buildErr != nil {
		r.logger.ErrorContext(ctx, "Failed to build exception event", logging.Error(buildErr))
		return
	}

	r.logger.ErrorContext(ctx, "Exception reported",
		logging.EventID(ev.ID),
		slog.String("exception_type", ev.ExceptionType),
		logging.Error(err),
	)

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed.Load() {
		r.drop(ctx, ev, ErrClosed)
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.drop(ctx, ev, errors.New("queue full"))
	}
}

func (r *Reporter) drop(ctx context.Context, ev *events.Event, reason error) {
	r.dropped.Add(1)
	r.logger.WarnContext(ctx, "Dropping exception event",
		logging.EventID(ev.ID),
		logging.Error(reason),
	)
}

// Dropped is the number of events that were never published.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Reporter) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.publish(context.Background(), ev)
		case <-r.stop:
			return
		}
	}
}

func (r *Reporter) publish(ctx context.Context, ev *events.Event) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		r.drop(ctx, ev, fmt.Errorf("rate limited: %w", err))
		return
	}

	data, err := events.Encode(ev)
	if err != nil {
		r.drop(ctx, ev, err)
		return
	}

	msg := &messaging.Message{
		Subject:  messaging.SubjectFor(r.cfg.Bus.Topic, r.cfg.Bus.Partitions, ev.ID),
		Data:     data,
		Metadata: map[string]string{messaging.HeaderExceptionID: ev.ID},
	}
	_, err = r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.publisher.PublishMsg(ctx, msg)
	})
	if err != nil {
		r.drop(ctx, ev, err)
		return
	}
	r.logger.DebugContext(ctx, "Published exception event",
		logging.EventID(ev.ID),
		logging.Subject(msg.Subject),
	)
}

// Close stops accepting events, publishes what is queued until ctx expires
// and closes the publisher. Events still queued when ctx expires are dropped.
func (r *Reporter) Close(ctx context.Context) error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	r.sendMu.Lock()
	already := r.closed.Swap(true)
	r.sendMu.Unlock()
	if already {
		return nil
	}

	close(r.stop)
	<-r.done

	var drainErr error
drain:
	for {
		select {
		case ev := <-r.queue:
			if ctx.Err() != nil {
				r.drop(ctx, ev, ctx.Err())
				continue
			}
			r.publish(ctx, ev)
		default:
			break drain
		}
	}
	if ctx.Err() != nil {
		drainErr = fmt.Errorf("reporter closed before the queue drained: %w", ctx.Err())
	}

	return errors.Join(drainErr, r.publisher.Close())
}
