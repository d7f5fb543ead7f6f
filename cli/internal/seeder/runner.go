package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
)

type Config struct {
	Count      int
	Topic      string
	Partitions int

	// Interval pauses between events; zero publishes as fast as possible.
	Interval time.Duration
}

type Result struct {
	Sent   int
	Failed int
}

// Runner publishes generated events.
type Runner struct {
	cfg       Config
	gen       *Generator
	publisher messaging.Publisher

	// Progress, when set, is called after every published event.
	Progress func(done, total int)
}

func NewRunner(cfg Config, gen *Generator, publisher messaging.Publisher) *Runner {
	if cfg.Topic == "" {
		cfg.Topic = messaging.DefaultTopic
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	return &Runner{cfg: cfg, gen: gen, publisher: publisher}
}

// Run publishes cfg.Count events. Publish failures are counted, not
// returned; the error is non-nil only when ctx ends the run early.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	for i := 0; i < r.cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev := r.gen.Event(i, r.cfg.Count)
		if err := r.publish(ctx, ev); err != nil {
			res.Failed++
		} else {
			res.Sent++
		}
		if r.Progress != nil {
			r.Progress(i+1, r.cfg.Count)
		}

		if r.cfg.Interval > 0 && i < r.cfg.Count-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(r.cfg.Interval):
			}
		}
	}
	return res, nil
}

func (r *Runner) publish(ctx context.Context, ev *events.Event) error {
	data, err := events.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.ID, err)
	}
	return r.publisher.PublishMsg(ctx, &messaging.Message{
		Subject:  messaging.SubjectFor(r.cfg.Topic, r.cfg.Partitions, ev.ID),
		Data:     data,
		Metadata: map[string]string{messaging.HeaderExceptionID: ev.ID},
	})
}
