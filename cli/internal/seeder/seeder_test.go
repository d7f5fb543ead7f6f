package seeder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	fail func(n int) bool
}

func (p *capturePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil && p.fail(len(p.msgs)) {
		p.msgs = append(p.msgs, nil)
		return errors.New("no responders")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestGenerator_EventsAreValid(t *testing.T) {
	gen := NewGenerator(42)
	gen.HTTPRatio = 1

	for i := 0; i < 50; i++ {
		ev := gen.Event(i, 50)
		require.NoError(t, events.Validate(ev))
		assert.Contains(t, exceptionTypes, ev.ExceptionType)
		assert.Contains(t, environments, ev.Environment)
		assert.NotEmpty(t, ev.StackTrace)
		assert.NotEmpty(t, ev.Method)

		data, err := events.ParseAdditionalData(ev.AdditionalData)
		require.NoError(t, err)
		assert.Contains(t, data.HeaderNames(), "Authorization")
		assert.True(t, data.HasRemoteInfo())
		assert.NotContains(t, string(ev.AdditionalData), "Bearer")
	}
}

func TestGenerator_Repeatable(t *testing.T) {
	a, b := NewGenerator(7), NewGenerator(7)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	b.now = a.now

	ea, eb := a.Event(0, 1), b.Event(0, 1)
	assert.Equal(t, ea.ExceptionType, eb.ExceptionType)
	assert.Equal(t, ea.Message, eb.Message)
	assert.Equal(t, ea.PodName, eb.PodName)
	assert.NotEqual(t, ea.ID, eb.ID, "ids stay unique")
}

func TestGenerator_Spread(t *testing.T) {
	gen := NewGenerator(1)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	gen.now = func() time.Time { return now }

	assert.Equal(t, now, gen.timestamp(3, 10), "no spread means now")

	gen.Spread = 24 * time.Hour
	for i := 0; i < 100; i++ {
		ts := gen.timestamp(i, 100)
		assert.False(t, ts.After(now))
		assert.False(t, ts.Before(now.Add(-24*time.Hour)))
	}
	assert.True(t, gen.timestamp(0, 100).Before(now.Add(-23*time.Hour)))
}

func TestRunner_Publishes(t *testing.T) {
	pub := &capturePublisher{}
	r := NewRunner(Config{Count: 20, Topic: "exceptions", Partitions: 3}, NewGenerator(3), pub)

	var progress []int
	r.Progress = func(done, total int) {
		assert.Equal(t, 20, total)
		progress = append(progress, done)
	}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 20}, res)
	assert.Len(t, progress, 20)

	for _, msg := range pub.msgs {
		ev, err := events.Decode(msg.Data)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, msg.Metadata[messaging.HeaderExceptionID])
		assert.Equal(t, messaging.SubjectFor("exceptions", 3, ev.ID), msg.Subject)
	}
}

func TestRunner_CountsFailures(t *testing.T) {
	pub := &capturePublisher{fail: func(n int) bool { return n%2 == 0 }}
	r := NewRunner(Config{Count: 6}, NewGenerator(3), pub)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 3, Failed: 3}, res)
	assert.Equal(t, messaging.DefaultTopic, pub.msgs[1].Subject)
}

func TestRunner_Cancelled(t *testing.T) {
	pub := &capturePublisher{}
	r := NewRunner(Config{Count: 100, Interval: time.Hour}, NewGenerator(3), pub)

	ctx, cancel := context.WithCancel(context.Background())
	r.Progress = func(done, _ int) {
		if done == 1 {
			cancel()
		}
	}

	res, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Sent)
}
