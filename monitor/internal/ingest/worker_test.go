package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	natsclient "github.com/telhawk-systems/exception-monitor/common/messaging/nats"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingMirror struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (m *recordingMirror) Index(_ context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, rec.ID)
	return m.err
}

type failingPut struct {
	repository.Repository
	err error
}

func (f failingPut) Put(context.Context, *models.Record) error { return f.err }

func newTestWorker(repo repository.Repository, m *recordingMirror) *Worker {
	w := NewWorker(Config{}, nil, repo, m, logging.Discard())
	w.now = func() time.Time { return fixedNow }
	return w
}

func message(id, payload string) *messaging.Message {
	return &messaging.Message{
		Subject:  messaging.DefaultTopic,
		Data:     []byte(payload),
		Metadata: map[string]string{messaging.HeaderExceptionID: id},
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Topic: "errors"}.withDefaults()
	assert.Equal(t, "errors", cfg.Topic)
	assert.Equal(t, messaging.DefaultConsumerGroup, cfg.Group)
	assert.Equal(t, messaging.DefaultStream, cfg.Stream)
	assert.Equal(t, 1, cfg.Partitions)
	assert.Equal(t, DefaultShutdownGrace, cfg.ShutdownGrace)
}

func TestHandle_StoresAndMirrors(t *testing.T) {
	repo := repository.NewMemoryRepository()
	m := &recordingMirror{}
	w := newTestWorker(repo, m)
	ctx := context.Background()

	err := w.Handle(ctx, message("e1", `{
		"id": "e1",
		"exceptionType": "IllegalStateException",
		"message": "boom",
		"timestamp": "2024-04-30T08:15:30",
		"environment": "PROD",
		"additionalData": {"httpHeaders": {"X-Trace": "abc"}}
	}`))
	require.NoError(t, err)

	rec, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "IllegalStateException", rec.ExceptionType)
	assert.Equal(t, "PROD", rec.Environment)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 15, 30, 0, time.UTC), rec.Time())
	assert.Equal(t, `{"httpHeaders": {"X-Trace": "abc"}}`, rec.AdditionalData)
	assert.Equal(t, fixedNow, rec.CreatedAt.Time)
	assert.Equal(t, []string{"e1"}, m.ids)
}

func TestHandle_AdditionalDataStoredVerbatim(t *testing.T) {
	repo := repository.NewMemoryRepository()
	w := newTestWorker(repo, &recordingMirror{})
	ctx := context.Background()

	blob := `{ "k" : "v",  "n": 1, "html": "<b>\u0026</b>" }`
	require.NoError(t, w.Handle(ctx, message("v1", `{"id":"v1","exceptionType":"E","additionalData":`+blob+`}`)))

	rec, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, blob, rec.AdditionalData)
}

func TestHandle_TimestampFallback(t *testing.T) {
	repo := repository.NewMemoryRepository()
	w := newTestWorker(repo, &recordingMirror{})
	ctx := context.Background()

	for id, ts := range map[string]string{
		"missing":   `{"id":"missing","exceptionType":"E"}`,
		"malformed": `{"id":"malformed","exceptionType":"E","timestamp":"yesterday"}`,
		"numeric":   `{"id":"numeric","exceptionType":"E","timestamp":12}`,
	} {
		require.NoError(t, w.Handle(ctx, message(id, ts)), id)

		rec, err := repo.Get(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, fixedNow, rec.Time(), id)
	}
}

func TestHandle_DropsBadEvents(t *testing.T) {
	repo := repository.NewMemoryRepository()
	m := &recordingMirror{}
	w := newTestWorker(repo, m)
	ctx := context.Background()

	for _, payload := range []string{
		`not json`,
		`{"exceptionType":"E"}`,
		`{"id":"x"}`,
		`[]`,
	} {
		assert.NoError(t, w.Handle(ctx, message("x", payload)), payload)
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, m.ids)
}

func TestHandle_StoreFailureIsAcknowledged(t *testing.T) {
	m := &recordingMirror{}
	w := newTestWorker(failingPut{Repository: repository.NewMemoryRepository(), err: repository.ErrStoreUnavailable}, m)

	err := w.Handle(context.Background(), message("e1", `{"id":"e1","exceptionType":"E"}`))
	assert.NoError(t, err)
	assert.Empty(t, m.ids, "unstored events are not mirrored")
}

func TestHandle_MirrorFailureDoesNotFail(t *testing.T) {
	repo := repository.NewMemoryRepository()
	w := newTestWorker(repo, &recordingMirror{err: errors.New("cluster red")})

	require.NoError(t, w.Handle(context.Background(), message("e1", `{"id":"e1","exceptionType":"E"}`)))
	_, err := repo.Get(context.Background(), "e1")
	assert.NoError(t, err)
}

func TestHandle_CancelledContextRedelivers(t *testing.T) {
	repo := repository.NewMemoryRepository()
	w := newTestWorker(repo, &recordingMirror{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Handle(ctx, message("e1", `{"id":"e1","exceptionType":"E"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, natsclient.ErrRedeliver)

	n, _ := repo.Count(context.Background())
	assert.Zero(t, n)
}

func TestHandle_IdempotentRedelivery(t *testing.T) {
	repo := repository.NewMemoryRepository()
	w := newTestWorker(repo, &recordingMirror{})
	ctx := context.Background()

	msg := message("e1", `{"id":"e1","exceptionType":"E","timestamp":"2024-04-30T08:15:30"}`)
	require.NoError(t, w.Handle(ctx, msg))
	require.NoError(t, w.Handle(ctx, msg))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStart_RequiresClient(t *testing.T) {
	w := newTestWorker(repository.NewMemoryRepository(), &recordingMirror{})
	assert.Error(t, w.Start(context.Background()))
}

func startJetStream(t *testing.T) *natsclient.JetStreamClient {
	t.Helper()

	srv, err := natsclient.StartEmbedded(natsclient.EmbeddedConfig{Port: -1, StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	cfg := natsclient.DefaultConfig()
	cfg.URL = srv.ClientURL()
	js, err := natsclient.NewJetStreamClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Close() })
	return js
}

func TestWorker_ConsumesPartitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}
	js := startJetStream(t)
	repo := repository.NewMemoryRepository()
	m := &recordingMirror{}

	w := NewWorker(Config{Partitions: 3, ShutdownGrace: 5 * time.Second}, js, repo, m, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		require.NoError(t, js.PublishMsg(ctx, &messaging.Message{
			Subject:  messaging.SubjectFor(messaging.DefaultTopic, 3, id),
			Data:     []byte(`{"id":"` + id + `","exceptionType":"E","timestamp":"2024-04-30T08:15:30"}`),
			Metadata: map[string]string{messaging.HeaderExceptionID: id},
		}))
	}
	require.NoError(t, js.PublishMsg(ctx, &messaging.Message{
		Subject: messaging.SubjectFor(messaging.DefaultTopic, 3, "bad"),
		Data:    []byte(`garbage`),
	}))

	require.Eventually(t, func() bool {
		n, err := repo.Count(ctx)
		return err == nil && n == int64(len(ids))
	}, 10*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))

	m.mu.Lock()
	assert.ElementsMatch(t, ids, m.ids)
	m.mu.Unlock()
}
