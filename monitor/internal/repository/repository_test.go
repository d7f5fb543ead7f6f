package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/query"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func rec(id, typ string, offset time.Duration, mutate ...func(*models.Record)) *models.Record {
	r := &models.Record{
		ID:            id,
		ExceptionType: typ,
		Message:       typ + " happened",
		Timestamp:     events.NewLocalDateTime(base.Add(offset)),
	}
	for _, m := range mutate {
		m(r)
	}
	return r
}

func withEnv(env string) func(*models.Record) {
	return func(r *models.Record) { r.Environment = env }
}

func withProject(p string) func(*models.Record) {
	return func(r *models.Record) { r.ProjectName = p }
}

func withComponent(c, pod, ip string) func(*models.Record) {
	return func(r *models.Record) { r.ComponentName, r.PodName, r.PodIP = c, pod, ip }
}

func withData(d string) func(*models.Record) {
	return func(r *models.Record) { r.AdditionalData = d }
}

func fixture() []*models.Record {
	return []*models.Record{
		rec("a", "Runtime", -30*time.Minute, withEnv("PROD"), withProject("shop"), withComponent("api", "api-1", "10.0.0.1"),
			withData(`{"httpHeaders":{"X-Trace":"xx-abc-yy"}}`)),
		rec("b", "Runtime", -2*time.Hour, withEnv("UAT"), withProject("shop"), withComponent("api", "api-2", "10.0.0.2")),
		rec("c", "IllegalArgument", -3*time.Hour, withEnv("PROD"), withProject("billing"), withComponent("worker", "w-1", "10.0.1.1"),
			withData(`{"httpHeaders":{"X-Trace":"def"}}`)),
		rec("d", "NullPointer", -48*time.Hour, withComponent("api", "api-1", "10.0.0.1")),
	}
}

func ids(p *models.Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, r := range p.Items {
		out = append(out, r.ID)
	}
	return out
}

func window(start, end time.Duration) models.TimeWindow {
	s, e := base.Add(start), base.Add(end)
	return models.TimeWindow{Start: &s, End: &e}
}

// runRepositoryTests checks behaviour shared by every Repository.
func runRepositoryTests(t *testing.T, repo Repository) {
	ctx := context.Background()
	for _, r := range fixture() {
		require.NoError(t, repo.Put(ctx, r))
	}

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Runtime", got.ExceptionType)
		assert.Equal(t, "PROD", got.Environment)
		assert.Equal(t, base.Add(-30*time.Minute), got.Time())
		assert.Equal(t, `{"httpHeaders":{"X-Trace":"xx-abc-yy"}}`, got.AdditionalData)
		assert.True(t, got.CreatedAt.Valid())

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		page, err := repo.List(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(page))
		assert.Equal(t, int64(4), page.Total)
		assert.Equal(t, 2, page.TotalPages)

		page, err = repo.List(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, ids(page))

		page, err = repo.List(ctx, 5, 2)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, int64(4), page.Total)
	})

	t.Run("unconstrained search equals list", func(t *testing.T) {
		for page := 0; page < 3; page++ {
			got, err := repo.Search(ctx, query.True{}, page, 3)
			require.NoError(t, err)
			want, err := repo.List(ctx, page, 3)
			require.NoError(t, err)
			assert.Equal(t, ids(want), ids(got), "page %d", page)
			assert.Equal(t, want.Total, got.Total, "page %d", page)
		}
	})

	t.Run("search", func(t *testing.T) {
		tests := []struct {
			input string
			want  []string
		}{
			{"exceptionType:Runtime AND environment:PROD", []string{"a"}},
			{"NOT exceptionType:Runtime", []string{"c", "d"}},
			{"headers.X-Trace:*abc*", []string{"a"}},
			{"environment:*", []string{"a", "b", "c"}},
			{"NOT environment:*", []string{"d"}},
			{"podName:api-*", []string{"a", "b", "d"}},
			{"projectName:*op", []string{"a", "b"}},
		}
		for _, tt := range tests {
			q, err := query.Parse(tt.input)
			require.NoError(t, err)
			cond, _ := q.Condition()

			page, err := repo.Search(ctx, cond, 0, 20)
			require.NoError(t, err, tt.input)
			assert.Equal(t, tt.want, ids(page), tt.input)
			assert.Equal(t, int64(len(tt.want)), page.Total, tt.input)
		}
	})

	t.Run("search fallback", func(t *testing.T) {
		page, err := repo.Search(ctx, query.Fallback("exceptionType::::"), 0, 20)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Zero(t, page.Total)

		page, err = repo.Search(ctx, query.Fallback("xx-abc"), 0, 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(page))
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		page, err := repo.Search(ctx, WindowCondition(window(-2*time.Hour, -30*time.Minute)), 0, 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(page))
	})

	t.Run("counts", func(t *testing.T) {
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		n, err = repo.CountSince(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.CountBetween(ctx, window(-3*time.Hour, -time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.CountBetween(ctx, models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("group by", func(t *testing.T) {
		got, err := repo.GroupBy(ctx, models.ColumnExceptionType, models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{
			{Key: "Runtime", Count: 2},
			{Key: "IllegalArgument", Count: 1},
			{Key: "NullPointer", Count: 1},
		}, got)

		got, err = repo.GroupBy(ctx, models.ColumnEnvironment, models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{
			{Key: "PROD", Count: 2},
			{Key: "", Count: 1},
			{Key: "UAT", Count: 1},
		}, got)

		got, err = repo.GroupBy(ctx, models.ColumnProjectName, window(-time.Hour, 0))
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{{Key: "shop", Count: 1}}, got)

		_, err = repo.GroupBy(ctx, models.ColumnMessage, models.TimeWindow{})
		assert.ErrorIs(t, err, ErrInvalidColumn)
	})

	t.Run("derived views", func(t *testing.T) {
		pods, err := repo.PodsByComponent(ctx, "api", models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, []models.PodCount{
			{PodName: "api-1", PodIP: "10.0.0.1", Count: 2},
			{PodName: "api-2", PodIP: "10.0.0.2", Count: 1},
		}, pods)

		comps, err := repo.ComponentsByEnvironment(ctx, "PROD", models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{{Key: "api", Count: 1}, {Key: "worker", Count: 1}}, comps)

		projects, err := repo.ProjectsByEnvironment(ctx, "UAT", models.TimeWindow{})
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{{Key: "shop", Count: 1}}, projects)
	})

	t.Run("distinct", func(t *testing.T) {
		got, err := repo.Distinct(ctx, models.ColumnEnvironment)
		require.NoError(t, err)
		assert.Equal(t, []string{"PROD", "UAT"}, got)

		got, err = repo.Distinct(ctx, models.ColumnMethod)
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = repo.Distinct(ctx, models.ColumnPodIP)
		assert.ErrorIs(t, err, ErrInvalidColumn)
	})

	t.Run("put is idempotent and replaces", func(t *testing.T) {
		r := rec("e", "Timeout", time.Minute, withEnv("INT"))
		require.NoError(t, repo.Put(ctx, r))
		require.NoError(t, repo.Put(ctx, r))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		r.Message = "replaced"
		require.NoError(t, repo.Put(ctx, r))
		got, err := repo.Get(ctx, "e")
		require.NoError(t, err)
		assert.Equal(t, "replaced", got.Message)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryTests(t, NewMemoryRepository())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Put(ctx, rec("a", "Runtime", 0)))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	got.ExceptionType = "changed"

	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Runtime", again.ExceptionType)
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewMemoryRepository()
	assert.ErrorIs(t, repo.Put(ctx, rec("a", "Runtime", 0)), context.Canceled)
	_, err := repo.Search(ctx, query.True{}, 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWindowCondition(t *testing.T) {
	assert.Equal(t, query.True{}, WindowCondition(models.TimeWindow{}))

	sql, args := query.Render(WindowCondition(window(-time.Hour, 0)))
	assert.Equal(t, `("timestamp" >= $1 AND "timestamp" <= $2)`, sql)
	assert.Len(t, args, 2)
}

func mustCond(t *testing.T, input string) query.Expr {
	t.Helper()
	q, err := query.Parse(input)
	require.NoError(t, err)
	cond, dropped := q.Condition()
	require.Empty(t, dropped)
	return cond
}
