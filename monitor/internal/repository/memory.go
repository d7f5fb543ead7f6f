package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/query"
)

// MemoryRepository keeps records in a map. It evaluates conditions with
// query.Expr.Match and serves tests and the --memory development mode.
type MemoryRepository struct {
	records map[string]*models.Record
	now     func() time.Time
	mu      sync.RWMutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*models.Record),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Put(ctx context.Context, rec *models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *rec
	if !cp.CreatedAt.Valid() {
		cp.CreatedAt = events.NewLocalDateTime(r.now())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[cp.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// matching returns copies of the records matching cond, newest first.
func (r *MemoryRepository) matching(cond query.Expr) []*models.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Record
	for _, rec := range r.records {
		if cond == nil || cond.Match(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Time(), out[j].Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *MemoryRepository) Search(ctx context.Context, cond query.Expr, page, size int) (*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := r.matching(cond)

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return models.NewPage(all[start:end], int64(len(all)), page, size), nil
}

func (r *MemoryRepository) List(ctx context.Context, page, size int) (*models.Page, error) {
	return r.Search(ctx, query.True{}, page, size)
}

func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}

func (r *MemoryRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return int64(len(r.matching(query.Since(since)))), nil
}

func (r *MemoryRepository) CountBetween(ctx context.Context, window models.TimeWindow) (int64, error) {
	return int64(len(r.matching(WindowCondition(window)))), nil
}

func (r *MemoryRepository) groupBy(col models.Column, cond query.Expr) []models.GroupCount {
	counts := make(map[string]int64)
	for _, rec := range r.matching(cond) {
		v, _ := rec.Value(col)
		counts[v]++
	}
	return sortCounts(counts)
}

func sortCounts(counts map[string]int64) []models.GroupCount {
	out := make([]models.GroupCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.GroupCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (r *MemoryRepository) GroupBy(ctx context.Context, col models.Column, window models.TimeWindow) ([]models.GroupCount, error) {
	if !col.IsGroupColumn() {
		return nil, ErrInvalidColumn
	}
	return r.groupBy(col, WindowCondition(window)), nil
}

func (r *MemoryRepository) PodsByComponent(ctx context.Context, component string, window models.TimeWindow) ([]models.PodCount, error) {
	type pod struct{ name, ip string }
	counts := make(map[pod]int64)
	cond := query.Conjoin(query.Cmp{Column: models.ColumnComponentName, Value: component}, WindowCondition(window))
	for _, rec := range r.matching(cond) {
		counts[pod{rec.PodName, rec.PodIP}]++
	}

	out := make([]models.PodCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, models.PodCount{PodName: p.name, PodIP: p.ip, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].PodName != out[j].PodName {
			return out[i].PodName < out[j].PodName
		}
		return out[i].PodIP < out[j].PodIP
	})
	return out, nil
}

func (r *MemoryRepository) ComponentsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error) {
	cond := query.Conjoin(query.Cmp{Column: models.ColumnEnvironment, Value: environment}, WindowCondition(window))
	return r.groupBy(models.ColumnComponentName, cond), nil
}

func (r *MemoryRepository) ProjectsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error) {
	cond := query.Conjoin(query.Cmp{Column: models.ColumnEnvironment, Value: environment}, WindowCondition(window))
	return r.groupBy(models.ColumnProjectName, cond), nil
}

func (r *MemoryRepository) Distinct(ctx context.Context, col models.Column) ([]string, error) {
	if !col.IsDistinctColumn() {
		return nil, ErrInvalidColumn
	}
	seen := make(map[string]struct{})
	for _, rec := range r.matching(query.True{}) {
		if v, ok := rec.Value(col); ok {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
