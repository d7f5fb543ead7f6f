// Package repository stores exception records and answers the paged,
// counted and grouped reads of the monitor.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/query"
)

var (
	ErrNotFound         = errors.New("exception record not found")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrInvalidColumn    = errors.New("column not allowed")
)

type Repository interface {
	// Put inserts the record or replaces the one with the same id.
	Put(ctx context.Context, rec *models.Record) error
	Get(ctx context.Context, id string) (*models.Record, error)

	// Search returns one page of the records matching cond, newest first,
	// with the total number of matches.
	Search(ctx context.Context, cond query.Expr, page, size int) (*models.Page, error)
	List(ctx context.Context, page, size int) (*models.Page, error)

	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountBetween(ctx context.Context, window models.TimeWindow) (int64, error)

	GroupBy(ctx context.Context, col models.Column, window models.TimeWindow) ([]models.GroupCount, error)
	PodsByComponent(ctx context.Context, component string, window models.TimeWindow) ([]models.PodCount, error)
	ComponentsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error)
	ProjectsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error)
	Distinct(ctx context.Context, col models.Column) ([]string, error)

	Ping(ctx context.Context) error
}

// WindowCondition turns a time window into timestamp bounds.
func WindowCondition(w models.TimeWindow) query.Expr {
	var exprs []query.Expr
	if w.Start != nil {
		exprs = append(exprs, query.Since(*w.Start))
	}
	if w.End != nil {
		exprs = append(exprs, query.Until(*w.End))
	}
	return query.Conjoin(exprs...)
}
