// Package service implements the exception search executor and the
// statistics behind the dashboard and breakdown pages.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/metrics"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/query"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

type SearchOptions struct {
	DefaultPageSize int
	MaxPageSize     int
}

type SearchService struct {
	repo        repository.Repository
	logger      *logging.Logger
	defaultSize int
	maxSize     int
}

func NewSearchService(repo repository.Repository, logger *logging.Logger, opts SearchOptions) *SearchService {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	return &SearchService{
		repo:        repo,
		logger:      logger.Component("search"),
		defaultSize: opts.DefaultPageSize,
		maxSize:     opts.MaxPageSize,
	}
}

// Condition builds the predicate of req: the non-empty structured filters,
// the advanced query and the time window, all conjoined. An advanced query
// that does not parse becomes a substring match over additional_data.
func (s *SearchService) Condition(ctx context.Context, req models.SearchRequest) query.Expr {
	var parts []query.Expr
	for _, f := range req.Filters.Pairs() {
		parts = append(parts, query.Cmp{Column: f.Column, Value: f.Value})
	}

	if input := strings.TrimSpace(req.AdvancedQuery); input != "" {
		parts = append(parts, s.advanced(ctx, input))
	}

	parts = append(parts, repository.WindowCondition(req.Window))
	return query.Conjoin(parts...)
}

func (s *SearchService) advanced(ctx context.Context, input string) query.Expr {
	parsed, err := query.Parse(input)
	if err != nil {
		metrics.QueryFallbacks.Inc()
		s.logger.WarnContext(ctx, "Advanced query did not parse, searching additional data instead",
			logging.Query(input),
			logging.Error(err),
		)
		return query.Fallback(input)
	}

	for ns, terms := range parsed.Groups {
		metrics.QueryTerms.WithLabelValues(string(ns)).Add(float64(len(terms)))
	}

	cond, dropped := parsed.Condition()
	for _, d := range dropped {
		metrics.QueryDroppedTerms.Inc()
		s.logger.WarnContext(ctx, "Dropped advanced query term",
			logging.Query(input),
			slog.String("term", d.Term.String()),
			slog.String("reason", d.Reason),
		)
	}
	return cond
}

// Search returns one page of matching records, newest first.
func (s *SearchService) Search(ctx context.Context, req models.SearchRequest) (*models.Page, error) {
	page, size := req.Page, req.Size
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = s.defaultSize
	}
	if size > s.maxSize {
		size = s.maxSize
	}

	cond := s.Condition(ctx, req)

	start := time.Now()
	result, err := s.repo.Search(ctx, cond, page, size)
	metrics.StoreDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return result, nil
}

// Get returns a single record.
func (s *SearchService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FilterOptions collects the distinct values for the list filters.
func (s *SearchService) FilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{}
	targets := []struct {
		col models.Column
		dst *[]string
	}{
		{models.ColumnProjectName, &opts.Projects},
		{models.ColumnExceptionType, &opts.ExceptionTypes},
		{models.ColumnEnvironment, &opts.Environments},
		{models.ColumnComponentName, &opts.Components},
		{models.ColumnServiceName, &opts.Services},
		{models.ColumnMethod, &opts.Methods},
	}
	for _, t := range targets {
		values, err := s.repo.Distinct(ctx, t.col)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s values: %w", t.col, err)
		}
		*t.dst = values
	}
	return opts, nil
}
