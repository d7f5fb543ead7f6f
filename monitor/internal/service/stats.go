package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
)

const (
	DefaultTopN      = 10
	RecentExceptions = 10
)

// KnownEnvironments are listed on the projects page even when empty.
var KnownEnvironments = []string{"UAT", "INT", "PROD"}

type StatsService struct {
	repo   repository.Repository
	logger *logging.Logger
	topN   int
	now    func() time.Time
}

func NewStatsService(repo repository.Repository, logger *logging.Logger, topN int) *StatsService {
	if logger == nil {
		logger = logging.Default()
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &StatsService{
		repo:   repo,
		logger: logger.Component("stats"),
		topN:   topN,
		now:    time.Now,
	}
}

func top(counts []models.GroupCount, n int) []models.GroupCount {
	if len(counts) > n {
		return counts[:n]
	}
	return counts
}

// Dashboard assembles the totals, the top groups within window and the most
// recent events.
func (s *StatsService) Dashboard(ctx context.Context, window models.TimeWindow) (*models.Dashboard, error) {
	now := s.now().UTC()
	d := &models.Dashboard{Window: window}

	var err error
	if d.TotalExceptions, err = s.repo.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count exceptions: %w", err)
	}
	if d.ExceptionsLast24h, err = s.repo.CountSince(ctx, now.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed to count last 24h: %w", err)
	}
	if d.ExceptionsLastHour, err = s.repo.CountSince(ctx, now.Add(-time.Hour)); err != nil {
		return nil, fmt.Errorf("failed to count last hour: %w", err)
	}
	if d.ExceptionsInRange, err = s.repo.CountBetween(ctx, window); err != nil {
		return nil, fmt.Errorf("failed to count range: %w", err)
	}

	groups := []struct {
		col models.Column
		dst *[]models.GroupCount
	}{
		{models.ColumnExceptionType, &d.ExceptionTypeStats},
		{models.ColumnProjectName, &d.ProjectStats},
		{models.ColumnComponentName, &d.ComponentStats},
		{models.ColumnEnvironment, &d.EnvironmentStats},
	}
	for _, g := range groups {
		counts, err := s.repo.GroupBy(ctx, g.col, window)
		if err != nil {
			return nil, fmt.Errorf("failed to group by %s: %w", g.col, err)
		}
		*g.dst = top(counts, s.topN)
	}

	recent, err := s.repo.List(ctx, 0, RecentExceptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent exceptions: %w", err)
	}
	d.RecentExceptions = recent.Items

	s.logger.DebugContext(ctx, "Built dashboard",
		slog.String("range", window.Token),
		slog.Int64("in_range", d.ExceptionsInRange),
	)
	return d, nil
}

// Components lists component counts and the pods of the busiest named
// component.
func (s *StatsService) Components(ctx context.Context, window models.TimeWindow) (*models.ComponentBreakdown, error) {
	counts, err := s.repo.GroupBy(ctx, models.ColumnComponentName, window)
	if err != nil {
		return nil, fmt.Errorf("failed to group by component: %w", err)
	}

	b := &models.ComponentBreakdown{ComponentStats: counts, ComponentPods: []models.PodCount{}, Window: window}
	for _, c := range counts {
		if c.Key == "" {
			continue
		}
		b.SelectedComponent = c.Key
		if b.ComponentPods, err = s.repo.PodsByComponent(ctx, c.Key, window); err != nil {
			return nil, fmt.Errorf("failed to group pods of %s: %w", c.Key, err)
		}
		break
	}
	return b, nil
}

// environments returns KnownEnvironments followed by any other named
// environment present in counts.
func environments(counts []models.GroupCount, known []string) []string {
	out := append([]string(nil), known...)
	seen := make(map[string]bool, len(known))
	for _, k := range known {
		seen[k] = true
	}
	for _, c := range counts {
		if c.Key != "" && !seen[c.Key] {
			seen[c.Key] = true
			out = append(out, c.Key)
		}
	}
	return out
}

// Projects lists project counts and, per environment, its projects.
func (s *StatsService) Projects(ctx context.Context, window models.TimeWindow) (*models.ProjectBreakdown, error) {
	counts, err := s.repo.GroupBy(ctx, models.ColumnProjectName, window)
	if err != nil {
		return nil, fmt.Errorf("failed to group by project: %w", err)
	}
	envCounts, err := s.repo.GroupBy(ctx, models.ColumnEnvironment, window)
	if err != nil {
		return nil, fmt.Errorf("failed to group by environment: %w", err)
	}

	b := &models.ProjectBreakdown{ProjectStats: counts, Window: window}
	for _, env := range environments(envCounts, KnownEnvironments) {
		projects, err := s.repo.ProjectsByEnvironment(ctx, env, window)
		if err != nil {
			return nil, fmt.Errorf("failed to group projects of %s: %w", env, err)
		}
		b.ProjectsByEnvironment = append(b.ProjectsByEnvironment, models.EnvironmentGroup{Environment: env, Counts: projects})
	}
	return b, nil
}

// Environments lists environment counts and, per environment, its
// components.
func (s *StatsService) Environments(ctx context.Context, window models.TimeWindow) (*models.EnvironmentBreakdown, error) {
	counts, err := s.repo.GroupBy(ctx, models.ColumnEnvironment, window)
	if err != nil {
		return nil, fmt.Errorf("failed to group by environment: %w", err)
	}

	b := &models.EnvironmentBreakdown{EnvironmentStats: counts, ComponentsByEnvironment: []models.EnvironmentGroup{}, Window: window}
	for _, c := range counts {
		if c.Key == "" {
			continue
		}
		components, err := s.repo.ComponentsByEnvironment(ctx, c.Key, window)
		if err != nil {
			return nil, fmt.Errorf("failed to group components of %s: %w", c.Key, err)
		}
		b.ComponentsByEnvironment = append(b.ComponentsByEnvironment, models.EnvironmentGroup{Environment: c.Key, Counts: components})
	}
	return b, nil
}
