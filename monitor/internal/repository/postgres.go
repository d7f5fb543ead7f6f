package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/exception-monitor/common/database"
	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/query"
	"github.com/telhawk-systems/exception-monitor/monitor/migrations"
)

const recordColumns = `id, exception_type, message, stack_trace, "timestamp",
	project_name, component_name, pod_name, pod_ip, cluster_name, environment,
	service_name, method, url, user_agent, session_id, additional_data, created_at`

// PoolConfig sizes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	Timeouts        database.Timeouts
}

type PostgresRepository struct {
	pool     *pgxpool.Pool
	timeouts database.Timeouts
}

func NewPostgresRepository(ctx context.Context, connString string, cfg PoolConfig) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", mapError(err))
	}

	return &PostgresRepository{pool: pool, timeouts: cfg.Timeouts}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// Migrate applies the embedded schema migrations to the database at
// connString.
func Migrate(ctx context.Context, connString string) (uint, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", mapError(err))
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Up() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		m.GracefulStop <- true
		err = <-done
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}

// mapError marks connection-level failures as ErrStoreUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	unavailable := errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &connectErr), errors.As(err, &netErr):
		unavailable = true
	case errors.As(err, &pgErr):
		// class 08 connection exception, 57P0x shutdown, 53300 too many connections
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") || pgErr.Code == "53300" {
			unavailable = true
		}
	case strings.Contains(err.Error(), "closed pool"):
		unavailable = true
	}

	if unavailable {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *PostgresRepository) Put(ctx context.Context, rec *models.Record) error {
	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	createdAt := rec.CreatedAt.Time
	if !rec.CreatedAt.Valid() {
		createdAt = time.Now().UTC()
	}

	stmt := `
		INSERT INTO exception_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			exception_type = EXCLUDED.exception_type,
			message = EXCLUDED.message,
			stack_trace = EXCLUDED.stack_trace,
			"timestamp" = EXCLUDED."timestamp",
			project_name = EXCLUDED.project_name,
			component_name = EXCLUDED.component_name,
			pod_name = EXCLUDED.pod_name,
			pod_ip = EXCLUDED.pod_ip,
			cluster_name = EXCLUDED.cluster_name,
			environment = EXCLUDED.environment,
			service_name = EXCLUDED.service_name,
			method = EXCLUDED.method,
			url = EXCLUDED.url,
			user_agent = EXCLUDED.user_agent,
			session_id = EXCLUDED.session_id,
			additional_data = EXCLUDED.additional_data
	`

	_, err := r.pool.Exec(ctx, stmt,
		rec.ID, rec.ExceptionType, nullable(rec.Message), nullable(rec.StackTrace), rec.Timestamp.Time.UTC(),
		nullable(rec.ProjectName), nullable(rec.ComponentName), nullable(rec.PodName), nullable(rec.PodIP),
		nullable(rec.ClusterName), nullable(rec.Environment),
		nullable(rec.ServiceName), nullable(rec.Method), nullable(rec.URL), nullable(rec.UserAgent), nullable(rec.SessionID),
		nullable(rec.AdditionalData), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store exception record: %w", mapError(err))
	}
	return nil
}

func scanRecord(row pgx.Row) (*models.Record, error) {
	var rec models.Record
	var message, stack, project, component, pod, podIP *string
	var cluster, env, service, method, url, agent, session, additional *string
	var ts, createdAt time.Time

	err := row.Scan(
		&rec.ID, &rec.ExceptionType, &message, &stack, &ts,
		&project, &component, &pod, &podIP, &cluster, &env,
		&service, &method, &url, &agent, &session, &additional, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Message = deref(message)
	rec.StackTrace = deref(stack)
	rec.Timestamp = events.NewLocalDateTime(ts)
	rec.ProjectName = deref(project)
	rec.ComponentName = deref(component)
	rec.PodName = deref(pod)
	rec.PodIP = deref(podIP)
	rec.ClusterName = deref(cluster)
	rec.Environment = deref(env)
	rec.ServiceName = deref(service)
	rec.Method = deref(method)
	rec.URL = deref(url)
	rec.UserAgent = deref(agent)
	rec.SessionID = deref(session)
	rec.AdditionalData = deref(additional)
	rec.CreatedAt = events.NewLocalDateTime(createdAt)
	return &rec, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM exception_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exception record: %w", mapError(err))
	}
	return rec, nil
}

// Search reads the count and the page in one repeatable-read snapshot so the
// total agrees with the rows.
func (r *PostgresRepository) Search(ctx context.Context, cond query.Expr, page, size int) (*models.Page, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	if cond == nil {
		cond = query.True{}
	}
	where, args := query.Render(cond)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin search: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM exception_records WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count exception records: %w", mapError(err))
	}

	n := len(args)
	pageSQL := fmt.Sprintf(`SELECT %s FROM exception_records WHERE %s ORDER BY "timestamp" DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, n+1, n+2)
	rows, err := tx.Query(ctx, pageSQL, append(args, size, page*size)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search exception records: %w", mapError(err))
	}
	defer rows.Close()

	items := make([]*models.Record, 0, size)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception record: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read exception records: %w", mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to finish search: %w", mapError(err))
	}
	return models.NewPage(items, total, page, size), nil
}

func (r *PostgresRepository) List(ctx context.Context, page, size int) (*models.Page, error) {
	return r.Search(ctx, query.True{}, page, size)
}

func (r *PostgresRepository) count(ctx context.Context, cond query.Expr) (int64, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	where, args := query.Render(cond)
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exception_records WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exception records: %w", mapError(err))
	}
	return n, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, query.True{})
}

func (r *PostgresRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, query.Since(since))
}

func (r *PostgresRepository) CountBetween(ctx context.Context, window models.TimeWindow) (int64, error) {
	return r.count(ctx, WindowCondition(window))
}

func (r *PostgresRepository) groupBy(ctx context.Context, col models.Column, cond query.Expr) ([]models.GroupCount, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	ident := pgx.Identifier{string(col)}.Sanitize()
	where, args := query.Render(cond)
	sql := fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM exception_records WHERE %[2]s
		GROUP BY %[1]s ORDER BY COUNT(*) DESC, %[1]s COLLATE "C" ASC NULLS FIRST`, ident, where)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group exception records by %s: %w", col, mapError(err))
	}
	defer rows.Close()

	out := []models.GroupCount{}
	for rows.Next() {
		var (
			key   *string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan group count: %w", err)
		}
		out = append(out, models.GroupCount{Key: deref(key), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read group counts: %w", mapError(err))
	}
	return out, nil
}

func (r *PostgresRepository) GroupBy(ctx context.Context, col models.Column, window models.TimeWindow) ([]models.GroupCount, error) {
	if !col.IsGroupColumn() {
		return nil, ErrInvalidColumn
	}
	return r.groupBy(ctx, col, WindowCondition(window))
}

func (r *PostgresRepository) PodsByComponent(ctx context.Context, component string, window models.TimeWindow) ([]models.PodCount, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	cond := query.Conjoin(query.Cmp{Column: models.ColumnComponentName, Value: component}, WindowCondition(window))
	where, args := query.Render(cond)
	sql := `SELECT pod_name, pod_ip, COUNT(*) FROM exception_records WHERE ` + where + `
		GROUP BY pod_name, pod_ip
		ORDER BY COUNT(*) DESC, pod_name COLLATE "C" ASC NULLS FIRST, pod_ip COLLATE "C" ASC NULLS FIRST`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group pods of %s: %w", component, mapError(err))
	}
	defer rows.Close()

	out := []models.PodCount{}
	for rows.Next() {
		var (
			name, ip *string
			count    int64
		)
		if err := rows.Scan(&name, &ip, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pod count: %w", err)
		}
		out = append(out, models.PodCount{PodName: deref(name), PodIP: deref(ip), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pod counts: %w", mapError(err))
	}
	return out, nil
}

func (r *PostgresRepository) ComponentsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error) {
	cond := query.Conjoin(query.Cmp{Column: models.ColumnEnvironment, Value: environment}, WindowCondition(window))
	return r.groupBy(ctx, models.ColumnComponentName, cond)
}

func (r *PostgresRepository) ProjectsByEnvironment(ctx context.Context, environment string, window models.TimeWindow) ([]models.GroupCount, error) {
	cond := query.Conjoin(query.Cmp{Column: models.ColumnEnvironment, Value: environment}, WindowCondition(window))
	return r.groupBy(ctx, models.ColumnProjectName, cond)
}

func (r *PostgresRepository) Distinct(ctx context.Context, col models.Column) ([]string, error) {
	if !col.IsDistinctColumn() {
		return nil, ErrInvalidColumn
	}
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	ident := pgx.Identifier{string(col)}.Sanitize()
	sql := fmt.Sprintf(`SELECT DISTINCT %[1]s COLLATE "C" FROM exception_records WHERE %[1]s IS NOT NULL ORDER BY 1`, ident)

	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", col, mapError(err))
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read distinct %s: %w", col, mapError(err))
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	if err := r.pool.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}
