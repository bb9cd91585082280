package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terroirdata/vineclimate/internal/climate"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx so the
// same queries run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the production climate.Store backed by PostgreSQL.
type PostgresStore struct {
	db   DBTX
	pool *pgxpool.Pool // nil when the store is bound to a transaction
}

// NewPostgresStore creates a PostgresStore over a connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// Connect opens a pgx pool against databaseURL and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// Migrate creates the three tables if they do not exist. Idempotent; runs at
// startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS regions (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			id BIGSERIAL PRIMARY KEY,
			region_id BIGINT NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
			date DATE NOT NULL,
			temperature_mean DOUBLE PRECISION NOT NULL,
			humidity_mean DOUBLE PRECISION,
			precipitation_sum DOUBLE PRECISION NOT NULL,
			UNIQUE (region_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id BIGSERIAL PRIMARY KEY,
			region_id BIGINT NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
			start_month INT,
			end_month INT,
			winter_precip_10y DOUBLE PRECISION NOT NULL,
			temp_band_pct_10y DOUBLE PRECISION NOT NULL,
			humidity_band_pct_10y DOUBLE PRECISION NOT NULL,
			combined_band_pct_30y DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertRegion(ctx context.Context, r climate.Region) (climate.Region, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO regions (name, latitude, longitude)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE
		 SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude
		 RETURNING id, name, latitude, longitude`,
		r.Name, r.Latitude, r.Longitude)

	var saved climate.Region
	if err := row.Scan(&saved.ID, &saved.Name, &saved.Latitude, &saved.Longitude); err != nil {
		return climate.Region{}, fmt.Errorf("failed to upsert region %q: %w", r.Name, err)
	}
	return saved, nil
}

func (s *PostgresStore) ListRegions(ctx context.Context) ([]climate.Region, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, latitude, longitude FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	defer rows.Close()

	var regions []climate.Region
	for rows.Next() {
		var r climate.Region
		if err := rows.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (s *PostgresStore) GetRegion(ctx context.Context, id int64) (climate.Region, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, latitude, longitude FROM regions WHERE id = $1`, id)

	var r climate.Region
	if err := row.Scan(&r.ID, &r.Name, &r.Latitude, &r.Longitude); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return climate.Region{}, ErrNotFound
		}
		return climate.Region{}, fmt.Errorf("failed to get region %d: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) LatestMetricDate(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	row := s.db.QueryRow(ctx, `SELECT MAX(date) FROM daily_metrics`)
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest metric date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return climate.DateOnly(*latest), true, nil
}

func (s *PostgresStore) MetricExists(ctx context.Context, regionID int64, date time.Time) (bool, error) {
	var exists bool
	row := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM daily_metrics WHERE region_id = $1 AND date = $2)`,
		regionID, climate.DateOnly(date))
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check metric existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertMetric(ctx context.Context, m climate.DailyMetric) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_metrics (region_id, date, temperature_mean, humidity_mean, precipitation_sum)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.RegionID, climate.DateOnly(m.Date), m.TemperatureMean, m.HumidityMean, m.PrecipitationSum)
	if err != nil {
		return fmt.Errorf("failed to insert metric for region %d on %s: %w",
			m.RegionID, m.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (s *PostgresStore) MetricsInRange(ctx context.Context, regionID int64, from, to *time.Time) ([]climate.DailyMetric, error) {
	conditions := []string{"region_id = $1"}
	args := []any{regionID}
	argIdx := 2

	if from != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argIdx))
		args = append(args, climate.DateOnly(*from))
		argIdx++
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argIdx))
		args = append(args, climate.DateOnly(*to))
	}

	query := fmt.Sprintf(
		`SELECT region_id, date, temperature_mean, humidity_mean, precipitation_sum
		 FROM daily_metrics WHERE %s ORDER BY date`,
		strings.Join(conditions, " AND "))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]climate.DailyMetric, 0)
	for rows.Next() {
		var m climate.DailyMetric
		if err := rows.Scan(&m.RegionID, &m.Date, &m.TemperatureMean, &m.HumidityMean, &m.PrecipitationSum); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Date = climate.DateOnly(m.Date)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

const insightColumns = `id, region_id, start_month, end_month, winter_precip_10y,
	temp_band_pct_10y, humidity_band_pct_10y, combined_band_pct_30y, created_at`

func (s *PostgresStore) InsertInsight(ctx context.Context, ins climate.Insight) (climate.Insight, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO insights (region_id, start_month, end_month, winter_precip_10y,
			temp_band_pct_10y, humidity_band_pct_10y, combined_band_pct_30y, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+insightColumns,
		ins.RegionID, ins.StartMonth, ins.EndMonth, ins.WinterPrecipitation10y,
		ins.TemperatureBandPct10y, ins.HumidityBandPct10y, ins.CombinedBandPct30y, ins.CreatedAt)

	saved, err := scanInsight(row)
	if err != nil {
		return climate.Insight{}, fmt.Errorf("failed to insert insight for region %d: %w", ins.RegionID, err)
	}
	return saved, nil
}

func (s *PostgresStore) LatestInsightForRegion(ctx context.Context, regionID int64) (climate.Insight, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+insightColumns+` FROM insights
		 WHERE region_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, regionID)

	ins, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return climate.Insight{}, ErrNotFound
		}
		return climate.Insight{}, fmt.Errorf("failed to query latest insight for region %d: %w", regionID, err)
	}
	return ins, nil
}

func (s *PostgresStore) LatestInsights(ctx context.Context) ([]climate.Insight, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT ON (region_id) `+insightColumns+`
		 FROM insights ORDER BY region_id, created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest insights: %w", err)
	}
	defer rows.Close()

	var insights []climate.Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, ins)
	}
	return insights, rows.Err()
}

func (s *PostgresStore) HasInsights(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM insights)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for insights: %w", err)
	}
	return exists, nil
}

// InTx executes fn against a store bound to one transaction and commits only
// if fn returns nil. When the store is already transactional, fn joins the
// current transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(climate.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanInsight(row pgx.Row) (climate.Insight, error) {
	var ins climate.Insight
	err := row.Scan(&ins.ID, &ins.RegionID, &ins.StartMonth, &ins.EndMonth,
		&ins.WinterPrecipitation10y, &ins.TemperatureBandPct10y,
		&ins.HumidityBandPct10y, &ins.CombinedBandPct30y, &ins.CreatedAt)
	if err != nil {
		return climate.Insight{}, err
	}
	return ins, nil
}
