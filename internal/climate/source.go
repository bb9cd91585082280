package climate

import (
	"context"
	"time"
)

// DailySeries is the normalized payload from the external climate source:
// four parallel arrays with one entry per day in the requested window.
// Humidity entries are nil where the source omitted the value.
type DailySeries struct {
	Dates         []time.Time
	Temperature   []float64
	Humidity      []*float64
	Precipitation []float64
}

// Aligned reports whether all four arrays have the same length. The sync
// engine rejects the whole run when they do not.
func (s DailySeries) Aligned() bool {
	n := len(s.Dates)
	return len(s.Temperature) == n && len(s.Humidity) == n && len(s.Precipitation) == n
}

// Source abstracts the external climate data archive (e.g. Open-Meteo).
// FetchDailyRange returns daily mean temperature, mean relative humidity and
// precipitation sum for the inclusive [start, end] window at the given
// coordinates.
type Source interface {
	Name() string
	FetchDailyRange(ctx context.Context, lat, lon float64, start, end time.Time) (DailySeries, error)
}

// Store is the contract the relational store (and the in-memory store used in
// tests) must satisfy. InTx runs fn against a transactional view of the
// store; fn returning an error discards every write made through it.
type Store interface {
	UpsertRegion(ctx context.Context, r Region) (Region, error)
	ListRegions(ctx context.Context) ([]Region, error)
	GetRegion(ctx context.Context, id int64) (Region, error)

	// LatestMetricDate returns the maximum metric date across ALL regions,
	// the global high-water mark for gap detection. ok is false when no
	// metrics exist anywhere.
	LatestMetricDate(ctx context.Context) (date time.Time, ok bool, err error)
	MetricExists(ctx context.Context, regionID int64, date time.Time) (bool, error)
	InsertMetric(ctx context.Context, m DailyMetric) error
	// MetricsInRange returns a region's metrics ordered by date. Nil bounds
	// are unbounded; an empty window yields an empty slice, not an error.
	MetricsInRange(ctx context.Context, regionID int64, from, to *time.Time) ([]DailyMetric, error)

	InsertInsight(ctx context.Context, ins Insight) (Insight, error)
	LatestInsightForRegion(ctx context.Context, regionID int64) (Insight, error)
	LatestInsights(ctx context.Context) ([]Insight, error)
	HasInsights(ctx context.Context) (bool, error)

	InTx(ctx context.Context, fn func(Store) error) error
}
