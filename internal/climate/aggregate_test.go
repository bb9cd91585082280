package climate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terroirdata/vineclimate/internal/climate"
	"github.com/terroirdata/vineclimate/internal/store"
)

func insertDay(t *testing.T, st climate.Store, regionID int64, date time.Time, temp float64, humidity *float64, precip float64) {
	t.Helper()
	require.NoError(t, st.InsertMetric(context.Background(), climate.DailyMetric{
		RegionID:         regionID,
		Date:             date,
		TemperatureMean:  temp,
		HumidityMean:     humidity,
		PrecipitationSum: precip,
	}))
}

func ptr(v float64) *float64 { return &v }

func TestMonthlyQueriesReturnZeroPercentagesOnEmptyHistory(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Empty Region", 0, 0)
	agg := climate.NewAggregator(memStore)

	tempStats, err := agg.TemperatureBandByMonth(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	require.Len(t, tempStats, 12)
	for _, s := range tempStats {
		assert.Zero(t, s.TotalDays)
		assert.Zero(t, s.DaysInRange)
		assert.Zero(t, s.Percentage)
	}

	humStats, err := agg.HumidityBandByMonth(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	require.Len(t, humStats, 12)
	for _, s := range humStats {
		assert.Zero(t, s.Percentage)
	}

	precip, err := agg.WinterPrecipitation(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.Zero(t, precip)

	combined, err := agg.CombinedBandCoverage(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.Zero(t, combined)
}

func TestTemperatureBandEdgesAreInclusive(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Edges", 0, 0)
	agg := climate.NewAggregator(memStore)

	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, jan, 25.0, nil, 0)                   // lower edge, in
	insertDay(t, memStore, region.ID, jan.AddDate(0, 0, 1), 32.0, nil, 0)  // upper edge, in
	insertDay(t, memStore, region.ID, jan.AddDate(0, 0, 2), 24.99, nil, 0) // out
	insertDay(t, memStore, region.ID, jan.AddDate(0, 0, 3), 32.01, nil, 0) // out

	stats, err := agg.TemperatureBandByMonth(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)

	january := stats[0]
	assert.Equal(t, time.January, january.Month)
	assert.Equal(t, 4, january.TotalDays)
	assert.Equal(t, 2, january.DaysInRange)
	assert.InDelta(t, 50.0, january.Percentage, 1e-9)
}

func TestHumidityQueryIgnoresDaysWithoutReading(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Sparse Humidity", 0, 0)
	agg := climate.NewAggregator(memStore)

	mar := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, mar, 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, mar.AddDate(0, 0, 1), 28, nil, 0)
	insertDay(t, memStore, region.ID, mar.AddDate(0, 0, 2), 28, ptr(90), 0)

	stats, err := agg.HumidityBandByMonth(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)

	march := stats[2]
	assert.Equal(t, 2, march.TotalDays, "the nil-humidity day is not observed")
	assert.Equal(t, 1, march.DaysInRange)
	assert.InDelta(t, 50.0, march.Percentage, 1e-9)
}

func TestWinterPrecipitationCountsOnlyWinterMonths(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Winter", 0, 0)
	agg := climate.NewAggregator(memStore)

	insertDay(t, memStore, region.ID, time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), 20, nil, 10)
	insertDay(t, memStore, region.ID, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), 20, nil, 3)
	insertDay(t, memStore, region.ID, time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC), 20, nil, 4)
	insertDay(t, memStore, region.ID, time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC), 20, nil, 5)
	insertDay(t, memStore, region.ID, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), 20, nil, 10)

	total, err := agg.WinterPrecipitation(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.InDelta(t, 12.0, total, 1e-9)

	// Window filter excludes June.
	from := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	total, err = agg.WinterPrecipitation(context.Background(), region.ID, climate.Window{From: &from, To: &to})
	require.NoError(t, err)
	assert.InDelta(t, 9.0, total, 1e-9)
}

func TestCombinedBandCoverageRoundsToTwoDecimals(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Combined", 0, 0)
	agg := climate.NewAggregator(memStore)

	base := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, base, 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 1), 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 2), 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 3), 20, ptr(55), 0)

	pct, err := agg.CombinedBandCoverage(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.Equal(t, 75.0, pct)
}

func TestCombinedBandCoverageRoundsRepeatingFraction(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Thirds", 0, 0)
	agg := climate.NewAggregator(memStore)

	base := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, base, 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 1), 20, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 2), 28, nil, 0) // nil humidity cannot satisfy both bands

	pct, err := agg.CombinedBandCoverage(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.Equal(t, 33.33, pct)
}

func TestCombinedBandCountsNilHumidityInDenominator(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Denominator", 0, 0)
	agg := climate.NewAggregator(memStore)

	base := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, base, 28, ptr(55), 0)
	insertDay(t, memStore, region.ID, base.AddDate(0, 0, 1), 28, nil, 0)

	pct, err := agg.CombinedBandCoverage(context.Background(), region.ID, climate.Window{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, pct)
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Bounds", 0, 0)
	agg := climate.NewAggregator(memStore)

	from := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.April, 12, 0, 0, 0, 0, time.UTC)
	insertDay(t, memStore, region.ID, from.AddDate(0, 0, -1), 28, nil, 0)
	insertDay(t, memStore, region.ID, from, 28, nil, 0)
	insertDay(t, memStore, region.ID, to, 28, nil, 0)
	insertDay(t, memStore, region.ID, to.AddDate(0, 0, 1), 28, nil, 0)

	stats, err := agg.TemperatureBandByMonth(context.Background(), region.ID, climate.Window{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 2, stats[3].TotalDays)
}
