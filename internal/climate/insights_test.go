package climate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terroirdata/vineclimate/internal/climate"
	"github.com/terroirdata/vineclimate/internal/store"
)

// fillSeason inserts one row per day over [start, end] with constant values.
func fillSeason(t *testing.T, st climate.Store, regionID int64, start, end time.Time, temp, humidity, precip float64) int {
	t.Helper()
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		insertDay(t, st, regionID, d, temp, ptr(humidity), precip)
		days++
	}
	return days
}

func TestComposeTestValleyScenario(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Test Valley", -35.0, 138.5)

	// June through August 2025: 28°C, 55% humidity, 2mm/day.
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC)
	days := fillSeason(t, memStore, region.ID, start, end, 28, 55, 2)
	require.Equal(t, 92, days)

	composer := climate.NewComposer(memStore, clock)
	draft, err := composer.Compose(context.Background(), region.ID)
	require.NoError(t, err)

	assert.InDelta(t, float64(2*days), draft.WinterPrecipitation10y, 1e-9)
	assert.InDelta(t, 100.0, draft.TemperatureBandPct10y, 1e-9)
	assert.InDelta(t, 100.0, draft.HumidityBandPct10y, 1e-9)
	assert.Equal(t, 100.0, draft.CombinedBandPct30y)

	require.NotNil(t, draft.StartMonth)
	require.NotNil(t, draft.EndMonth)
	assert.Equal(t, 6, *draft.StartMonth)
	assert.Equal(t, 8, *draft.EndMonth)
}

func TestComposeEmptyRegionYieldsNullSeasonAndZeroScores(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Bare", 0, 0)

	composer := climate.NewComposer(memStore, clock)
	draft, err := composer.Compose(context.Background(), region.ID)
	require.NoError(t, err)

	assert.Nil(t, draft.StartMonth)
	assert.Nil(t, draft.EndMonth)
	assert.Zero(t, draft.WinterPrecipitation10y)
	assert.Zero(t, draft.TemperatureBandPct10y)
	assert.Zero(t, draft.HumidityBandPct10y)
	assert.Zero(t, draft.CombinedBandPct30y)
}

func TestInsightHistoryIsAppendOnly(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Test Valley", -35.0, 138.5)
	fillSeason(t, memStore, region.ID,
		time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC), 28, 55, 2)

	composer := climate.NewComposer(memStore, clock)

	first, err := composer.RecomputeRegion(context.Background(), region.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)

	second, err := composer.RecomputeRegion(context.Background(), region.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "each run appends a new snapshot")
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	latest, err := memStore.LatestInsightForRegion(context.Background(), region.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestRunForAllRegionsPersistsOneInsightPerRegion(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	a := seedRegion(t, memStore, "Region A", -35.0, 138.0)
	b := seedRegion(t, memStore, "Region B", -34.0, 139.0)
	fillSeason(t, memStore, a.ID,
		time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC), 28, 55, 1)

	composer := climate.NewComposer(memStore, clock)
	require.NoError(t, composer.RunForAllRegions(context.Background()))

	insights, err := memStore.LatestInsights(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, a.ID, insights[0].RegionID)
	assert.Equal(t, b.ID, insights[1].RegionID)
}

// flakyStore fails metric reads for one region to exercise the per-region
// tolerance of the batch.
type flakyStore struct {
	climate.Store
	failRegion int64
}

func (f *flakyStore) MetricsInRange(ctx context.Context, regionID int64, from, to *time.Time) ([]climate.DailyMetric, error) {
	if regionID == f.failRegion {
		return nil, errors.New("disk on fire")
	}
	return f.Store.MetricsInRange(ctx, regionID, from, to)
}

func (f *flakyStore) InTx(ctx context.Context, fn func(climate.Store) error) error {
	return f.Store.InTx(ctx, func(tx climate.Store) error {
		return fn(&flakyStore{Store: tx, failRegion: f.failRegion})
	})
}

func TestRunForAllRegionsSkipsFailingRegion(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	bad := seedRegion(t, memStore, "Broken", -35.0, 138.0)
	good := seedRegion(t, memStore, "Healthy", -34.0, 139.0)

	composer := climate.NewComposer(&flakyStore{Store: memStore, failRegion: bad.ID}, clock)
	require.NoError(t, composer.RunForAllRegions(context.Background()))

	insights, err := memStore.LatestInsights(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1, "only the healthy region gets a snapshot")
	assert.Equal(t, good.ID, insights[0].RegionID)
}

func TestComposeReturnsComputationErrorInsteadOfPropagating(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	memStore := store.NewMemoryStore()
	region := seedRegion(t, memStore, "Broken", -35.0, 138.0)

	composer := climate.NewComposer(&flakyStore{Store: memStore, failRegion: region.ID}, clock)
	_, err := composer.Compose(context.Background(), region.ID)
	require.Error(t, err)
	assert.Equal(t, climate.KindComputation, climate.KindOf(err))
}
