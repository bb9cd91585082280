package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terroirdata/vineclimate/internal/climate"
)

const dateKeyLayout = "2006-01-02"

// MemoryStore is an in-memory implementation of climate.Store. Transactions
// are copy-on-write: InTx clones the state, runs fn against the clone, and
// adopts it only on success. The pipeline is the single writer, so the
// clone-and-swap needs no cross-transaction conflict handling.
type MemoryStore struct {
	mu sync.RWMutex

	regions     map[int64]climate.Region
	regionOrder []int64
	// regionID -> date key -> metric
	metrics  map[int64]map[string]climate.DailyMetric
	insights []climate.Insight

	nextRegionID  int64
	nextInsightID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		regions:       make(map[int64]climate.Region),
		metrics:       make(map[int64]map[string]climate.DailyMetric),
		nextRegionID:  1,
		nextInsightID: 1,
	}
}

func (s *MemoryStore) UpsertRegion(_ context.Context, r climate.Region) (climate.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.regionOrder {
		existing := s.regions[id]
		if existing.Name == r.Name {
			existing.Latitude = r.Latitude
			existing.Longitude = r.Longitude
			s.regions[id] = existing
			return existing, nil
		}
	}

	r.ID = s.nextRegionID
	s.nextRegionID++
	s.regions[r.ID] = r
	s.regionOrder = append(s.regionOrder, r.ID)
	return r, nil
}

func (s *MemoryStore) ListRegions(_ context.Context) ([]climate.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := make([]climate.Region, 0, len(s.regionOrder))
	for _, id := range s.regionOrder {
		regions = append(regions, s.regions[id])
	}
	return regions, nil
}

func (s *MemoryStore) GetRegion(_ context.Context, id int64) (climate.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.regions[id]
	if !ok {
		return climate.Region{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) LatestMetricDate(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for _, byDate := range s.metrics {
		for _, m := range byDate {
			if !found || m.Date.After(latest) {
				latest = m.Date
				found = true
			}
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) MetricExists(_ context.Context, regionID int64, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate, ok := s.metrics[regionID]
	if !ok {
		return false, nil
	}
	_, ok = byDate[climate.DateOnly(date).Format(dateKeyLayout)]
	return ok, nil
}

func (s *MemoryStore) InsertMetric(_ context.Context, m climate.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Date = climate.DateOnly(m.Date)
	byDate, ok := s.metrics[m.RegionID]
	if !ok {
		byDate = make(map[string]climate.DailyMetric)
		s.metrics[m.RegionID] = byDate
	}
	byDate[m.Date.Format(dateKeyLayout)] = m
	return nil
}

func (s *MemoryStore) MetricsInRange(_ context.Context, regionID int64, from, to *time.Time) ([]climate.DailyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := s.metrics[regionID]
	result := make([]climate.DailyMetric, 0, len(byDate))
	for _, m := range byDate {
		if from != nil && m.Date.Before(climate.DateOnly(*from)) {
			continue
		}
		if to != nil && m.Date.After(climate.DateOnly(*to)) {
			continue
		}
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (s *MemoryStore) InsertInsight(_ context.Context, ins climate.Insight) (climate.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins.ID = s.nextInsightID
	s.nextInsightID++
	s.insights = append(s.insights, ins)
	return ins, nil
}

func (s *MemoryStore) LatestInsightForRegion(_ context.Context, regionID int64) (climate.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest climate.Insight
	found := false
	for _, ins := range s.insights {
		if ins.RegionID != regionID {
			continue
		}
		if !found || newerInsight(ins, latest) {
			latest = ins
			found = true
		}
	}
	if !found {
		return climate.Insight{}, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) LatestInsights(_ context.Context) ([]climate.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latestByRegion := make(map[int64]climate.Insight)
	for _, ins := range s.insights {
		current, ok := latestByRegion[ins.RegionID]
		if !ok || newerInsight(ins, current) {
			latestByRegion[ins.RegionID] = ins
		}
	}

	result := make([]climate.Insight, 0, len(latestByRegion))
	for _, ins := range latestByRegion {
		result = append(result, ins)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RegionID < result[j].RegionID
	})
	return result, nil
}

func (s *MemoryStore) HasInsights(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.insights) > 0, nil
}

// InTx runs fn against a deep copy of the store. On success the copy's state
// replaces the live state atomically; on error every write is discarded.
func (s *MemoryStore) InTx(ctx context.Context, fn func(climate.Store) error) error {
	clone := s.snapshot()

	if err := fn(clone); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone.mu.RLock()
	defer clone.mu.RUnlock()

	s.regions = clone.regions
	s.regionOrder = clone.regionOrder
	s.metrics = clone.metrics
	s.insights = clone.insights
	s.nextRegionID = clone.nextRegionID
	s.nextInsightID = clone.nextInsightID
	return nil
}

func (s *MemoryStore) snapshot() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewMemoryStore()
	clone.nextRegionID = s.nextRegionID
	clone.nextInsightID = s.nextInsightID

	for id, r := range s.regions {
		clone.regions[id] = r
	}
	clone.regionOrder = append([]int64(nil), s.regionOrder...)

	for regionID, byDate := range s.metrics {
		copied := make(map[string]climate.DailyMetric, len(byDate))
		for k, m := range byDate {
			copied[k] = m
		}
		clone.metrics[regionID] = copied
	}
	clone.insights = append([]climate.Insight(nil), s.insights...)
	return clone
}

// newerInsight orders by CreatedAt with ID as the tie-break, mirroring the
// SQL "ORDER BY created_at DESC, id DESC" used by the postgres store.
func newerInsight(a, b climate.Insight) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
