package climate

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"
)

// Multi-year insight windows, in days.
const (
	performanceWindowDays = 10 * 365
	viabilityWindowDays   = 30 * 365
)

// Composer derives climate insights from the accumulated metric history.
// Compose is a pure function of the store's current state; persistence
// happens in RunForAllRegions and RecomputeRegion.
type Composer struct {
	store Store
	clock clockwork.Clock
}

// NewComposer creates a Composer. Pass clockwork.NewRealClock() outside
// tests.
func NewComposer(store Store, clock clockwork.Clock) *Composer {
	return &Composer{store: store, clock: clock}
}

// Compose computes the insight draft for one region without persisting it.
// Failures come back as a tagged computation error, never a panic, so one
// region cannot abort its siblings when composed in a loop.
func (c *Composer) Compose(ctx context.Context, regionID int64) (InsightDraft, error) {
	return compose(ctx, c.store, c.clock, regionID)
}

// RunForAllRegions composes and persists one new insight snapshot per region
// inside a single transaction. Regions whose computation fails are logged and
// skipped, but a persistence failure rolls back the whole batch.
func (c *Composer) RunForAllRegions(ctx context.Context) error {
	now := c.clock.Now().UTC()

	return c.store.InTx(ctx, func(tx Store) error {
		regions, err := tx.ListRegions(ctx)
		if err != nil {
			return err
		}

		for _, region := range regions {
			draft, err := compose(ctx, tx, c.clock, region.ID)
			if err != nil {
				log.Printf("ERROR: insight computation failed for region %q: %v", region.Name, err)
				continue
			}

			ins := Insight{RegionID: region.ID, InsightDraft: draft, CreatedAt: now}
			if _, err := tx.InsertInsight(ctx, ins); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecomputeRegion composes and persists a fresh snapshot for a single region,
// the force-recompute path behind the API.
func (c *Composer) RecomputeRegion(ctx context.Context, regionID int64) (Insight, error) {
	var saved Insight
	err := c.store.InTx(ctx, func(tx Store) error {
		draft, err := compose(ctx, tx, c.clock, regionID)
		if err != nil {
			return err
		}

		ins := Insight{RegionID: regionID, InsightDraft: draft, CreatedAt: c.clock.Now().UTC()}
		saved, err = tx.InsertInsight(ctx, ins)
		return err
	})
	if err != nil {
		return Insight{}, err
	}
	return saved, nil
}

func compose(ctx context.Context, st Store, clock clockwork.Clock, regionID int64) (draft InsightDraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			draft = InsightDraft{}
			err = NewError(KindComputation, fmt.Sprintf("insight computation panicked: %v", r), nil)
		}
	}()

	agg := NewAggregator(st)
	today := DateOnly(clock.Now())

	// Optimal season over the unbounded history.
	tempMonths, err := agg.TemperatureBandByMonth(ctx, regionID, Window{})
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "temperature coverage query failed")
	}
	humidityMonths, err := agg.HumidityBandByMonth(ctx, regionID, Window{})
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "humidity coverage query failed")
	}
	draft.StartMonth, draft.EndMonth = seasonBounds(tempMonths, humidityMonths)

	// 10-year performance window.
	perfWin := WindowEndingAt(today, performanceWindowDays)
	draft.WinterPrecipitation10y, err = agg.WinterPrecipitation(ctx, regionID, perfWin)
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "winter precipitation query failed")
	}

	temp10, err := agg.TemperatureBandByMonth(ctx, regionID, perfWin)
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "10-year temperature coverage query failed")
	}
	draft.TemperatureBandPct10y = overallCoverage(temp10)

	humidity10, err := agg.HumidityBandByMonth(ctx, regionID, perfWin)
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "10-year humidity coverage query failed")
	}
	draft.HumidityBandPct10y = overallCoverage(humidity10)

	// 30-year combined viability.
	draft.CombinedBandPct30y, err = agg.CombinedBandCoverage(ctx, regionID, WindowEndingAt(today, viabilityWindowDays))
	if err != nil {
		return InsightDraft{}, ensureKind(err, KindComputation, "combined coverage query failed")
	}

	return draft, nil
}

// seasonBounds intersects the temperature- and humidity-qualifying month sets
// and returns the min and max qualifying month numbers, both nil when the
// intersection is empty. Only the bounds are reported; months between them
// are not verified to qualify themselves.
func seasonBounds(tempMonths, humidityMonths []MonthlyBandStat) (*int, *int) {
	qualifies := make(map[int]int) // month -> how many lists it qualified on

	for _, s := range tempMonths {
		if s.Percentage > optimalTempMonthlyPct {
			qualifies[int(s.Month)]++
		}
	}
	for _, s := range humidityMonths {
		if s.Percentage > optimalHumidityMonthlyPct {
			qualifies[int(s.Month)]++
		}
	}

	var start, end *int
	for month, count := range qualifies {
		if count < 2 {
			continue
		}
		m := month
		if start == nil || m < *start {
			start = &m
		}
		if end == nil || m > *end {
			end = &m
		}
	}
	return start, end
}

// overallCoverage collapses the monthly stats into one percentage: total
// in-band days over total observed days across all twelve months. 0 when
// nothing was observed.
func overallCoverage(months []MonthlyBandStat) float64 {
	var inRange, total int
	for _, s := range months {
		inRange += s.DaysInRange
		total += s.TotalDays
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(inRange) / float64(total)
}
