package climate

import (
	"context"
	"math"
	"time"
)

// Window is an optional date filter for aggregation queries. Nil bounds are
// unbounded; the zero Window spans the entire history.
type Window struct {
	From *time.Time
	To   *time.Time
}

// WindowEndingAt builds the inclusive [end - days, end] window used for the
// multi-year insight computations.
func WindowEndingAt(end time.Time, days int) Window {
	from := DateOnly(end).AddDate(0, 0, -days)
	to := DateOnly(end)
	return Window{From: &from, To: &to}
}

// Aggregator computes windowed statistics over a region's stored daily
// metrics. All queries are pure reads and tolerate zero-row windows.
type Aggregator struct {
	store Store
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// TemperatureBandByMonth reports, per calendar month 1-12, how many observed
// days had a mean temperature within [TempBandMin, TempBandMax] versus total
// observed days in that month.
func (a *Aggregator) TemperatureBandByMonth(ctx context.Context, regionID int64, win Window) ([]MonthlyBandStat, error) {
	metrics, err := a.store.MetricsInRange(ctx, regionID, win.From, win.To)
	if err != nil {
		return nil, err
	}

	return monthlyCoverage(metrics, func(m DailyMetric) (value float64, observed bool) {
		return m.TemperatureMean, true
	}, TempBandMin, TempBandMax), nil
}

// HumidityBandByMonth is the humidity counterpart over [HumidityBandMin,
// HumidityBandMax]. Days without a humidity reading are not observed days for
// this query.
func (a *Aggregator) HumidityBandByMonth(ctx context.Context, regionID int64, win Window) ([]MonthlyBandStat, error) {
	metrics, err := a.store.MetricsInRange(ctx, regionID, win.From, win.To)
	if err != nil {
		return nil, err
	}

	return monthlyCoverage(metrics, func(m DailyMetric) (float64, bool) {
		if m.HumidityMean == nil {
			return 0, false
		}
		return *m.HumidityMean, true
	}, HumidityBandMin, HumidityBandMax), nil
}

// WinterPrecipitation sums precipitation over the fixed winter months within
// the window. 0 when the window holds no rows.
func (a *Aggregator) WinterPrecipitation(ctx context.Context, regionID int64, win Window) (float64, error) {
	metrics, err := a.store.MetricsInRange(ctx, regionID, win.From, win.To)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, m := range metrics {
		if winterMonths[m.Date.Month()] {
			total += m.PrecipitationSum
		}
	}
	return total, nil
}

// CombinedBandCoverage returns the percentage of days in the window where the
// temperature AND humidity bands hold simultaneously, rounded to two
// decimals. Every stored day counts toward the denominator; a day without a
// humidity reading can never satisfy both bands. 0 when the window is empty.
func (a *Aggregator) CombinedBandCoverage(ctx context.Context, regionID int64, win Window) (float64, error) {
	metrics, err := a.store.MetricsInRange(ctx, regionID, win.From, win.To)
	if err != nil {
		return 0, err
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	valid := 0
	for _, m := range metrics {
		if m.TemperatureMean < TempBandMin || m.TemperatureMean > TempBandMax {
			continue
		}
		if m.HumidityMean == nil || *m.HumidityMean < HumidityBandMin || *m.HumidityMean > HumidityBandMax {
			continue
		}
		valid++
	}

	return round2(100 * float64(valid) / float64(len(metrics))), nil
}

// monthlyCoverage buckets metrics by calendar month and counts in-band days
// against observed days. Months with no observed days report percentage 0.
func monthlyCoverage(metrics []DailyMetric, observe func(DailyMetric) (float64, bool), bandMin, bandMax float64) []MonthlyBandStat {
	stats := make([]MonthlyBandStat, 12)
	for i := range stats {
		stats[i].Month = time.Month(i + 1)
	}

	for _, m := range metrics {
		value, observed := observe(m)
		if !observed {
			continue
		}
		s := &stats[int(m.Date.Month())-1]
		s.TotalDays++
		if value >= bandMin && value <= bandMax {
			s.DaysInRange++
		}
	}

	for i := range stats {
		if stats[i].TotalDays > 0 {
			stats[i].Percentage = 100 * float64(stats[i].DaysInRange) / float64(stats[i].TotalDays)
		}
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
