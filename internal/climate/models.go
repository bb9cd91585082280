package climate

import (
	"time"
)

// Optimal growing bands and the monthly qualification thresholds used when
// deriving the optimal season. Fixed, hand-picked constants.
const (
	TempBandMin = 25.0
	TempBandMax = 32.0

	HumidityBandMin = 40.0
	HumidityBandMax = 70.0

	optimalTempMonthlyPct     = 15.0
	optimalHumidityMonthlyPct = 30.0
)

// Winter months for seasonal precipitation totals. A fixed convention for the
// southern-hemisphere growing regions this system was built around, not
// geography-aware.
var winterMonths = map[time.Month]bool{
	time.June:   true,
	time.July:   true,
	time.August: true,
}

// Region is a named geographic point for which metrics and insights are
// tracked. Name is unique; a region owns its time series and insight history.
type Region struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DailyMetric is one day of observed climate for a region. At most one record
// exists per (region, date); records are immutable once written.
// HumidityMean is nil when the source omitted it for that day.
type DailyMetric struct {
	RegionID         int64     `json:"regionId"`
	Date             time.Time `json:"date"` // midnight UTC
	TemperatureMean  float64   `json:"temperatureMean"`
	HumidityMean     *float64  `json:"humidityMean"`
	PrecipitationSum float64   `json:"precipitationSum"`
}

// MonthlyBandStat reports band coverage for one calendar month: how many
// observed days fell inside the band versus how many were observed at all.
// Percentage is 0 when TotalDays is 0.
type MonthlyBandStat struct {
	Month       time.Month `json:"month"`
	DaysInRange int        `json:"daysInRange"`
	TotalDays   int        `json:"totalDays"`
	Percentage  float64    `json:"percentage"`
}

// InsightDraft is the computed but not yet persisted insight for a region.
// StartMonth/EndMonth are nil when no month qualifies as optimal.
type InsightDraft struct {
	StartMonth             *int    `json:"startMonth"`
	EndMonth               *int    `json:"endMonth"`
	WinterPrecipitation10y float64 `json:"winterPrecipitation10y"`
	TemperatureBandPct10y  float64 `json:"temperatureBandPct10y"`
	HumidityBandPct10y     float64 `json:"humidityBandPct10y"`
	CombinedBandPct30y     float64 `json:"combinedBandPct30y"`
}

// Insight is one persisted, timestamped snapshot in a region's append-only
// insight log. The latest insight for a region is the one with the greatest
// CreatedAt.
type Insight struct {
	ID       int64 `json:"id"`
	RegionID int64 `json:"regionId"`
	InsightDraft
	CreatedAt time.Time `json:"createdAt"`
}

// DateOnly truncates t to midnight UTC, the canonical representation for
// metric dates throughout the pipeline.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
