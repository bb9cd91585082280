// Package source contains clients for external climate data archives.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/terroirdata/vineclimate/internal/climate"
)

const (
	openMeteoBaseURL = "https://climate-api.open-meteo.com/v1/climate"

	// DefaultClimateModel is the climate model requested when none is
	// configured.
	DefaultClimateModel = "EC_Earth3P_HR"

	dateLayout = "2006-01-02"
)

// OpenMeteoClient implements climate.Source against the Open-Meteo climate
// archive API: one GET per region per sync, parameterized by coordinates and
// an inclusive ISO date window.
type OpenMeteoClient struct {
	name    string
	baseURL string
	model   string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a client using the shared HTTP client. model may
// be empty to use DefaultClimateModel.
func NewOpenMeteoClient(client *http.Client, model string) *OpenMeteoClient {
	if model == "" {
		model = DefaultClimateModel
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo-climate",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteoClient{
		name:    "openmeteo-climate",
		baseURL: openMeteoBaseURL,
		model:   model,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (c *OpenMeteoClient) Name() string {
	return c.name
}

// WithBaseURL points the client at a different endpoint. Used in tests.
func (c *OpenMeteoClient) WithBaseURL(baseURL string) *OpenMeteoClient {
	c.baseURL = baseURL
	return c
}

// FetchDailyRange requests daily mean temperature, mean relative humidity and
// precipitation sum for the inclusive window. Transport errors and non-2xx
// statuses come back as transient fetch errors; a payload that violates the
// four-parallel-array contract is a data integrity error.
func (c *OpenMeteoClient) FetchDailyRange(ctx context.Context, lat, lon float64, start, end time.Time) (climate.DailySeries, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("start_date", start.Format(dateLayout))
		values.Set("end_date", end.Format(dateLayout))
		values.Set("models", c.model)
		values.Set("daily", "temperature_2m_mean,relative_humidity_2m_mean,precipitation_sum")

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return climate.DailySeries{}, climate.NewError(climate.KindTransientFetch,
			"open-meteo request failed", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time          []string   `json:"time"`
			Temperature   []float64  `json:"temperature_2m_mean"`
			Humidity      []*float64 `json:"relative_humidity_2m_mean"`
			Precipitation []float64  `json:"precipitation_sum"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return climate.DailySeries{}, climate.NewError(climate.KindDataIntegrity,
			"open-meteo response is not valid JSON", err)
	}

	// Shape check at the boundary before building typed records. A missing
	// daily block would otherwise read as an empty-but-valid series.
	if payload.Daily.Time == nil || payload.Daily.Temperature == nil || payload.Daily.Precipitation == nil {
		return climate.DailySeries{}, climate.NewError(climate.KindDataIntegrity,
			"open-meteo response is missing daily arrays", nil)
	}

	dates := make([]time.Time, 0, len(payload.Daily.Time))
	for _, raw := range payload.Daily.Time {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return climate.DailySeries{}, climate.NewError(climate.KindDataIntegrity,
				fmt.Sprintf("open-meteo returned unparseable date %q", raw), err)
		}
		dates = append(dates, d)
	}

	return climate.DailySeries{
		Dates:         dates,
		Temperature:   payload.Daily.Temperature,
		Humidity:      payload.Daily.Humidity,
		Precipitation: payload.Daily.Precipitation,
	}, nil
}
