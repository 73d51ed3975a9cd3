package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/engine"
)

const (
	octopusAPIBase = "https://api.octopus.energy/v1"
	// Current Agile product code - update as needed
	defaultAgileProduct = "AGILE-24-10-01"
)

// Slot is one half-hourly Agile rate
type Slot struct {
	Start       time.Time
	End         time.Time
	PencePerKWh float64
}

// OctopusClient fetches electricity prices from Octopus Energy Agile tariff
type OctopusClient struct {
	httpClient *http.Client
	baseURL    string
	product    string
	region     string
}

// ClientOption configures an OctopusClient.
type ClientOption func(*OctopusClient)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *OctopusClient) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OctopusClient) { c.httpClient = hc }
}

// NewOctopusClient creates a new client for the Octopus Agile API
func NewOctopusClient(region string, opts ...ClientOption) *OctopusClient {
	c := &OctopusClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    octopusAPIBase,
		product:    defaultAgileProduct,
		region:     region,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// octopusResponse represents the API response structure
type octopusResponse struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []resultItem `json:"results"`
}

type resultItem struct {
	ValueExcVAT float64   `json:"value_exc_vat"`
	ValueIncVAT float64   `json:"value_inc_vat"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
}

// HalfHourly fetches half-hourly prices covering the local day containing day
func (c *OctopusClient) HalfHourly(ctx context.Context, day time.Time) ([]Slot, error) {
	// Construct tariff code: E-1R-{PRODUCT}-{REGION}
	tariffCode := fmt.Sprintf("E-1R-%s-%s", c.product, c.region)

	endpoint := fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standard-unit-rates/",
		c.baseURL, c.product, tariffCode)

	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	params := url.Values{}
	params.Add("period_from", startOfDay.UTC().Format(time.RFC3339))
	params.Add("period_to", endOfDay.UTC().Format(time.RFC3339))

	fullURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var octResp octopusResponse
	if err := json.NewDecoder(resp.Body).Decode(&octResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	slots := make([]Slot, 0, len(octResp.Results))
	for _, r := range octResp.Results {
		slots = append(slots, Slot{
			Start:       r.ValidFrom,
			End:         r.ValidTo,
			PencePerKWh: r.ValueIncVAT,
		})
	}

	// API returns newest first
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	return slots, nil
}

// HourlyCurve fetches the day's rates and averages each local hour into a price curve
// in GBP/kWh. Days with an hour that has no published rate are rejected.
func (c *OctopusClient) HourlyCurve(ctx context.Context, day time.Time) (engine.PriceCurve, error) {
	slots, err := c.HalfHourly(ctx, day)
	if err != nil {
		return engine.PriceCurve{}, err
	}
	return Aggregate(slots, day.Location())
}

// Aggregate averages half-hourly slots per hour of day in loc and converts pence to pounds.
func Aggregate(slots []Slot, loc *time.Location) (engine.PriceCurve, error) {
	var sum [engine.HoursPerDay]float64
	var count [engine.HoursPerDay]int
	for _, s := range slots {
		h := s.Start.In(loc).Hour()
		sum[h] += s.PencePerKWh
		count[h]++
	}

	hourly := make([]float64, engine.HoursPerDay)
	for h := range hourly {
		if count[h] == 0 {
			return engine.PriceCurve{}, fmt.Errorf("no published rate for hour %02d", h)
		}
		avg := sum[h] / float64(count[h]) / 100.0
		// Agile can go negative; the planner only accepts non-negative prices.
		if avg < 0 {
			avg = 0
		}
		hourly[h] = avg
	}
	return engine.NewPriceCurve(hourly)
}
