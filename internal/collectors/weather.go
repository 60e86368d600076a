package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/oyvinds78/morningdigest/internal/digest"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// WeatherCollector polls OpenWeatherMap for current conditions and the
// short-term forecast. Its snapshot feeds the digest directly, without an
// agent pass.
type WeatherCollector struct {
	apiKey  string
	city    string
	country string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewWeatherCollector creates a collector for the given city.
func NewWeatherCollector(apiKey, city, country string, timeout time.Duration, log zerolog.Logger) *WeatherCollector {
	return &WeatherCollector{
		apiKey:  apiKey,
		city:    city,
		country: country,
		baseURL: openWeatherBaseURL,
		client:  newHTTPClient(timeout),
		log:     log.With().Str("collector", SourceWeather).Logger(),
	}
}

// Name returns the source name.
func (c *WeatherCollector) Name() string { return SourceWeather }

type currentWeather struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

type forecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Collect fetches current weather plus today's forecast points. The window
// argument is unused: weather is always "now and the day ahead".
func (c *WeatherCollector) Collect(ctx context.Context, _ time.Duration) (*digest.Snapshot, error) {
	if c.apiKey == "" {
		return nil, errors.New("weather api key not configured")
	}

	var cur currentWeather
	if err := c.get(ctx, "/weather", &cur); err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}

	items := []digest.Item{{
		Title:     fmt.Sprintf("Now: %s, %.1f°C (feels like %.1f°C)", description(cur.Weather), cur.Main.Temp, cur.Main.FeelsLike),
		Source:    SourceWeather,
		Published: time.Now(),
		Text:      fmt.Sprintf("Wind %.1f m/s in %s", cur.Wind.Speed, cur.Name),
	}}

	status := digest.StatusOK
	var fc forecast
	if err := c.get(ctx, "/forecast", &fc); err != nil {
		c.log.Warn().Err(err).Msg("forecast fetch failed")
		status = digest.StatusPartial
	} else {
		cutoff := endOfDay(time.Now())
		for _, point := range fc.List {
			at := time.Unix(point.Dt, 0)
			if at.After(cutoff) {
				break
			}
			items = append(items, digest.Item{
				Title:     fmt.Sprintf("%s: %s, %.1f°C", at.Format("15:04"), description(point.Weather), point.Main.Temp),
				Source:    SourceWeather,
				Published: at,
			})
		}
	}

	return &digest.Snapshot{
		Source:      SourceWeather,
		Items:       items,
		Status:      status,
		CollectedAt: time.Now(),
	}, nil
}

func (c *WeatherCollector) get(ctx context.Context, path string, out any) error {
	params := url.Values{}
	params.Set("q", c.city+","+c.country)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Healthy checks that an API key is configured. No request is made: the
// free tier meters calls, and health checks should not consume them.
func (c *WeatherCollector) Healthy(_ context.Context) error {
	if c.apiKey == "" {
		return errors.New("weather api key not configured")
	}
	return nil
}

// endOfDay returns the next midnight in t's location, so "today's forecast"
// follows the reader's calendar day rather than the UTC one.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func description(weather []struct {
	Description string `json:"description"`
}) string {
	if len(weather) == 0 {
		return "unknown"
	}
	return weather[0].Description
}
