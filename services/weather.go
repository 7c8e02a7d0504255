package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/common"
)

// DefaultWeatherEndpoint is the public Open-Meteo forecast API, which needs
// no key and is good enough for "do I need a jacket in Luxor" questions.
const DefaultWeatherEndpoint = "https://api.open-meteo.com/v1/forecast"

// StatusError reports a non-2xx response from a provider backend. The hub
// uses the code to decide retriability: 5xx might recover, 4xx never does.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

// WeatherProvider answers current-conditions questions for a coordinate.
// Calls are plain idempotent GETs, so the hub may retry them.
type WeatherProvider struct {
	endpoint string
	client   *http.Client
	log      *logrus.Logger
}

// NewWeatherProvider builds a provider against the given endpoint, falling
// back to the public Open-Meteo API when empty.
func NewWeatherProvider(endpoint string, log *logrus.Logger) *WeatherProvider {
	if endpoint == "" {
		endpoint = DefaultWeatherEndpoint
	}
	return &WeatherProvider{
		endpoint: endpoint,
		client:   &http.Client{},
		log:      log,
	}
}

func (p *WeatherProvider) Name() string { return "weather" }

func (p *WeatherProvider) CanHandle(method string) bool { return method == "current" }

// Execute fetches current conditions. Params must carry latitude and
// longitude; the engine fills them from the resolved destination record.
func (p *WeatherProvider) Execute(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	lat, ok := paramFloat(params, "latitude")
	if !ok {
		return nil, common.NewFault(common.KindBadInput, "weather lookup needs a latitude")
	}
	lon, ok := paramFloat(params, "longitude")
	if !ok {
		return nil, common.NewFault(common.KindBadInput, "weather lookup needs a longitude")
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,wind_speed_10m,weather_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Message: string(body)}
	}

	var payload struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	return map[string]any{
		"temperature_c": payload.Current.Temperature,
		"wind_kmh":      payload.Current.WindSpeed,
		"conditions":    conditionKey(payload.Current.WeatherCode),
	}, nil
}

// conditionKey folds WMO weather codes into the handful of buckets the
// response templates know how to localize.
func conditionKey(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly_cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "cloudy"
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func paramInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
