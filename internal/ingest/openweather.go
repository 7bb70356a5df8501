package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lox/weatherlog/internal/config"
	"github.com/lox/weatherlog/internal/httputil"
	"github.com/lox/weatherlog/internal/metrics"
	"github.com/lox/weatherlog/internal/models"
)

// hPa to mmHg.
const hpaPerMmHg = 1.33322

// RequestError reports a transport failure or a non-2xx response.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch current weather: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch current weather: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ParseError reports a body that is not JSON or lacks a required field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse current weather: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse current weather: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing")

// FetchResult describes the HTTP exchange behind a fetch.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	Body         string
}

type OpenWeather struct {
	endpoint string
	location string
	lang     string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

func NewOpenWeather(cfg config.Config, client *http.Client, logger *slog.Logger) *OpenWeather {
	if client == nil {
		client = httputil.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWeather{
		endpoint: cfg.APIURL,
		location: cfg.Location,
		lang:     cfg.Lang,
		apiKey:   cfg.APIKey,
		client:   client,
		logger:   logger,
	}
}

// Endpoint is the request path, used to label audit rows.
func (o *OpenWeather) Endpoint() string {
	u, err := url.Parse(o.endpoint)
	if err != nil {
		return o.endpoint
	}
	return strings.TrimPrefix(u.Path, "/")
}

type CurrentResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Pressure *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Deg   json.RawMessage `json:"deg"`
		Speed *float64        `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main *string `json:"main"`
	} `json:"weather"`
	Rain *Precipitation `json:"rain"`
	Snow *Precipitation `json:"snow"`
}

type Precipitation struct {
	OneHour *float64 `json:"1h"`
}

func (p *Precipitation) lastHour() float64 {
	if p == nil || p.OneHour == nil {
		return 0
	}
	return *p.OneHour
}

func (o *OpenWeather) requestURL() (string, error) {
	u, err := url.Parse(o.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("q", o.location)
	q.Set("units", "metric")
	q.Set("lang", o.lang)
	q.Set("appid", o.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchCurrent performs one GET against the current weather endpoint. The
// FetchResult is returned whenever a response was received, even on error.
func (o *OpenWeather) FetchCurrent(ctx context.Context) (*models.Observation, *FetchResult, error) {
	start := time.Now()
	defer func() { metrics.FetchLatency.Observe(time.Since(start).Seconds()) }()

	target, err := o.requestURL()
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusRequestError).Inc()
		return nil, nil, &RequestError{Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusRequestError).Inc()
		return nil, nil, &RequestError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusRequestError).Inc()
		// Drop the URL from the error; it carries the appid.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	result := &FetchResult{HTTPStatus: resp.StatusCode, ResponseSize: len(body), Body: string(body)}
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusRequestError).Inc()
		return nil, result, &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusRequestError).Inc()
		return nil, result, &RequestError{StatusCode: resp.StatusCode, Err: errors.New(snippet(resp.StatusCode, body))}
	}

	obs, err := ParseCurrent(body)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(metrics.StatusParseError).Inc()
		return nil, result, err
	}
	metrics.FetchesTotal.WithLabelValues(metrics.StatusOK).Inc()

	if len(obs.WindDirection) > models.WindDirectionWidth {
		o.logger.Warn("wind direction wider than column",
			"wind_direction", obs.WindDirection, "width", models.WindDirectionWidth)
	}
	if len(obs.PrecipitationType) > models.PrecipitationTypeWidth {
		o.logger.Warn("precipitation type wider than column",
			"precipitation_type", obs.PrecipitationType, "width", models.PrecipitationTypeWidth)
	}

	return obs, result, nil
}

// ParseCurrent maps a current weather body onto an Observation. Every
// measurement field is required; rain and snow default to zero.
func ParseCurrent(body []byte) (*models.Observation, error) {
	var data CurrentResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("unmarshal: %w", err)}
	}

	switch {
	case data.Main == nil:
		return nil, &ParseError{Field: "main", Err: errMissing}
	case data.Main.Temp == nil:
		return nil, &ParseError{Field: "main.temp", Err: errMissing}
	case data.Main.Pressure == nil:
		return nil, &ParseError{Field: "main.pressure", Err: errMissing}
	case data.Wind == nil:
		return nil, &ParseError{Field: "wind", Err: errMissing}
	case data.Wind.Speed == nil:
		return nil, &ParseError{Field: "wind.speed", Err: errMissing}
	case len(data.Weather) == 0:
		return nil, &ParseError{Field: "weather[0]", Err: errMissing}
	case data.Weather[0].Main == nil:
		return nil, &ParseError{Field: "weather[0].main", Err: errMissing}
	}

	windDir, err := windDirection(data.Wind.Deg)
	if err != nil {
		return nil, &ParseError{Field: "wind.deg", Err: err}
	}

	return &models.Observation{
		Temperature:         *data.Main.Temp,
		WindDirection:       windDir,
		WindSpeed:           *data.Wind.Speed,
		Pressure:            *data.Main.Pressure / hpaPerMmHg,
		PrecipitationType:   *data.Weather[0].Main,
		PrecipitationAmount: data.Rain.lastHour() + data.Snow.lastHour(),
	}, nil
}

// windDirection accepts the degree value as a JSON number or string and
// returns its decimal text.
func windDirection(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", errMissing
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", err
		}
		return v, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want number or string, got %s", s)
	}
	return strconv.FormatFloat(n, 'f', -1, 64), nil
}

func snippet(status int, body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if s == "" {
		return http.StatusText(status)
	}
	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
