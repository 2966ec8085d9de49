// Package apiclient consumes the commutedeck HTTP API. Its Client satisfies
// the station, railway and status boundaries of the nearby package, so a
// Session can run against a remote server.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/api/handler"
	"github.com/commutedeck/commutedeck/internal/api/models"
	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/station"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// ProviderName identifies this client in the resilience registry.
const ProviderName = "commutedeck-api"

// ErrUnavailable is wrapped by errors for 502 and 503 responses.
var ErrUnavailable = errors.New("api upstream unavailable")

// APIError is returned when the server answers with success=false or a
// non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrUnavailable for gateway failures.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	return nil
}

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client calls the station, railway and train information endpoints.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FindStations calls GET /v1/nearby-stations.
func (c *Client) FindStations(ctx context.Context, center geo.Coordinates, radiusMeters int) ([]station.Station, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	if radiusMeters > 0 {
		q.Set("radius", strconv.Itoa(radiusMeters))
	}

	data, err := get[[]models.Station](ctx, c, "/v1/nearby-stations", q)
	if err != nil {
		return nil, err
	}

	stations := make([]station.Station, 0, len(data))
	for _, s := range data {
		stations = append(stations, s.Domain())
	}
	return stations, nil
}

// ResolveRailways calls GET /v1/station-railways, splitting the names into
// batches the server accepts. Every requested name gets an entry.
func (c *Client) ResolveRailways(ctx context.Context, names []string) (map[string][]railway.Ref, error) {
	result := make(map[string][]railway.Ref, len(names))
	// The server trims names, so answers come back under the trimmed form.
	requested := make(map[string][]string, len(names))
	var batch []string
	for _, name := range names {
		if _, dup := result[name]; dup {
			continue
		}
		result[name] = []railway.Ref{}

		wire := strings.TrimSpace(name)
		// Commas separate names on the wire.
		if wire == "" || strings.Contains(wire, ",") {
			continue
		}
		if _, queued := requested[wire]; !queued {
			batch = append(batch, wire)
		}
		requested[wire] = append(requested[wire], name)
	}

	for start := 0; start < len(batch); start += handler.MaxStationNames {
		end := start + handler.MaxStationNames
		if end > len(batch) {
			end = len(batch)
		}

		q := url.Values{}
		q.Set("names", strings.Join(batch[start:end], ","))
		data, err := get[[]models.StationRailways](ctx, c, "/v1/station-railways", q)
		if err != nil {
			return nil, err
		}
		for _, sr := range data {
			for _, name := range requested[sr.StationName] {
				result[name] = sr.Domain()
			}
		}
	}
	return result, nil
}

// FetchAllStatuses calls GET /v1/train-info.
func (c *Client) FetchAllStatuses(ctx context.Context) ([]*transit.RailwayStatus, error) {
	data, err := get[[]models.TrainInfo](ctx, c, "/v1/train-info", nil)
	if err != nil {
		return nil, err
	}

	statuses := make([]*transit.RailwayStatus, 0, len(data))
	for _, ti := range data {
		s := ti.Domain()
		statuses = append(statuses, &s)
	}
	return statuses, nil
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Count   *int   `json:"count"`
	Error   string `json:"error"`
}

func get[T any](ctx context.Context, c *Client, path string, q url.Values) (T, error) {
	var zero T

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return zero, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var serverErr *resilience.ServerError
		if errors.As(err, &serverErr) {
			return zero, &APIError{StatusCode: serverErr.StatusCode, Message: http.StatusText(serverErr.StatusCode)}
		}
		return zero, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("reading response: %w", err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Error != "" {
			msg = env.Error
		}
		return zero, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if !env.Success {
		return zero, &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("api response decoded")

	return env.Data, nil
}
