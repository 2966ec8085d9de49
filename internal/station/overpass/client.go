// Package overpass queries the OpenStreetMap Overpass API for railway stations.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/station"
)

const (
	// ProviderName identifies this station provider.
	ProviderName = "overpass"

	// DefaultURL is the public Overpass interpreter endpoint.
	DefaultURL = "https://overpass-api.de/api/interpreter"

	// queryTimeoutSeconds is the server-side timeout passed in the query.
	queryTimeoutSeconds = 25
)

// ClientConfig holds configuration for the Overpass client.
type ClientConfig struct {
	// URL is the interpreter endpoint (optional, defaults to DefaultURL).
	URL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Overpass API client.
type Client struct {
	url        string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Overpass client.
func NewClient(cfg ClientConfig) *Client {
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		url:        endpoint,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// StationsNear returns named railway stations within radiusMeters of center.
// Elements without a name are skipped and duplicates are dropped by id.
func (c *Client) StationsNear(ctx context.Context, center geo.Coordinates, radiusMeters int) ([]station.Station, error) {
	form := url.Values{}
	form.Set("data", BuildQuery(center, radiusMeters))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body interpreterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	stations := make([]station.Station, 0, len(body.Elements))
	seen := make(map[int64]struct{}, len(body.Elements))
	skipped := 0
	for i := range body.Elements {
		el := &body.Elements[i]
		if _, dup := seen[el.ID]; dup {
			continue
		}
		name := el.Tags["name"]
		if name == "" {
			skipped++
			continue
		}
		seen[el.ID] = struct{}{}

		lat, lng := el.Lat, el.Lon
		if el.Center != nil {
			lat, lng = el.Center.Lat, el.Center.Lon
		}

		stations = append(stations, station.Station{
			ID:       strconv.FormatInt(el.ID, 10),
			Name:     name,
			Location: geo.Coordinates{Lat: lat, Lng: lng},
			Operator: el.Tags["operator"],
			Network:  el.Tags["network"],
		})
	}

	c.logger.Debug().
		Int("elements", len(body.Elements)).
		Int("stations", len(stations)).
		Int("unnamed", skipped).
		Msg("overpass stations decoded")

	return stations, nil
}

// BuildQuery returns the Overpass QL query for stations around center.
func BuildQuery(center geo.Coordinates, radiusMeters int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)",
		radiusMeters,
		strconv.FormatFloat(center.Lat, 'f', 6, 64),
		strconv.FormatFloat(center.Lng, 'f', 6, 64),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", queryTimeoutSeconds)
	fmt.Fprintf(&b, "  node[\"railway\"=\"station\"]%s;\n", around)
	fmt.Fprintf(&b, "  node[\"public_transport\"=\"station\"][\"train\"=\"yes\"]%s;\n", around)
	b.WriteString(");\nout body;\n")
	return b.String()
}

type interpreterResponse struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *point            `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
