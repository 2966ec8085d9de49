// Package odpt is a client for the Open Data for Public Transportation (ODPT) v4 API.
// It supplies the railway line dump for the station index and live train information.
package odpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/railway"
	"github.com/commutedeck/commutedeck/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "odpt"

	// DefaultBaseURL is the ODPT v4 API base URL.
	DefaultBaseURL = "https://api.odpt.org/api/v4"

	operatorPrefix = "odpt.Operator:"
)

// ClientConfig holds configuration for the ODPT client.
type ClientConfig struct {
	// ConsumerKey is the ODPT access token (required by the public endpoint).
	ConsumerKey string

	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Operators restricts requests to these operator ids, e.g. "odpt.Operator:JR-East".
	// Empty means all operators.
	Operators []string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an ODPT API client.
type Client struct {
	consumerKey string
	baseURL     string
	operators   []string
	httpClient  *resilience.Client
	logger      zerolog.Logger
}

// NewClient creates a new ODPT client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		consumerKey: cfg.ConsumerKey,
		baseURL:     baseURL,
		operators:   cfg.Operators,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchLines returns every railway with its ordered station list.
func (c *Client) FetchLines(ctx context.Context) ([]railway.Line, error) {
	var raw []odptRailway
	if err := c.get(ctx, "odpt:Railway", &raw); err != nil {
		return nil, err
	}

	lines := make([]railway.Line, 0, len(raw))
	for i := range raw {
		r := &raw[i]
		if r.SameAs == "" {
			continue
		}
		line := railway.Line{
			Ref: railway.Ref{
				RailwayID:   r.SameAs,
				RailwayName: firstNonEmpty(r.RailwayTitle.Ja, r.Title, r.RailwayTitle.En, lastSegment(r.SameAs)),
				Operator:    trimOperator(r.Operator),
			},
			Stations: make([]railway.StationName, 0, len(r.StationOrder)),
		}
		for _, so := range r.StationOrder {
			name := firstNonEmpty(so.StationTitle.Ja, so.StationTitle.En, lastSegment(so.Station))
			line.Stations = append(line.Stations, railway.StationName{
				Name:   name,
				NameEn: so.StationTitle.En,
			})
		}
		lines = append(lines, line)
	}

	c.logger.Debug().Int("railways", len(lines)).Msg("odpt railways decoded")
	return lines, nil
}

// TrainInformation returns the current train information reports. Operator-wide
// notices without a railway are dropped.
func (c *Client) TrainInformation(ctx context.Context) ([]*transit.Report, error) {
	var raw []odptTrainInformation
	if err := c.get(ctx, "odpt:TrainInformation", &raw); err != nil {
		return nil, err
	}

	reports := make([]*transit.Report, 0, len(raw))
	operatorWide := 0
	for i := range raw {
		ti := &raw[i]
		if ti.Railway == "" {
			operatorWide++
			continue
		}

		report := &transit.Report{
			RailwayID: ti.Railway,
			Operator:  trimOperator(ti.Operator),
			State:     ti.Status.Ja,
			Text:      firstNonEmpty(ti.Text.Ja, ti.Text.En),
			Cause:     firstNonEmpty(ti.Cause.Ja, ti.Cause.En),
		}
		if report.State == "" {
			report.State = ti.Status.En
		}
		if ts := firstNonEmpty(ti.TimeOfOrigin, ti.Date); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				report.UpdatedAt = parsed
			}
		}
		reports = append(reports, report)
	}

	c.logger.Debug().
		Int("reports", len(reports)).
		Int("operator_wide", operatorWide).
		Msg("odpt train information decoded")

	return reports, nil
}

// get fetches one ODPT resource type and decodes the JSON array into out.
func (c *Client) get(ctx context.Context, resource string, out interface{}) error {
	reqURL := c.resourceURL(resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", resource, err)
	}
	return nil
}

// resourceURL builds the request URL. ODPT expects the literal "acl:" and
// "odpt:" prefixes in parameter names, so the query is assembled by hand.
func (c *Client) resourceURL(resource string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteByte('/')
	b.WriteString(resource)

	sep := byte('?')
	if c.consumerKey != "" {
		b.WriteByte(sep)
		b.WriteString("acl:consumerKey=")
		b.WriteString(url.QueryEscape(c.consumerKey))
		sep = '&'
	}
	if len(c.operators) > 0 {
		b.WriteByte(sep)
		b.WriteString("odpt:operator=")
		b.WriteString(strings.Join(c.operators, ","))
	}
	return b.String()
}

func trimOperator(op string) string {
	return strings.TrimPrefix(op, operatorPrefix)
}

func lastSegment(id string) string {
	if i := strings.LastIndexAny(id, ".:"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ODPT API response structures.

type odptRailway struct {
	SameAs       string             `json:"owl:sameAs"`
	Title        string             `json:"dc:title"`
	Operator     string             `json:"odpt:operator"`
	RailwayTitle langString         `json:"odpt:railwayTitle"`
	StationOrder []odptStationOrder `json:"odpt:stationOrder"`
}

type odptStationOrder struct {
	Index        int        `json:"odpt:index"`
	Station      string     `json:"odpt:station"`
	StationTitle langString `json:"odpt:stationTitle"`
}

type odptTrainInformation struct {
	SameAs       string     `json:"owl:sameAs"`
	Date         string     `json:"dc:date"`
	TimeOfOrigin string     `json:"odpt:timeOfOrigin"`
	Operator     string     `json:"odpt:operator"`
	Railway      string     `json:"odpt:railway"`
	Status       langString `json:"odpt:trainInformationStatus"`
	Text         langString `json:"odpt:trainInformationText"`
	Cause        langString `json:"odpt:trainInformationCause"`
}

// langString is an ODPT multilingual value. Some operators send a plain
// string instead of a {"ja": ..., "en": ...} object; it is treated as Japanese.
type langString struct {
	Ja string `json:"ja"`
	En string `json:"en"`
}

func (l *langString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &l.Ja)
	}
	type plain langString
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = langString(p)
	return nil
}
