package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/provider/resilience"
	"github.com/commutedeck/commutedeck/internal/transit"
)

// DiscordProviderName identifies the webhook client in the resilience registry.
const DiscordProviderName = "discord"

// Discord accepts at most ten embeds per message.
const maxEmbedsPerMessage = 10

// Embed colours per status.
var statusColors = map[transit.Status]int{
	transit.StatusNormal:  0x2ECC71,
	transit.StatusRestore: 0x3498DB,
	transit.StatusDelay:   0xF1C40F,
	transit.StatusDirect:  0xE67E22,
	transit.StatusSuspend: 0xE74C3C,
}

// DiscordConfig holds configuration for the Discord notifier.
type DiscordConfig struct {
	// WebhookURL is the full webhook URL including its token.
	WebhookURL string

	// Username overrides the webhook's display name (optional).
	Username string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// DiscordNotifier posts changes to a Discord webhook as embeds.
type DiscordNotifier struct {
	webhookURL string
	username   string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier creates a new Discord notifier.
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(DiscordProviderName))
	}
	username := cfg.Username
	if username == "" {
		username = "commutedeck"
	}
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		username:   username,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (n *DiscordNotifier) Name() string {
	return DiscordProviderName
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notify posts the changes, splitting them into messages of up to ten embeds.
func (n *DiscordNotifier) Notify(ctx context.Context, changes []Change) error {
	for start := 0; start < len(changes); start += maxEmbedsPerMessage {
		end := start + maxEmbedsPerMessage
		if end > len(changes) {
			end = len(changes)
		}

		msg := discordMessage{Username: n.username}
		for _, c := range changes[start:end] {
			msg.Embeds = append(msg.Embeds, newEmbed(c))
		}

		if err := n.post(ctx, msg); err != nil {
			return err
		}
	}

	n.logger.Debug().Int("changes", len(changes)).Msg("discord notification sent")
	return nil
}

func newEmbed(c Change) discordEmbed {
	embed := discordEmbed{
		Title:       fmt.Sprintf("%s: %s", c.Current.RailwayName, c.Current.Status),
		Description: c.Current.StatusText,
		Color:       statusColors[c.Current.Status],
		Timestamp:   c.DetectedAt.UTC().Format(time.RFC3339),
	}
	if c.Current.Operator != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Operator", Value: c.Current.Operator, Inline: true})
	}
	if prev := c.PreviousStatus(); prev != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Previous", Value: string(prev), Inline: true})
	}
	if c.Current.Cause != "" {
		embed.Fields = append(embed.Fields, discordField{Name: "Cause", Value: c.Current.Cause})
	}
	return embed
}

func (n *DiscordNotifier) post(ctx context.Context, msg discordMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
