package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uninbox/authd/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint (tests).
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	poster     notify.Poster
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	return &Client{
		routingKey: key,
		source:     fallbackString(strings.TrimSpace(cfg.Source), "authd"),
		component:  fallbackString(strings.TrimSpace(cfg.Component), "sessions"),
		endpoint:   fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		poster:     notify.NewPoster("pagerduty api", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// Send submits a trigger event to PagerDuty.
func (c *Client) Send(ctx context.Context, ev notify.Event) error {
	body, err := json.Marshal(c.buildEvent(ev))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return c.poster.Post(ctx, c.endpoint, body)
}

func (c *Client) buildEvent(ev notify.Event) map[string]any {
	severity := strings.ToLower(string(ev.Severity))
	if severity == "" || severity == string(notify.SeverityInfo) {
		// PagerDuty has no "info" trigger severity worth paging on.
		severity = string(notify.SeverityCritical)
	}

	occurredAt := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"event_type":        string(ev.Type),
		"account_public_id": ev.AccountPublicID,
	}
	if ev.OrgID != 0 {
		custom["org_id"] = ev.OrgID
	}
	for k, v := range ev.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	subject := ev.AccountPublicID
	if subject == "" && ev.AccountID != 0 {
		subject = strconv.FormatInt(ev.AccountID, 10)
	}
	dedupKey := strings.Trim(fmt.Sprintf("%s:%s", ev.Type, subject), ":")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary":        fallbackString(ev.Summary, fmt.Sprintf("Security event %s", fallbackString(string(ev.Type), "unknown"))),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
