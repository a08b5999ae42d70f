package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uninbox/authd/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL       string
	Channel          string
	Username         string
	Timeout          time.Duration
	RetryLimit       int
	Client           *http.Client
	AccountURLPrefix string
}

// Client delivers security notifications to a Slack webhook.
type Client struct {
	webhookURL       string
	channel          string
	username         string
	accountURLPrefix string
	poster           notify.Poster
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	return &Client{
		webhookURL:       webhookURL,
		channel:          strings.TrimSpace(cfg.Channel),
		username:         fallbackString(strings.TrimSpace(cfg.Username), "authd"),
		accountURLPrefix: strings.TrimSpace(cfg.AccountURLPrefix),
		poster:           notify.NewPoster("slack webhook", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// Send posts a formatted message to Slack.
func (c *Client) Send(ctx context.Context, ev notify.Event) error {
	body, err := json.Marshal(c.formatMessage(ev))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return c.poster.Post(ctx, c.webhookURL, body)
}

func (c *Client) formatMessage(ev notify.Event) map[string]any {
	timestamp := ev.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	writeSlackHeader(&text, ev)
	appendSlackField(&text, "Severity", string(ev.Severity))
	appendSlackField(&text, "Account", c.formatAccountValue(ev.AccountID, ev.AccountPublicID))
	if ev.OrgID != 0 {
		appendSlackField(&text, "Org", strconv.FormatInt(ev.OrgID, 10))
	}
	appendSlackField(&text, "Summary", escapeSlackText(ev.Summary))
	appendSlackMetadata(&text, ev.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func writeSlackHeader(text *strings.Builder, ev notify.Event) {
	if ev.Severity == notify.SeverityCritical {
		text.WriteString(":rotating_light: ")
	}
	text.WriteString("*Security event*")
	if ev.Type != "" {
		text.WriteString(" `")
		text.WriteString(string(ev.Type))
		text.WriteByte('`')
	}
	text.WriteByte('\n')
}

// formatAccountValue renders the public id, linked when a prefix is configured.
// Internal numeric ids are shown only when no public id is known.
func (c *Client) formatAccountValue(accountID int64, publicID string) string {
	id := escapeSlackText(strings.TrimSpace(publicID))
	if id == "" {
		if accountID == 0 {
			return ""
		}
		return strconv.FormatInt(accountID, 10)
	}
	if link := c.buildAccountLink(publicID); link != "" {
		return fmt.Sprintf("<%s|%s>", link, id)
	}
	return id
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func (c *Client) buildAccountLink(publicID string) string {
	if c.accountURLPrefix == "" {
		return ""
	}

	u, err := url.Parse(c.accountURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	link, err := url.JoinPath(u.String(), publicID)
	if err != nil {
		return ""
	}
	return link
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(escapeSlackText(metadata[k]))
		text.WriteByte('\n')
	}
}
