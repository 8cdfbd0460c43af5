package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notifykit/notifykit"
)

var (
	// ErrInvalidConfig indicates required configuration is missing.
	ErrInvalidConfig = errors.New("invalid webhook provider config")
	// ErrDeliveryRejected indicates the endpoint returned a non-2xx status.
	ErrDeliveryRejected = errors.New("webhook endpoint rejected delivery")
)

// Config holds the webhook endpoint and signing secret.
type Config struct {
	URL     string        `env:"WEBHOOK_URL,required"`
	Secret  string        `env:"WEBHOOK_SECRET,required"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
}

// payload is the JSON body posted to the endpoint.
type payload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	UserID    string         `json:"user_id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Provider delivers notifications on the webhook channel as signed HTTP
// POSTs. Each request carries an HMAC-SHA256 signature bound to a
// timestamp so receivers can reject replays.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates the provider, failing fast on a missing endpoint or secret.
func New(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: Secret is required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) Name() string { return "webhook" }

func (p *Provider) Channels() []notifykit.Channel {
	return []notifykit.Channel{notifykit.ChannelWebhook}
}

func (p *Provider) Enabled() bool { return true }

// Send posts the notification to the configured endpoint. Any 2xx status
// counts as delivered; everything else is a retryable failure.
func (p *Provider) Send(ctx context.Context, n *notifykit.Notification, _ notifykit.Channel) (bool, error) {
	body, err := json.Marshal(payload{
		ID:        n.ID,
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Title:     n.Title,
		Message:   n.Message,
		UserID:    n.UserID,
		Source:    n.Source,
		Tags:      n.Tags,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return false, fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers, err := SignPayload(p.cfg.Secret, body)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: status %d", ErrDeliveryRejected, resp.StatusCode)
	}
	return true, nil
}
