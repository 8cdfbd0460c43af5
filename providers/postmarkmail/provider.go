package postmarkmail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/notifykit/notifykit"
)

var (
	// ErrInvalidConfig indicates required configuration is missing.
	ErrInvalidConfig = errors.New("invalid postmark provider config")
	// ErrNoRecipient indicates the resolver produced no email address.
	ErrNoRecipient = errors.New("no recipient email for user")
)

// Config holds Postmark credentials and sender identity.
type Config struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail  string `env:"POSTMARK_SENDER_EMAIL,required"`
	ReplyTo      string `env:"POSTMARK_REPLY_TO"`
}

// RecipientResolver maps a notification's user ID to an email address.
// The engine only carries opaque user identities; the host application
// owns the user directory.
type RecipientResolver func(ctx context.Context, userID string) (string, error)

// Provider delivers notifications on the email channel through Postmark's
// transactional API.
type Provider struct {
	client  *postmark.Client
	cfg     Config
	resolve RecipientResolver
}

// New creates the provider. All tokens, the sender address and the
// resolver are required so a misconfigured provider fails at startup
// instead of at first send.
func New(cfg Config, resolve RecipientResolver) (*Provider, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: recipient resolver is required", ErrInvalidConfig)
	}

	return &Provider{
		client:  postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:     cfg,
		resolve: resolve,
	}, nil
}

func (p *Provider) Name() string { return "postmark" }

func (p *Provider) Channels() []notifykit.Channel {
	return []notifykit.Channel{notifykit.ChannelEmail}
}

func (p *Provider) Enabled() bool { return true }

// Send delivers one notification as a transactional email. Open tracking
// is on and link tracking is restricted to the HTML body; plain text is
// left untouched.
func (p *Provider) Send(ctx context.Context, n *notifykit.Notification, _ notifykit.Channel) (bool, error) {
	to, err := p.resolve(ctx, n.UserID)
	if err != nil {
		return false, err
	}
	if to == "" {
		return false, fmt.Errorf("%w: %s", ErrNoRecipient, n.UserID)
	}

	email := postmark.Email{
		From:       p.cfg.SenderEmail,
		ReplyTo:    p.cfg.ReplyTo,
		To:         to,
		Subject:    n.Title,
		TextBody:   n.Message,
		Tag:        string(n.Type),
		TrackOpens: true,
	}
	if n.HTMLBody != "" {
		email.HTMLBody = n.HTMLBody
		email.TrackLinks = "HtmlOnly"
	}

	resp, err := p.client.SendEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if resp.ErrorCode > 0 {
		return false, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return true, nil
}
