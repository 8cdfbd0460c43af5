package twiliosms

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/notifykit/notifykit"
)

var (
	// ErrInvalidConfig indicates required configuration is missing.
	ErrInvalidConfig = errors.New("invalid twilio provider config")
	// ErrNoPhoneNumber indicates the resolver produced no phone number.
	ErrNoPhoneNumber = errors.New("no phone number for user")
)

// maxSMSLength bounds the message body; longer texts are truncated with
// an ellipsis rather than split into multi-part messages.
const maxSMSLength = 160

// Config holds Twilio credentials and the sending number.
type Config struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID,required"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN,required"`
	FromNumber string `env:"TWILIO_FROM_NUMBER,required"`
}

// PhoneResolver maps a notification's user ID to an E.164 phone number.
type PhoneResolver func(ctx context.Context, userID string) (string, error)

// Provider delivers notifications on the SMS channel through Twilio.
type Provider struct {
	client  *twilio.RestClient
	cfg     Config
	resolve PhoneResolver
}

// New creates the provider, failing fast on missing credentials.
func New(cfg Config, resolve PhoneResolver) (*Provider, error) {
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("%w: AccountSID is required", ErrInvalidConfig)
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: AuthToken is required", ErrInvalidConfig)
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("%w: FromNumber is required", ErrInvalidConfig)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: phone resolver is required", ErrInvalidConfig)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Provider{
		client:  client,
		cfg:     cfg,
		resolve: resolve,
	}, nil
}

func (p *Provider) Name() string { return "twilio" }

func (p *Provider) Channels() []notifykit.Channel {
	return []notifykit.Channel{notifykit.ChannelSMS}
}

func (p *Provider) Enabled() bool { return true }

// Send delivers one notification as a single SMS. Title and message are
// joined; SMS has no structure to carry them separately.
func (p *Provider) Send(ctx context.Context, n *notifykit.Notification, _ notifykit.Channel) (bool, error) {
	to, err := p.resolve(ctx, n.UserID)
	if err != nil {
		return false, err
	}
	if to == "" {
		return false, fmt.Errorf("%w: %s", ErrNoPhoneNumber, n.UserID)
	}

	body := n.Title
	if n.Message != "" {
		body = n.Title + ": " + n.Message
	}
	if len(body) > maxSMSLength {
		body = body[:maxSMSLength-3] + "..."
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(p.cfg.FromNumber)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return false, err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return false, fmt.Errorf("twilio error: %d - %s", *resp.ErrorCode, msg)
	}
	return true, nil
}
