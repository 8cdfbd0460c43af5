package notifykit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/notifykit/notifykit/logger"
)

// Provider is a pluggable sender for one or more channels. Send reports a
// non-fatal delivery failure by returning false rather than an error when
// possible; both are treated as failure by the queue processor. Send must
// be safe to call more than once for the same notification and channel,
// since failed items are retried.
type Provider interface {
	Name() string
	Channels() []Channel
	Enabled() bool
	Send(ctx context.Context, n *Notification, ch Channel) (bool, error)
}

// ProviderRegistry maps channels to their senders.
type ProviderRegistry struct {
	mu        sync.RWMutex
	byChannel map[Channel]Provider
	logger    *slog.Logger
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry(logger *slog.Logger) *ProviderRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderRegistry{
		byChannel: make(map[Channel]Provider),
		logger:    logger,
	}
}

// Register maps every channel the provider claims to the provider,
// replacing earlier registrations for the same channel.
func (r *ProviderRegistry) Register(p Provider) error {
	if p == nil {
		return ErrProviderNil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range p.Channels() {
		r.byChannel[ch] = p
	}
	return nil
}

// For returns the provider registered for a channel.
func (r *ProviderRegistry) For(ch Channel) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byChannel[ch]
	return p, ok
}

// FuncProvider adapts a plain function into a Provider.
type FuncProvider struct {
	ProviderName string
	OnChannels   []Channel
	Disabled     bool
	SendFunc     func(ctx context.Context, n *Notification, ch Channel) (bool, error)
}

func (p *FuncProvider) Name() string        { return p.ProviderName }
func (p *FuncProvider) Channels() []Channel { return p.OnChannels }
func (p *FuncProvider) Enabled() bool       { return !p.Disabled }

func (p *FuncProvider) Send(ctx context.Context, n *Notification, ch Channel) (bool, error) {
	if p.SendFunc == nil {
		return false, nil
	}
	return p.SendFunc(ctx, n, ch)
}

// DevProvider logs deliveries instead of sending them. Useful for
// development and testing environments without real channel transports.
type DevProvider struct {
	OnChannels []Channel
	Logger     *slog.Logger
}

func (p *DevProvider) Name() string { return "dev" }

func (p *DevProvider) Channels() []Channel {
	if len(p.OnChannels) == 0 {
		return []Channel{ChannelToast, ChannelPanel, ChannelDesktop}
	}
	return p.OnChannels
}

func (p *DevProvider) Enabled() bool { return true }

func (p *DevProvider) Send(ctx context.Context, n *Notification, ch Channel) (bool, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification delivered",
		logger.NotificationID(n.ID),
		logger.ChannelName(string(ch)),
		slog.String("title", n.Title))
	return true, nil
}
