package notifykit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/notifykit/notifykit/logger"
)

// MiddlewareFunc transforms or filters a notification draft before the
// engine accepts it. Returning (nil, nil) vetoes the draft: it is handed
// back to the caller but never stored, queued or counted.
type MiddlewareFunc func(ctx context.Context, n *Notification) (*Notification, error)

// Middleware is a named, priority-ranked, toggleable pipeline step.
type Middleware struct {
	Name     string
	Priority int
	Enabled  bool
	Fn       MiddlewareFunc
}

// Pipeline runs middleware in descending priority order. Disabled entries
// are skipped entirely. A middleware error is caught and logged, and
// processing continues with the last-known-good draft; middleware failure
// is non-fatal to the overall create flow.
type Pipeline struct {
	steps  []Middleware
	logger *slog.Logger
}

// NewPipeline creates a pipeline from the given steps.
func NewPipeline(logger *slog.Logger, steps ...Middleware) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{logger: logger}
	for _, s := range steps {
		p.Use(s)
	}
	return p
}

// Use appends a step and re-sorts the chain by descending priority.
// Registration order breaks priority ties.
func (p *Pipeline) Use(m Middleware) {
	p.steps = append(p.steps, m)
	sort.SliceStable(p.steps, func(i, j int) bool {
		return p.steps[i].Priority > p.steps[j].Priority
	})
}

// SetEnabled toggles a named step. Unknown names are a no-op and return
// false.
func (p *Pipeline) SetEnabled(name string, enabled bool) bool {
	for i := range p.steps {
		if p.steps[i].Name == name {
			p.steps[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Run passes the draft through the chain. A nil result means some step
// vetoed the draft; any veto short-circuits the remaining steps.
func (p *Pipeline) Run(ctx context.Context, n *Notification) *Notification {
	current := n
	for _, step := range p.steps {
		if !step.Enabled || step.Fn == nil {
			continue
		}

		next, err := p.invoke(ctx, step, current)
		if err != nil {
			p.logger.Warn("notification middleware failed",
				slog.String("middleware", step.Name),
				logger.Error(err))
			continue
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

func (p *Pipeline) invoke(ctx context.Context, step Middleware, n *Notification) (out *Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic in middleware %s: %v", step.Name, r)
		}
	}()
	return step.Fn(ctx, n)
}

// rateLimitMiddleware vetoes drafts that exceed the configured global,
// per-user or per-source creation limits. With rate limiting disabled in
// config it is a pass-through.
func rateLimitMiddleware(limiter *creationLimiter) MiddlewareFunc {
	return func(ctx context.Context, n *Notification) (*Notification, error) {
		if !limiter.allow(n.UserID, n.Source, time.Now()) {
			return nil, nil
		}
		return n, nil
	}
}

// dedupMiddleware vetoes a draft when a pending record with the same
// userID, type and title was created within the dedup window.
func dedupMiddleware(store Store, window time.Duration) MiddlewareFunc {
	return func(ctx context.Context, n *Notification) (*Notification, error) {
		since := time.Now().Add(-window)
		existing, err := store.List(ctx, Filter{
			UserID:   n.UserID,
			Types:    []Type{n.Type},
			Statuses: []Status{StatusPending},
			From:     &since,
		})
		if err != nil {
			return nil, err
		}
		for i := range existing {
			if existing[i].Title == n.Title {
				return nil, nil
			}
		}
		return n, nil
	}
}
