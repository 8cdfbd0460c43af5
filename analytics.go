package notifykit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/logger"
)

// AnalyticsKind enumerates tracked engagement events.
type AnalyticsKind string

const (
	AnalyticsDelivered    AnalyticsKind = "delivered"
	AnalyticsViewed       AnalyticsKind = "viewed"
	AnalyticsClicked      AnalyticsKind = "clicked"
	AnalyticsDismissed    AnalyticsKind = "dismissed"
	AnalyticsAcknowledged AnalyticsKind = "acknowledged"
	AnalyticsExpired      AnalyticsKind = "expired"
)

// AnalyticsEvent is one append-only engagement record.
type AnalyticsEvent struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id,omitempty"`
	Kind           AnalyticsKind  `json:"kind"`
	Channel        Channel        `json:"channel,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Metrics aggregates engagement across a set of notifications.
type Metrics struct {
	Total           int              `json:"total"`
	Unread          int              `json:"unread"`
	ByType          map[Type]int     `json:"by_type"`
	ByPriority      map[Priority]int `json:"by_priority"`
	ByStatus        map[Status]int   `json:"by_status"`
	ByChannel       map[Channel]int  `json:"by_channel"`
	EngagementRate  float64          `json:"engagement_rate"`
	DismissalRate   float64          `json:"dismissal_rate"`
	AvgResponseTime time.Duration    `json:"avg_response_time"`
}

// Tracker keeps the append-only analytics log and mirrors engagement
// counters onto the notification records themselves.
type Tracker struct {
	mu      sync.RWMutex
	enabled bool
	events  []AnalyticsEvent
	store   Store
	logger  *slog.Logger
}

// NewTracker creates a tracker. With enabled false every Track call is a
// no-op, matching the analyticsEnabled configuration switch.
func NewTracker(store Store, enabled bool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		enabled: enabled,
		store:   store,
		logger:  logger,
	}
}

// Track appends an analytics record and, for viewed/clicked/dismissed
// events, bumps the notification's own counters and recomputes its
// engagement score.
func (t *Tracker) Track(ctx context.Context, notificationID, userID string, kind AnalyticsKind, ch Channel) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	t.events = append(t.events, AnalyticsEvent{
		ID:             uuid.New().String(),
		NotificationID: notificationID,
		UserID:         userID,
		Kind:           kind,
		Channel:        ch,
		Timestamp:      time.Now(),
	})
	t.mu.Unlock()

	switch kind {
	case AnalyticsViewed, AnalyticsClicked, AnalyticsDismissed:
	default:
		return
	}

	n, err := t.store.Get(ctx, notificationID)
	if err != nil {
		// Events may refer to records that have since been purged
		if !errors.Is(err, ErrNotFound) {
			t.logger.Warn("analytics counter update failed",
				logger.NotificationID(notificationID),
				logger.Error(err))
		}
		return
	}

	switch kind {
	case AnalyticsViewed:
		n.Analytics.Impressions++
	case AnalyticsClicked:
		n.Analytics.Clicks++
	case AnalyticsDismissed:
		n.Analytics.Dismissals++
	}
	n.Analytics.recalculate()

	if err := t.store.Update(ctx, n); err != nil && !errors.Is(err, ErrNotFound) {
		t.logger.Warn("analytics counter update failed",
			logger.NotificationID(notificationID),
			logger.Error(err))
	}
}

// Events returns a copy of the log, optionally scoped to one user.
func (t *Tracker) Events(userID string) []AnalyticsEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]AnalyticsEvent, 0, len(t.events))
	for _, e := range t.events {
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// PruneOlderThan drops events recorded before the cutoff and returns how
// many were removed.
func (t *Tracker) PruneOlderThan(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.events[:0]
	removed := 0
	for _, e := range t.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.events = kept
	return removed
}

// Metrics aggregates notification state and engagement, optionally scoped
// to one user. An empty userID covers all records.
func (t *Tracker) Metrics(ctx context.Context, userID string) (*Metrics, error) {
	records, err := t.store.List(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		Total:      len(records),
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
		ByStatus:   make(map[Status]int),
		ByChannel:  make(map[Channel]int),
	}

	var responseTotal time.Duration
	responseCount := 0
	for i := range records {
		n := &records[i]
		if n.Status != StatusRead {
			m.Unread++
		}
		m.ByType[n.Type]++
		m.ByPriority[n.Priority]++
		m.ByStatus[n.Status]++
		// A notification counts once per channel it targets
		for _, ch := range n.Channels {
			m.ByChannel[ch]++
		}
		if n.ReadAt != nil && n.DeliveredAt != nil {
			responseTotal += n.ReadAt.Sub(*n.DeliveredAt)
			responseCount++
		}
	}
	if responseCount > 0 {
		m.AvgResponseTime = responseTotal / time.Duration(responseCount)
	}

	var impressions, clicks, dismissals int
	for _, e := range t.Events(userID) {
		switch e.Kind {
		case AnalyticsViewed:
			impressions++
		case AnalyticsClicked:
			clicks++
		case AnalyticsDismissed:
			dismissals++
		}
	}
	if impressions > 0 {
		m.EngagementRate = float64(clicks) / float64(impressions)
		m.DismissalRate = float64(dismissals) / float64(impressions)
	}

	return m, nil
}
