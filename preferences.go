package notifykit

import (
	"context"
	"sync"
	"time"
)

// QuietHours defines a daily window during which a channel stays silent.
// Start and End use "HH:MM" 24-hour notation.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ChannelPreference configures one delivery channel for a user.
type ChannelPreference struct {
	Enabled    bool       `json:"enabled"`
	Priority   Priority   `json:"priority,omitempty"`
	QuietHours QuietHours `json:"quiet_hours"`
	Frequency  string     `json:"frequency,omitempty"` // immediate, hourly, daily
}

// TypePreference configures one notification type for a user.
type TypePreference struct {
	Enabled  bool      `json:"enabled"`
	Priority Priority  `json:"priority,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// SmartBatching configures noise reduction through rollups.
type SmartBatching struct {
	Enabled             bool          `json:"enabled"`
	MaxBatchSize        int           `json:"max_batch_size"`
	BatchInterval       time.Duration `json:"batch_interval"`
	IntelligentGrouping bool          `json:"intelligent_grouping"`
}

// DoNotDisturb defines a recurring silence window. Days uses time.Weekday
// values; an empty slice means every day.
type DoNotDisturb struct {
	Enabled     bool           `json:"enabled"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Days        []time.Weekday `json:"days,omitempty"`
	AllowUrgent bool           `json:"allow_urgent"`
}

// Active reports whether the window covers the given moment.
func (d DoNotDisturb) Active(now time.Time) bool {
	if !d.Enabled {
		return false
	}
	if len(d.Days) > 0 {
		today := false
		for _, day := range d.Days {
			if day == now.Weekday() {
				today = true
				break
			}
		}
		if !today {
			return false
		}
	}
	start, okStart := parseClock(d.Start)
	end, okEnd := parseClock(d.End)
	if !okStart || !okEnd {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window crosses midnight, e.g. 22:00-07:00
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// Preferences holds per-user delivery preferences.
type Preferences struct {
	UserID        string                        `json:"user_id"`
	Channels      map[Channel]ChannelPreference `json:"channels,omitempty"`
	Types         map[Type]TypePreference       `json:"types,omitempty"`
	SmartBatching SmartBatching                 `json:"smart_batching"`
	DoNotDisturb  DoNotDisturb                  `json:"do_not_disturb"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}

// DefaultPreferences returns permissive preferences: everything enabled,
// batching off, no DND window.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID: userID,
		SmartBatching: SmartBatching{
			Enabled:       false,
			MaxBatchSize:  10,
			BatchInterval: 5 * time.Minute,
		},
	}
}

// channelAllowed reports whether a channel is admitted for the given
// notification under these preferences. Absent entries default to
// allowed; the DND window suppresses everything below critical unless
// AllowUrgent admits it.
func (p Preferences) channelAllowed(n *Notification, ch Channel, now time.Time) bool {
	if cp, ok := p.Channels[ch]; ok {
		if !cp.Enabled {
			return false
		}
		if cp.QuietHours.Enabled {
			window := DoNotDisturb{Enabled: true, Start: cp.QuietHours.Start, End: cp.QuietHours.End}
			if window.Active(now) {
				return false
			}
		}
	}
	if tp, ok := p.Types[n.Type]; ok {
		if !tp.Enabled {
			return false
		}
		if len(tp.Channels) > 0 {
			found := false
			for _, allowed := range tp.Channels {
				if allowed == ch {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if p.DoNotDisturb.Active(now) {
		urgent := n.Priority == PriorityUrgent || n.Priority == PriorityCritical
		if !(urgent && p.DoNotDisturb.AllowUrgent) {
			return false
		}
	}
	return true
}

// PreferenceStore supplies and persists per-user preferences. The engine
// treats it as a simple get/set keyed by user ID.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (Preferences, error)
	Set(ctx context.Context, prefs Preferences) error
}

// MemoryPreferenceStore is an in-memory PreferenceStore.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewMemoryPreferenceStore creates an empty preference store.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{
		prefs: make(map[string]Preferences),
	}
}

// Get returns the stored preferences for a user, or permissive defaults
// when none were set.
func (s *MemoryPreferenceStore) Get(ctx context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return DefaultPreferences(userID), nil
}

func (s *MemoryPreferenceStore) Set(ctx context.Context, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs.UpdatedAt = time.Now()
	s.prefs[prefs.UserID] = prefs
	return nil
}
