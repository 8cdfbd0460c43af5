package notifykit

import (
	"time"
)

// Type classifies a notification by the domain it originates from.
type Type string

const (
	TypeSystem    Type = "system"
	TypeSecurity  Type = "security"
	TypeBackup    Type = "backup"
	TypePlatform  Type = "platform"
	TypeSocial    Type = "social"
	TypeContent   Type = "content"
	TypeFile      Type = "file"
	TypeBrand     Type = "brand"
	TypeApproval  Type = "approval"
	TypeSuccess   Type = "success"
	TypeError     Type = "error"
	TypeWarning   Type = "warning"
	TypeInfo      Type = "info"
	TypeCritical  Type = "critical"
	TypeMarketing Type = "marketing"
	TypeFinance   Type = "finance"
	TypeUser      Type = "user"
	TypeWorkflow  Type = "workflow"
)

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
)

// Status represents the lifecycle state of a notification.
//
// Transitions move strictly forward along
// pending -> delivered -> read -> acknowledged. Dismissed, expired and
// failed are absorbing terminal states; once reached, no API call moves
// the record out of them.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusRead         Status = "read"
	StatusAcknowledged Status = "acknowledged"
	StatusDismissed    Status = "dismissed"
	StatusExpired      Status = "expired"
	StatusFailed       Status = "failed"
)

// statusRank orders the forward lifecycle path. Terminal states are absent
// from the map and handled separately.
var statusRank = map[Status]int{
	StatusPending:      0,
	StatusDelivered:    1,
	StatusRead:         2,
	StatusAcknowledged: 3,
}

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusDismissed, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// canTransition reports whether moving from -> to respects the monotone
// lifecycle. Terminal states absorb; forward jumps along the path are
// allowed, backward moves are not.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelToast   Channel = "toast"
	ChannelPanel   Channel = "panel"
	ChannelDesktop Channel = "desktop"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// DeliveryState tracks per-channel delivery progress. Attempts only ever
// increases for the lifetime of the record.
type DeliveryState struct {
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ActionVariant styles a notification action button.
type ActionVariant string

const (
	ActionPrimary   ActionVariant = "primary"
	ActionSecondary ActionVariant = "secondary"
	ActionDanger    ActionVariant = "danger"
)

// Action represents a call-to-action attached to a notification.
type Action struct {
	ID                   string        `json:"id"`
	Label                string        `json:"label"`
	Variant              ActionVariant `json:"variant,omitempty"`
	RequiresConfirmation bool          `json:"requires_confirmation,omitempty"`
}

// ClickAction describes what happens when the notification body is clicked.
type ClickAction struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
}

// Analytics holds per-notification engagement counters and the derived
// engagement score.
type Analytics struct {
	Impressions     int     `json:"impressions"`
	Clicks          int     `json:"clicks"`
	Dismissals      int     `json:"dismissals"`
	EngagementScore float64 `json:"engagement_score"`
}

// recalculate refreshes the derived engagement score. The score weighs
// clicks fully and impressions at half value, normalized by impressions.
func (a *Analytics) recalculate() {
	if a.Impressions > 0 {
		a.EngagementScore = (float64(a.Clicks) + float64(a.Impressions)*0.5) / float64(a.Impressions)
	}
}

// Notification is the core domain model of the engine.
type Notification struct {
	ID string `json:"id"`

	// Classification
	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	// Content
	Title    string `json:"title"`
	Message  string `json:"message"`
	HTMLBody string `json:"html_body,omitempty"`
	Summary  string `json:"summary,omitempty"`

	// Provenance
	Source         string         `json:"source,omitempty"`
	SourceEntityID string         `json:"source_entity_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Data           map[string]any `json:"data,omitempty"`

	// Timing. Once set, a timestamp field is never cleared or rewound.
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	// Delivery
	Channels       []Channel                 `json:"channels"`
	DeliveryStatus map[Channel]DeliveryState `json:"delivery_status,omitempty"`

	// Behavior
	Persistent             bool          `json:"persistent"`
	Dismissible            bool          `json:"dismissible"`
	AutoHide               bool          `json:"auto_hide"`
	AutoHideDuration       time.Duration `json:"auto_hide_duration,omitempty"`
	RequiresAcknowledgment bool          `json:"requires_acknowledgment,omitempty"`

	// Interactivity
	Actions     []Action     `json:"actions,omitempty"`
	ClickAction *ClickAction `json:"click_action,omitempty"`

	// Grouping
	GroupKey string   `json:"group_key,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
	ChildIDs []string `json:"child_ids,omitempty"`
	BatchID  string   `json:"batch_id,omitempty"`

	Analytics Analytics `json:"analytics"`
}

// NewDraft returns a notification pre-filled with the default behavior
// flags: dismissible, auto-hiding after five seconds, not persistent.
// Boolean zero values cannot be told apart from explicit false, so
// callers wanting the defaults start from a draft and override.
func NewDraft() Notification {
	return Notification{
		Dismissible:      true,
		AutoHide:         true,
		AutoHideDuration: 5 * time.Second,
	}
}

// IsExpired reports whether the notification is past its expiry time.
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*n.ExpiresAt)
}

// ChannelState returns the delivery state for a channel, zero-valued when
// no attempt has been recorded yet.
func (n *Notification) ChannelState(ch Channel) DeliveryState {
	if n.DeliveryStatus == nil {
		return DeliveryState{}
	}
	return n.DeliveryStatus[ch]
}

// recordDelivery updates the per-channel delivery state after a send
// attempt and promotes the overall status on first success. Attempts is
// monotonically increasing; a more advanced overall status is never
// downgraded.
func (n *Notification) recordDelivery(ch Channel, ok bool, sendErr string, now time.Time) {
	if n.DeliveryStatus == nil {
		n.DeliveryStatus = make(map[Channel]DeliveryState)
	}
	state := n.DeliveryStatus[ch]
	state.Attempts++
	state.LastAttempt = &now
	if ok {
		state.Status = StatusDelivered
		state.Error = ""
		if n.DeliveredAt == nil {
			n.DeliveredAt = &now
		}
		if n.Status == StatusPending {
			n.Status = StatusDelivered
		}
	} else {
		state.Status = StatusFailed
		state.Error = sendErr
	}
	n.DeliveryStatus[ch] = state
	n.UpdatedAt = now
}

// clone returns a deep-enough copy so callers cannot mutate stored state
// through returned values.
func (n *Notification) clone() *Notification {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.Channels != nil {
		c.Channels = append([]Channel(nil), n.Channels...)
	}
	if n.ChildIDs != nil {
		c.ChildIDs = append([]string(nil), n.ChildIDs...)
	}
	if n.Actions != nil {
		c.Actions = append([]Action(nil), n.Actions...)
	}
	if n.DeliveryStatus != nil {
		c.DeliveryStatus = make(map[Channel]DeliveryState, len(n.DeliveryStatus))
		for k, v := range n.DeliveryStatus {
			c.DeliveryStatus[k] = v
		}
	}
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	if n.ClickAction != nil {
		ca := *n.ClickAction
		c.ClickAction = &ca
	}
	return &c
}
