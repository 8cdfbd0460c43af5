package notifykit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/logger"
)

// RuleFunc transforms a draft after the middleware pipeline has accepted
// it. Returning nil vetoes the draft, same as a middleware veto.
type RuleFunc func(ctx context.Context, n *Notification) *Notification

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger used across all engine components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore replaces the default in-memory notification store.
func WithStore(store Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithPreferenceStore replaces the default in-memory preference store.
func WithPreferenceStore(store PreferenceStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.prefs = store
		}
	}
}

// WithMiddleware appends steps to the create pipeline after the built-in
// rate-limit and dedup steps.
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Engine) {
		e.extraMW = append(e.extraMW, mw...)
	}
}

// WithRule appends a transformation rule to the create flow.
func WithRule(rule RuleFunc) Option {
	return func(e *Engine) {
		if rule != nil {
			e.rules = append(e.rules, rule)
		}
	}
}

// WithProvider registers a delivery provider at construction time.
func WithProvider(p Provider) Option {
	return func(e *Engine) {
		if p != nil {
			e.pendingProviders = append(e.pendingProviders, p)
		}
	}
}

// Engine is the notification lifecycle coordinator. It owns the create
// pipeline, the priority queues, batching, analytics, the event bus and
// the background sweeps.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	store     Store
	prefs     PreferenceStore
	templates *TemplateRegistry
	providers *ProviderRegistry
	pipeline  *Pipeline
	batcher   *Batcher
	queues    *QueueManager
	analytics *Tracker
	events    *Bus
	sched     *scheduler

	rules            []RuleFunc
	extraMW          []Middleware
	pendingProviders []Provider

	// createMu serializes the create path so the dedup check and the
	// batch eligibility check cannot race with a concurrent store write.
	createMu sync.Mutex
	started  atomic.Bool
	closed   atomic.Bool
}

// New builds an engine from configuration. Invalid configuration and an
// empty queue topology fail fast.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if len(cfg.Queues) == 0 {
		cfg.Queues = DefaultQueues()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.prefs == nil {
		e.prefs = NewMemoryPreferenceStore()
	}
	e.events = NewBus(WithBusLogger(e.logger))
	e.templates = NewTemplateRegistry()
	e.providers = NewProviderRegistry(e.logger)
	e.batcher = NewBatcher()
	e.analytics = NewTracker(e.store, cfg.AnalyticsEnabled, e.logger)

	limiter := newCreationLimiter(cfg.RateLimiting)
	e.pipeline = NewPipeline(e.logger,
		Middleware{Name: "rate-limit", Priority: 100, Enabled: cfg.RateLimiting.Enabled, Fn: rateLimitMiddleware(limiter)},
		Middleware{Name: "dedup", Priority: 90, Enabled: cfg.DedupWindow > 0, Fn: dedupMiddleware(e.store, cfg.DedupWindow)},
	)
	for _, mw := range e.extraMW {
		e.pipeline.Use(mw)
	}

	queues, err := NewQueueManager(cfg.Queues, e.deliverNotification, e.retriesExhausted, e.events, e.logger)
	if err != nil {
		return nil, err
	}
	e.queues = queues

	for _, p := range e.pendingProviders {
		if err := e.providers.Register(p); err != nil {
			return nil, err
		}
	}
	e.pendingProviders = nil

	e.sched = newScheduler(e.logger,
		sweep{name: "batch-flush", interval: cfg.FlushInterval, run: e.flushStaleBatches},
		sweep{name: "retention", interval: cfg.RetentionInterval, run: e.enforceRetention},
	)

	return e, nil
}

// Start launches the queue drains and background sweeps. Calling Start
// twice is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.started.Swap(true) {
		return nil
	}
	e.queues.Start(ctx)
	e.sched.Start(ctx)
	e.logger.Info("notification engine started",
		slog.Int("queues", len(e.cfg.Queues)),
		slog.Bool("batching", e.cfg.BatchingEnabled),
		slog.Bool("analytics", e.cfg.AnalyticsEnabled))
	return nil
}

// Close stops the sweeps, cancels pending retries and waits for in-flight
// deliveries to finish. The engine rejects new work afterwards.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.sched.Stop()
	e.queues.Close()
	e.logger.Info("notification engine stopped")
	return nil
}

// Create runs a draft through the middleware pipeline and rules, stores
// it, routes it into a priority queue or an open batch, and returns the
// stored record. A vetoed draft is handed back with its defaults applied
// but is never stored, queued or counted; callers can tell by checking
// Status against StatusPending and the store.
func (e *Engine) Create(ctx context.Context, draft Notification) (*Notification, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	now := time.Now()
	n := draft.clone()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if n.Priority == "" {
		if n.Priority = e.cfg.DefaultPriority; n.Priority == "" {
			n.Priority = PriorityMedium
		}
	}
	if len(n.Channels) == 0 {
		ch := e.cfg.DefaultChannel
		if ch == "" {
			ch = ChannelToast
		}
		n.Channels = []Channel{ch}
	}
	if n.AutoHide && n.AutoHideDuration <= 0 {
		n.AutoHideDuration = 5 * time.Second
	}
	n.Status = StatusPending
	n.CreatedAt = now
	n.UpdatedAt = now

	e.createMu.Lock()
	defer e.createMu.Unlock()

	out := e.pipeline.Run(ctx, n)
	if out == nil {
		e.logger.Debug("notification vetoed by middleware",
			logger.UserID(n.UserID),
			slog.String("type", string(n.Type)))
		return n, nil
	}
	n = out

	for _, rule := range e.rules {
		next := e.applyRule(ctx, rule, n)
		if next == nil {
			return n, nil
		}
		n = next
	}

	if e.shouldBatch(ctx, n, now) {
		return e.createBatched(ctx, n)
	}

	if err := e.store.Create(ctx, n); err != nil {
		return nil, err
	}
	e.pruneOverflow(ctx, n.UserID)

	if err := e.queues.Enqueue(n.clone()); err != nil {
		return nil, err
	}
	e.events.Emit(Event{Kind: EventCreated, Notification: n.clone()})
	e.analytics.Track(ctx, n.ID, n.UserID, AnalyticsDelivered, "")
	return n, nil
}

func (e *Engine) applyRule(ctx context.Context, rule RuleFunc, n *Notification) (out *Notification) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("notification rule panicked", slog.Any("panic", r))
			out = n
		}
	}()
	return rule(ctx, n)
}

// shouldBatch decides whether the draft joins a rollup instead of being
// delivered on its own. Critical and urgent notifications always bypass
// batching.
func (e *Engine) shouldBatch(ctx context.Context, n *Notification, now time.Time) bool {
	if !e.cfg.BatchingEnabled || n.UserID == "" || n.BatchID != "" {
		return false
	}
	if n.Priority == PriorityCritical || n.Priority == PriorityUrgent {
		return false
	}

	prefs, err := e.prefs.Get(ctx, n.UserID)
	if err != nil {
		e.logger.Warn("preference lookup failed",
			logger.UserID(n.UserID),
			logger.Error(err))
		return false
	}
	if !prefs.SmartBatching.Enabled {
		return false
	}

	if e.batcher.HasOpen(n.UserID, n.Type, n.Source) {
		return true
	}

	// A lone notification only starts a batch when similar pending
	// records arrived within the batch interval.
	interval := prefs.SmartBatching.BatchInterval
	if interval <= 0 {
		interval = e.cfg.BatchTimeout
	}
	since := now.Add(-interval)
	similar, err := e.store.List(ctx, Filter{
		UserID:   n.UserID,
		Source:   n.Source,
		Types:    []Type{n.Type},
		Statuses: []Status{StatusPending},
		From:     &since,
	})
	if err != nil {
		e.logger.Warn("batch eligibility lookup failed", logger.Error(err))
		return false
	}
	return len(similar) > 0
}

// createBatched stores the member under an open batch. Members are held
// back from the queues; delivery happens through the rollup.
func (e *Engine) createBatched(ctx context.Context, n *Notification) (*Notification, error) {
	prefs, err := e.prefs.Get(ctx, n.UserID)
	if err != nil {
		prefs = DefaultPreferences(n.UserID)
	}
	maxSize := prefs.SmartBatching.MaxBatchSize

	batchID, full := e.batcher.Add(n, maxSize)
	n.BatchID = batchID

	if err := e.store.Create(ctx, n); err != nil {
		return nil, err
	}
	e.pruneOverflow(ctx, n.UserID)
	e.events.Emit(Event{Kind: EventCreated, Notification: n.clone(), BatchID: batchID})

	if full {
		e.processBatch(ctx, batchID)
	}
	return n, nil
}

// processBatch flushes a batch into a single rollup notification that
// carries the member projections and enters the queues like any other
// record. Size and timeout triggers are mutually exclusive; whichever
// takes the batch first wins and the other is a no-op.
func (e *Engine) processBatch(ctx context.Context, batchID string) {
	batch := e.batcher.Take(batchID)
	if batch == nil {
		return
	}

	now := time.Now()
	childIDs := make([]string, len(batch.Members))
	for i, m := range batch.Members {
		childIDs[i] = m.ID
	}
	channels := batch.Channels
	if len(channels) == 0 {
		if ch := e.cfg.DefaultChannel; ch != "" {
			channels = []Channel{ch}
		} else {
			channels = []Channel{ChannelToast}
		}
	}

	rollup := &Notification{
		ID:          uuid.New().String(),
		Type:        batch.Type,
		Priority:    batch.Priority,
		Status:      StatusPending,
		Title:       batch.Title,
		Message:     batch.Summary,
		Summary:     batch.Summary,
		Source:      batch.Source,
		UserID:      batch.UserID,
		Channels:    channels,
		GroupKey:    batch.Key,
		BatchID:     batch.ID,
		ChildIDs:    childIDs,
		Data:        map[string]any{"batchedNotifications": batch.Members},
		Dismissible: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.Create(ctx, rollup); err != nil {
		e.logger.Error("batch rollup store failed",
			logger.BatchID(batch.ID),
			logger.Error(err))
		return
	}
	if err := e.queues.Enqueue(rollup.clone()); err != nil {
		e.logger.Error("batch rollup enqueue failed",
			logger.BatchID(batch.ID),
			logger.Error(err))
	}
	e.events.Emit(Event{Kind: EventBatchProcessed, Notification: rollup.clone(), BatchID: batch.ID})
	e.logger.Info("notification batch processed",
		logger.BatchID(batch.ID),
		slog.Int("members", len(batch.Members)))
}

// deliverNotification is the queue delivery callback. It fans out across
// the notification's channels, bounded by the lane's concurrency, applies
// user preference gating and records per-channel outcomes. Channels that
// already delivered are skipped so retries only touch failed ones.
func (e *Engine) deliverNotification(ctx context.Context, n *Notification, concurrency int) error {
	if n.IsExpired() {
		return e.expire(ctx, n)
	}

	prefs, err := e.prefs.Get(ctx, n.UserID)
	if err != nil {
		e.logger.Warn("preference lookup failed, using defaults",
			logger.UserID(n.UserID),
			logger.Error(err))
		prefs = DefaultPreferences(n.UserID)
	}

	now := time.Now()
	var targets []Channel
	for _, ch := range n.Channels {
		if n.ChannelState(ch).Status == StatusDelivered {
			continue
		}
		if !prefs.channelAllowed(n, ch, now) {
			e.logger.Debug("channel suppressed by preferences",
				logger.NotificationID(n.ID),
				logger.ChannelName(string(ch)))
			continue
		}
		targets = append(targets, ch)
	}
	if len(targets) == 0 {
		return nil
	}

	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		delivered []Channel
		failures  []error
	)
	for _, ch := range targets {
		provider, ok := e.providers.For(ch)
		if !ok || !provider.Enabled() {
			e.logger.Warn("no provider for channel",
				logger.NotificationID(n.ID),
				logger.ChannelName(string(ch)))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(ch Channel, p Provider) {
			defer wg.Done()
			defer func() { <-sem }()

			ok, sendErr := e.send(ctx, p, n, ch)

			mu.Lock()
			defer mu.Unlock()
			if ok && sendErr == nil {
				n.recordDelivery(ch, true, "", time.Now())
				delivered = append(delivered, ch)
				return
			}
			if sendErr == nil {
				sendErr = ErrDeliveryFailed
			}
			n.recordDelivery(ch, false, sendErr.Error(), time.Now())
			failures = append(failures, fmt.Errorf("%s: %w", ch, sendErr))
		}(ch, provider)
	}
	wg.Wait()

	merged := e.persistDeliveryState(ctx, n)

	for _, ch := range delivered {
		e.analytics.Track(ctx, n.ID, n.UserID, AnalyticsDelivered, ch)
	}
	if len(delivered) > 0 {
		e.events.Emit(Event{Kind: EventDelivered, Notification: merged.clone()})
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}

// persistDeliveryState writes the outcome of a delivery pass back to the
// store. The queue delivers against a clone taken at enqueue time, so a
// lifecycle transition that landed while sends were in flight (a read
// during a slow provider) must survive: only the per-channel states, the
// first DeliveredAt and the pending promotion are merged onto the stored
// record, never the whole clone. Returns the merged record, or the clone
// when the record is gone.
func (e *Engine) persistDeliveryState(ctx context.Context, n *Notification) *Notification {
	stored, err := e.store.Get(ctx, n.ID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Warn("delivery state persist failed",
				logger.NotificationID(n.ID),
				logger.Error(err))
		}
		return n
	}

	if stored.DeliveryStatus == nil && len(n.DeliveryStatus) > 0 {
		stored.DeliveryStatus = make(map[Channel]DeliveryState, len(n.DeliveryStatus))
	}
	for ch, state := range n.DeliveryStatus {
		stored.DeliveryStatus[ch] = state
	}
	if stored.DeliveredAt == nil {
		stored.DeliveredAt = n.DeliveredAt
	}
	if stored.Status == StatusPending && n.Status == StatusDelivered {
		stored.Status = StatusDelivered
	}
	stored.UpdatedAt = time.Now()

	if err := e.store.Update(ctx, stored); err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.Warn("delivery state persist failed",
			logger.NotificationID(n.ID),
			logger.Error(err))
	}
	return stored
}

// send isolates provider panics; a panicking provider counts as a failed
// attempt on that channel.
func (e *Engine) send(ctx context.Context, p Provider, n *Notification, ch Channel) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic in provider %s: %v", p.Name(), r)
		}
	}()
	return p.Send(ctx, n, ch)
}

// expire marks a notification that outlived its ExpiresAt before delivery.
// The stored record is re-fetched first; a transition that already moved
// it into a terminal state wins over the expiry.
func (e *Engine) expire(ctx context.Context, n *Notification) error {
	stored, err := e.store.Get(ctx, n.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if stored.Status.Terminal() {
		return nil
	}
	stored.Status = StatusExpired
	stored.UpdatedAt = time.Now()
	if err := e.store.Update(ctx, stored); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	e.analytics.Track(ctx, n.ID, n.UserID, AnalyticsExpired, "")
	return nil
}

// retriesExhausted is the queue exhaust callback. A record that never
// delivered anywhere lands in the terminal failed status; a partially
// delivered record keeps its delivered status with the failed channels
// recorded per channel.
func (e *Engine) retriesExhausted(ctx context.Context, n *Notification, lastErr error) {
	record := n
	stored, err := e.store.Get(ctx, n.ID)
	switch {
	case err == nil:
		// Per-channel failure states were persisted after the final
		// attempt; only the terminal promotion is merged here so a read
		// or dismissal that raced the retries is not reverted.
		if stored.Status == StatusPending {
			stored.Status = StatusFailed
			stored.UpdatedAt = time.Now()
			if err := e.store.Update(ctx, stored); err != nil && !errors.Is(err, ErrNotFound) {
				e.logger.Warn("failure state persist failed",
					logger.NotificationID(n.ID),
					logger.Error(err))
			}
		}
		record = stored
	case !errors.Is(err, ErrNotFound):
		e.logger.Warn("failure state persist failed",
			logger.NotificationID(n.ID),
			logger.Error(err))
	}
	e.logger.Error("notification retries exhausted",
		logger.NotificationID(n.ID),
		logger.Error(lastErr))
	e.events.Emit(Event{Kind: EventFailed, Notification: record.clone()})
}

// Get returns a stored notification by ID.
func (e *Engine) Get(ctx context.Context, id string) (*Notification, error) {
	return e.store.Get(ctx, id)
}

// Patch carries partial updates for a stored notification. Nil fields are
// left untouched.
type Patch struct {
	Title       *string
	Message     *string
	HTMLBody    *string
	Summary     *string
	Priority    *Priority
	Tags        []string
	Data        map[string]any
	Actions     []Action
	ClickAction *ClickAction
	ExpiresAt   *time.Time
	ScheduledAt *time.Time
}

// Update applies a partial update to a stored notification, bumps its
// UpdatedAt and emits an updated event.
func (e *Engine) Update(ctx context.Context, id string, patch Patch) (*Notification, error) {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Message != nil {
		n.Message = *patch.Message
	}
	if patch.HTMLBody != nil {
		n.HTMLBody = *patch.HTMLBody
	}
	if patch.Summary != nil {
		n.Summary = *patch.Summary
	}
	if patch.Priority != nil {
		n.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		n.Tags = patch.Tags
	}
	if patch.Data != nil {
		n.Data = patch.Data
	}
	if patch.Actions != nil {
		n.Actions = patch.Actions
	}
	if patch.ClickAction != nil {
		n.ClickAction = patch.ClickAction
	}
	if patch.ExpiresAt != nil {
		n.ExpiresAt = patch.ExpiresAt
	}
	if patch.ScheduledAt != nil {
		n.ScheduledAt = patch.ScheduledAt
	}
	n.UpdatedAt = time.Now()

	if err := e.store.Update(ctx, n); err != nil {
		return nil, err
	}
	e.events.Emit(Event{Kind: EventUpdated, Notification: n.clone()})
	return n, nil
}

// Delete removes a notification and emits a deleted event. Returns false
// when the record does not exist.
func (e *Engine) Delete(ctx context.Context, id string) bool {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return false
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return false
	}
	e.events.Emit(Event{Kind: EventDeleted, Notification: n})
	return true
}

// MarkAsRead advances a notification to the read status. It returns false
// when the record is missing, owned by a different user, or in a terminal
// state. Re-reading an already read or acknowledged record is a no-op
// that reports success.
func (e *Engine) MarkAsRead(ctx context.Context, id, userID string) bool {
	return e.advance(ctx, id, userID, StatusRead)
}

// Acknowledge advances a notification to the acknowledged status,
// implying read. Ownership and terminal-state rules match MarkAsRead.
func (e *Engine) Acknowledge(ctx context.Context, id, userID string) bool {
	return e.advance(ctx, id, userID, StatusAcknowledged)
}

func (e *Engine) advance(ctx context.Context, id, userID string, target Status) bool {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return false
	}
	if userID != "" && n.UserID != userID {
		return false
	}
	if !n.Status.Terminal() && statusRank[n.Status] >= statusRank[target] {
		// Already there or past it
		return true
	}
	if !canTransition(n.Status, target) {
		return false
	}

	now := time.Now()
	n.Status = target
	switch target {
	case StatusRead:
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
	case StatusAcknowledged:
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
		if n.AcknowledgedAt == nil {
			n.AcknowledgedAt = &now
		}
	}
	n.UpdatedAt = now

	if err := e.store.Update(ctx, n); err != nil {
		e.logger.Warn("status update failed",
			logger.NotificationID(id),
			logger.Error(err))
		return false
	}

	if target == StatusAcknowledged {
		e.analytics.Track(ctx, id, n.UserID, AnalyticsAcknowledged, "")
		e.events.Emit(Event{Kind: EventAcknowledged, Notification: n.clone()})
	} else {
		e.analytics.Track(ctx, id, n.UserID, AnalyticsViewed, "")
		e.events.Emit(Event{Kind: EventRead, Notification: n.clone()})
	}
	return true
}

// Dismiss moves a notification into the terminal dismissed status. A
// second dismiss reports success without touching the record; records in
// a different terminal state cannot be dismissed.
func (e *Engine) Dismiss(ctx context.Context, id, userID string) bool {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return false
	}
	if userID != "" && n.UserID != userID {
		return false
	}
	if n.Status == StatusDismissed {
		return true
	}
	if n.Status.Terminal() {
		return false
	}

	n.Status = StatusDismissed
	n.UpdatedAt = time.Now()
	if err := e.store.Update(ctx, n); err != nil {
		e.logger.Warn("status update failed",
			logger.NotificationID(id),
			logger.Error(err))
		return false
	}

	e.analytics.Track(ctx, id, n.UserID, AnalyticsDismissed, "")
	e.events.Emit(Event{Kind: EventDismissed, Notification: n.clone()})
	return true
}

// BulkMarkAsRead marks each listed notification read and returns how many
// transitions reported success.
func (e *Engine) BulkMarkAsRead(ctx context.Context, ids []string, userID string) int {
	count := 0
	for _, id := range ids {
		if e.MarkAsRead(ctx, id, userID) {
			count++
		}
	}
	return count
}

// ClearAll dismisses every non-terminal notification owned by the user
// and returns how many were dismissed.
func (e *Engine) ClearAll(ctx context.Context, userID string) int {
	records, err := e.store.List(ctx, Filter{UserID: userID})
	if err != nil {
		e.logger.Warn("clear all listing failed",
			logger.UserID(userID),
			logger.Error(err))
		return 0
	}

	count := 0
	for i := range records {
		if records[i].Status.Terminal() {
			continue
		}
		if e.Dismiss(ctx, records[i].ID, userID) {
			count++
		}
	}
	return count
}

// UnreadCount returns the number of the user's notifications still
// awaiting a read: pending or delivered.
func (e *Engine) UnreadCount(ctx context.Context, userID string) int {
	records, err := e.store.List(ctx, Filter{
		UserID:   userID,
		Statuses: []Status{StatusPending, StatusDelivered},
	})
	if err != nil {
		return 0
	}
	return len(records)
}

// Recent returns the user's newest notifications, most recent first.
func (e *Engine) Recent(ctx context.Context, userID string, limit int) []Notification {
	result, err := e.store.Search(ctx, Filter{UserID: userID}, 1, limit)
	if err != nil {
		return nil
	}
	return result.Notifications
}

// List returns all notifications matching the filter, newest first.
func (e *Engine) List(ctx context.Context, f Filter) ([]Notification, error) {
	return e.store.List(ctx, f)
}

// Search pages through the filtered set with facet counts computed over
// the whole filtered set.
func (e *Engine) Search(ctx context.Context, f Filter, page, pageSize int) (*SearchResult, error) {
	return e.store.Search(ctx, f, page, pageSize)
}

// Metrics aggregates engagement metrics, scoped to a user when userID is
// non-empty.
func (e *Engine) Metrics(ctx context.Context, userID string) (*Metrics, error) {
	return e.analytics.Metrics(ctx, userID)
}

// QueueMetrics returns a snapshot of every queue lane's counters.
func (e *Engine) QueueMetrics() map[string]QueueMetrics {
	return e.queues.Metrics()
}

// Track records an engagement event against a notification. The owning
// user is resolved from the stored record.
func (e *Engine) Track(ctx context.Context, notificationID string, kind AnalyticsKind, ch Channel) {
	userID := ""
	if n, err := e.store.Get(ctx, notificationID); err == nil {
		userID = n.UserID
	}
	e.analytics.Track(ctx, notificationID, userID, kind, ch)
}

// Templates exposes the template registry for registration and rendering.
func (e *Engine) Templates() *TemplateRegistry {
	return e.templates
}

// CreateFromTemplate renders a registered template with the given data
// and creates the resulting notification for the user.
func (e *Engine) CreateFromTemplate(ctx context.Context, templateID, userID string, data map[string]string) (*Notification, error) {
	t, ok := e.templates.Get(templateID)
	if !ok {
		return nil, ErrTemplateNotFound
	}
	rendered, err := e.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}

	draft := NewDraft()
	draft.Type = t.Type
	draft.Priority = t.Priority
	draft.Title = rendered.Subject
	draft.Message = rendered.Body
	draft.HTMLBody = rendered.HTMLBody
	draft.Channels = append([]Channel(nil), t.Channels...)
	draft.UserID = userID
	return e.Create(ctx, draft)
}

// RegisterProvider adds a delivery provider for the channels it claims.
func (e *Engine) RegisterProvider(p Provider) error {
	return e.providers.Register(p)
}

// On subscribes a handler to a lifecycle event kind.
func (e *Engine) On(kind EventKind, fn EventHandler) Subscription {
	return e.events.On(kind, fn)
}

// Off removes a previously registered handler.
func (e *Engine) Off(kind EventKind, sub Subscription) {
	e.events.Off(kind, sub)
}

// Preferences returns the user's delivery preferences, defaults when
// never set.
func (e *Engine) Preferences(ctx context.Context, userID string) (Preferences, error) {
	return e.prefs.Get(ctx, userID)
}

// SetPreferences persists the user's delivery preferences.
func (e *Engine) SetPreferences(ctx context.Context, prefs Preferences) error {
	return e.prefs.Set(ctx, prefs)
}

// SetMiddlewareEnabled toggles a named pipeline step at runtime.
func (e *Engine) SetMiddlewareEnabled(name string, enabled bool) bool {
	return e.pipeline.SetEnabled(name, enabled)
}

// pruneOverflow evicts the user's oldest non-persistent records beyond
// the per-user cap. Eviction is silent; no lifecycle events fire.
func (e *Engine) pruneOverflow(ctx context.Context, userID string) {
	max := e.cfg.MaxNotificationsPerUser
	if max <= 0 || userID == "" {
		return
	}
	count, err := e.store.CountByUser(ctx, userID)
	if err != nil || count <= max {
		return
	}
	records, err := e.store.List(ctx, Filter{UserID: userID})
	if err != nil {
		return
	}

	over := count - max
	for i := len(records) - 1; i >= 0 && over > 0; i-- {
		if records[i].Persistent {
			continue
		}
		if err := e.store.Delete(ctx, records[i].ID); err == nil {
			over--
		}
	}
}

// flushStaleBatches processes open batches older than the batch timeout.
func (e *Engine) flushStaleBatches(ctx context.Context) {
	cutoff := time.Now().Add(-e.cfg.BatchTimeout)
	for _, id := range e.batcher.OlderThan(cutoff) {
		e.processBatch(ctx, id)
	}
}

// enforceRetention removes notifications and analytics events past the
// retention horizon. Retention bypasses the event bus.
func (e *Engine) enforceRetention(ctx context.Context) {
	if e.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -e.cfg.RetentionDays)

	removed, err := e.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		e.logger.Error("retention cleanup failed", logger.Error(err))
		return
	}
	pruned := e.analytics.PruneOlderThan(cutoff)
	if removed > 0 || pruned > 0 {
		e.logger.Info("retention cleanup finished",
			slog.Int("notifications_removed", removed),
			slog.Int("analytics_pruned", pruned))
	}
}
