package notifykit_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit"
	"github.com/notifykit/notifykit/logger"
)

func fastQueues() []notifykit.QueueConfig {
	retry := notifykit.RetryPolicy{
		Enabled:     true,
		MaxAttempts: 2,
		Backoff:     notifykit.BackoffFixed,
		BaseDelay:   10 * time.Millisecond,
	}
	return []notifykit.QueueConfig{
		{ID: notifykit.QueueHigh, Priority: 3, Concurrency: 2, Retry: retry},
		{ID: notifykit.QueueMedium, Priority: 2, Concurrency: 2, Retry: retry},
		{ID: notifykit.QueueLow, Priority: 1, Concurrency: 1},
	}
}

func testConfig() notifykit.Config {
	cfg := notifykit.DefaultConfig()
	cfg.Queues = fastQueues()
	return cfg
}

func newTestEngine(t *testing.T, cfg notifykit.Config, opts ...notifykit.Option) *notifykit.Engine {
	t.Helper()

	engine, err := notifykit.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func successProvider(sent *atomic.Int32, channels ...notifykit.Channel) *notifykit.FuncProvider {
	if len(channels) == 0 {
		channels = []notifykit.Channel{notifykit.ChannelToast}
	}
	return &notifykit.FuncProvider{
		ProviderName: "test",
		OnChannels:   channels,
		SendFunc: func(ctx context.Context, n *notifykit.Notification, ch notifykit.Channel) (bool, error) {
			sent.Add(1)
			return true, nil
		},
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RetentionDays = -1
	_, err := notifykit.New(cfg)
	assert.ErrorIs(t, err, notifykit.ErrInvalidConfig)
}

func TestEngineCreateDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	n, err := engine.Create(ctx, notifykit.Notification{Title: "hello", UserID: "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, notifykit.TypeInfo, n.Type)
	assert.Equal(t, notifykit.PriorityMedium, n.Priority)
	assert.Equal(t, notifykit.StatusPending, n.Status)
	assert.Equal(t, []notifykit.Channel{notifykit.ChannelToast}, n.Channels)
	assert.False(t, n.CreatedAt.IsZero())

	stored, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Title)
}

func TestEngineDedupVeto(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	first, err := engine.Create(ctx, notifykit.Notification{Title: "duplicate me", UserID: "u1"})
	require.NoError(t, err)

	second, err := engine.Create(ctx, notifykit.Notification{Title: "duplicate me", UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, second)

	// The vetoed draft is handed back but never stored
	_, err = engine.Get(ctx, second.ID)
	assert.ErrorIs(t, err, notifykit.ErrNotFound)

	_, err = engine.Get(ctx, first.ID)
	assert.NoError(t, err)

	// A different title within the window passes
	third, err := engine.Create(ctx, notifykit.Notification{Title: "something else", UserID: "u1"})
	require.NoError(t, err)
	_, err = engine.Get(ctx, third.ID)
	assert.NoError(t, err)
}

func TestEngineCreationRateLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.RateLimiting = notifykit.RateLimitingConfig{
		Enabled:     true,
		GlobalLimit: 100,
		UserLimit:   1,
		SourceLimit: 100,
	}
	engine := newTestEngine(t, cfg)

	first, err := engine.Create(ctx, notifykit.Notification{Title: "one", UserID: "u1"})
	require.NoError(t, err)
	_, err = engine.Get(ctx, first.ID)
	require.NoError(t, err)

	second, err := engine.Create(ctx, notifykit.Notification{Title: "two", UserID: "u1"})
	require.NoError(t, err)
	_, err = engine.Get(ctx, second.ID)
	assert.ErrorIs(t, err, notifykit.ErrNotFound)

	// Other users are unaffected
	other, err := engine.Create(ctx, notifykit.Notification{Title: "three", UserID: "u2"})
	require.NoError(t, err)
	_, err = engine.Get(ctx, other.ID)
	assert.NoError(t, err)
}

func TestEngineDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var sent atomic.Int32
	rec := &eventRecorder{}

	engine := newTestEngine(t, testConfig(), notifykit.WithProvider(successProvider(&sent)))
	engine.On(notifykit.EventDelivered, rec.record)
	require.NoError(t, engine.Start(ctx))

	n, err := engine.Create(ctx, notifykit.Notification{Title: "ship it", UserID: "u1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := engine.Get(ctx, n.ID)
		return err == nil && got.Status == notifykit.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond)

	got, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, notifykit.StatusDelivered, got.ChannelState(notifykit.ChannelToast).Status)
	assert.Equal(t, int32(1), sent.Load())

	require.Eventually(t, func() bool {
		return rec.count(notifykit.EventDelivered) == 1 &&
			engine.QueueMetrics()[notifykit.QueueLow].Processed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEngineReadSurvivesSlowDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &notifykit.FuncProvider{
		ProviderName: "slow",
		OnChannels:   []notifykit.Channel{notifykit.ChannelToast},
		SendFunc: func(ctx context.Context, n *notifykit.Notification, ch notifykit.Channel) (bool, error) {
			close(started)
			<-release
			return true, nil
		},
	}
	engine := newTestEngine(t, testConfig(), notifykit.WithProvider(slow))

	n, err := engine.Create(ctx, notifykit.Notification{Title: "slow send", UserID: "u1"})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("delivery never started")
	}

	// The read lands while the provider is still sending
	require.True(t, engine.MarkAsRead(ctx, n.ID, "u1"))

	close(release)

	require.Eventually(t, func() bool {
		got, err := engine.Get(ctx, n.ID)
		return err == nil && got.ChannelState(notifykit.ChannelToast).Status == notifykit.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond)

	// Delivery completion merges per-channel state onto the stored record;
	// the read and its timestamp survive the slow send
	got, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifykit.StatusRead, got.Status)
	require.NotNil(t, got.ReadAt)
	assert.NotNil(t, got.DeliveredAt)
}

func TestEngineRetryExhaustion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var attempts atomic.Int32
	failing := &notifykit.FuncProvider{
		ProviderName: "flaky",
		OnChannels:   []notifykit.Channel{notifykit.ChannelToast},
		SendFunc: func(ctx context.Context, n *notifykit.Notification, ch notifykit.Channel) (bool, error) {
			attempts.Add(1)
			return false, errors.New("downstream unavailable")
		},
	}

	rec := &eventRecorder{}
	engine := newTestEngine(t, testConfig(), notifykit.WithProvider(failing))
	engine.On(notifykit.EventFailed, rec.record)
	require.NoError(t, engine.Start(ctx))

	n, err := engine.Create(ctx, notifykit.Notification{
		Title:    "doomed",
		UserID:   "u1",
		Priority: notifykit.PriorityCritical,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := engine.Get(ctx, n.ID)
		return err == nil && got.Status == notifykit.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	state := got.ChannelState(notifykit.ChannelToast)
	assert.Equal(t, notifykit.StatusFailed, state.Status)
	assert.NotEmpty(t, state.Error)
	assert.Equal(t, int32(2), attempts.Load())

	require.Eventually(t, func() bool {
		return rec.count(notifykit.EventFailed) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEngineLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	n, err := engine.Create(ctx, notifykit.Notification{Title: "lifecycle", UserID: "owner"})
	require.NoError(t, err)

	t.Run("ownership is enforced", func(t *testing.T) {
		assert.False(t, engine.MarkAsRead(ctx, n.ID, "intruder"))
		assert.False(t, engine.MarkAsRead(ctx, "missing", "owner"))
	})

	t.Run("read is idempotent", func(t *testing.T) {
		require.True(t, engine.MarkAsRead(ctx, n.ID, "owner"))

		got, err := engine.Get(ctx, n.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ReadAt)
		firstRead := *got.ReadAt

		require.True(t, engine.MarkAsRead(ctx, n.ID, "owner"))
		again, err := engine.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, firstRead, *again.ReadAt)
	})

	t.Run("acknowledge advances", func(t *testing.T) {
		require.True(t, engine.Acknowledge(ctx, n.ID, "owner"))
		got, err := engine.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notifykit.StatusAcknowledged, got.Status)
		require.NotNil(t, got.AcknowledgedAt)

		// Re-reading an acknowledged record is a no-op success
		assert.True(t, engine.MarkAsRead(ctx, n.ID, "owner"))
	})

	t.Run("dismissed is absorbing", func(t *testing.T) {
		require.True(t, engine.Dismiss(ctx, n.ID, "owner"))
		assert.True(t, engine.Dismiss(ctx, n.ID, "owner"))

		assert.False(t, engine.MarkAsRead(ctx, n.ID, "owner"))
		assert.False(t, engine.Acknowledge(ctx, n.ID, "owner"))

		got, err := engine.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notifykit.StatusDismissed, got.Status)
	})
}

func TestEngineBulkAndClearAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := engine.Create(ctx, notifykit.Notification{
			Title:  fmt.Sprintf("mine %d", i),
			UserID: "u1",
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	foreign, err := engine.Create(ctx, notifykit.Notification{Title: "not mine", UserID: "u2"})
	require.NoError(t, err)

	assert.Equal(t, 3, engine.UnreadCount(ctx, "u1"))

	count := engine.BulkMarkAsRead(ctx, append(ids, foreign.ID, "missing"), "u1")
	assert.Equal(t, 3, count)
	assert.Zero(t, engine.UnreadCount(ctx, "u1"))

	cleared := engine.ClearAll(ctx, "u1")
	assert.Equal(t, 3, cleared)

	// Everything owned is now terminal; a second pass clears nothing
	assert.Zero(t, engine.ClearAll(ctx, "u1"))
	assert.Equal(t, 1, engine.UnreadCount(ctx, "u2"))
}

func TestEngineBatchBySize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &eventRecorder{}
	engine := newTestEngine(t, testConfig())
	engine.On(notifykit.EventBatchProcessed, rec.record)

	prefs := notifykit.DefaultPreferences("u1")
	prefs.SmartBatching = notifykit.SmartBatching{
		Enabled:       true,
		MaxBatchSize:  3,
		BatchInterval: time.Minute,
	}
	require.NoError(t, engine.SetPreferences(ctx, prefs))

	for i := 0; i < 4; i++ {
		_, err := engine.Create(ctx, notifykit.Notification{
			Type:    notifykit.TypeSocial,
			Title:   fmt.Sprintf("mention %d", i),
			UserID:  "u1",
			Source:  "feed",
			Message: "someone mentioned you",
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return rec.count(notifykit.EventBatchProcessed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event, ok := rec.first(notifykit.EventBatchProcessed)
	require.True(t, ok)
	require.NotNil(t, event.Notification)
	rollup := event.Notification

	// The first record predates any similar pending ones and went direct;
	// the next three filled the batch.
	assert.Len(t, rollup.ChildIDs, 3)
	assert.NotEmpty(t, rollup.BatchID)
	assert.Equal(t, event.BatchID, rollup.BatchID)
	assert.Contains(t, rollup.Data, "batchedNotifications")
	assert.Equal(t, "You have 3 new social notifications", rollup.Message)

	members, err := engine.List(ctx, notifykit.Filter{BatchID: rollup.BatchID})
	require.NoError(t, err)
	// Three members plus the rollup itself
	assert.Len(t, members, 4)
}

func TestEngineBatchBypassForUrgent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	prefs := notifykit.DefaultPreferences("u1")
	prefs.SmartBatching = notifykit.SmartBatching{Enabled: true, MaxBatchSize: 2, BatchInterval: time.Minute}
	require.NoError(t, engine.SetPreferences(ctx, prefs))

	_, err := engine.Create(ctx, notifykit.Notification{
		Type: notifykit.TypeSecurity, Title: "alert 1", UserID: "u1", Source: "auth",
	})
	require.NoError(t, err)

	urgent, err := engine.Create(ctx, notifykit.Notification{
		Type: notifykit.TypeSecurity, Title: "alert 2", UserID: "u1", Source: "auth",
		Priority: notifykit.PriorityUrgent,
	})
	require.NoError(t, err)

	got, err := engine.Get(ctx, urgent.ID)
	require.NoError(t, err)
	assert.Empty(t, got.BatchID)
}

func TestEngineBatchByTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchTimeout = 30 * time.Millisecond
	cfg.FlushInterval = 20 * time.Millisecond

	rec := &eventRecorder{}
	engine := newTestEngine(t, cfg)
	engine.On(notifykit.EventBatchProcessed, rec.record)
	require.NoError(t, engine.Start(ctx))

	prefs := notifykit.DefaultPreferences("u1")
	prefs.SmartBatching = notifykit.SmartBatching{
		Enabled:       true,
		MaxBatchSize:  100,
		BatchInterval: time.Minute,
	}
	require.NoError(t, engine.SetPreferences(ctx, prefs))

	_, err := engine.Create(ctx, notifykit.Notification{
		Type: notifykit.TypeSocial, Title: "first", UserID: "u1", Source: "feed",
	})
	require.NoError(t, err)
	_, err = engine.Create(ctx, notifykit.Notification{
		Type: notifykit.TypeSocial, Title: "second", UserID: "u1", Source: "feed",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.count(notifykit.EventBatchProcessed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event, _ := rec.first(notifykit.EventBatchProcessed)
	require.NotNil(t, event.Notification)
	assert.Len(t, event.Notification.ChildIDs, 1)
}

func TestEnginePreferenceGating(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var sent atomic.Int32
	engine := newTestEngine(t, testConfig(), notifykit.WithProvider(successProvider(&sent)))
	require.NoError(t, engine.Start(ctx))

	prefs := notifykit.DefaultPreferences("u1")
	prefs.Channels = map[notifykit.Channel]notifykit.ChannelPreference{
		notifykit.ChannelToast: {Enabled: false},
	}
	require.NoError(t, engine.SetPreferences(ctx, prefs))

	n, err := engine.Create(ctx, notifykit.Notification{Title: "muted", UserID: "u1"})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, sent.Load())

	got, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifykit.StatusPending, got.Status)
}

func TestEngineCreateFromTemplate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	engine.Templates().Register(notifykit.Template{
		ID:       "deploy-done",
		Type:     notifykit.TypeSuccess,
		Priority: notifykit.PriorityHigh,
		Subject:  "Deploy of {{app}} finished",
		Body:     "Version {{version}} of {{app}} is live.",
		Channels: []notifykit.Channel{notifykit.ChannelPanel},
	})

	n, err := engine.CreateFromTemplate(ctx, "deploy-done", "u1", map[string]string{
		"app":     "api",
		"version": "1.4.2",
	})
	require.NoError(t, err)

	assert.Equal(t, "Deploy of api finished", n.Title)
	assert.Equal(t, "Version 1.4.2 of api is live.", n.Message)
	assert.Equal(t, notifykit.TypeSuccess, n.Type)
	assert.Equal(t, notifykit.PriorityHigh, n.Priority)
	assert.Equal(t, []notifykit.Channel{notifykit.ChannelPanel}, n.Channels)

	_, err = engine.CreateFromTemplate(ctx, "missing", "u1", nil)
	assert.ErrorIs(t, err, notifykit.ErrTemplateNotFound)
}

func TestEngineUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &eventRecorder{}
	engine := newTestEngine(t, testConfig())
	engine.On(notifykit.EventUpdated, rec.record)

	n, err := engine.Create(ctx, notifykit.Notification{Title: "before", UserID: "u1"})
	require.NoError(t, err)

	title := "after"
	priority := notifykit.PriorityHigh
	updated, err := engine.Update(ctx, n.ID, notifykit.Patch{Title: &title, Priority: &priority})
	require.NoError(t, err)

	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, notifykit.PriorityHigh, updated.Priority)
	assert.Equal(t, 1, rec.count(notifykit.EventUpdated))

	_, err = engine.Update(ctx, "missing", notifykit.Patch{Title: &title})
	assert.ErrorIs(t, err, notifykit.ErrNotFound)
}

func TestEngineDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := &eventRecorder{}
	engine := newTestEngine(t, testConfig())
	engine.On(notifykit.EventDeleted, rec.record)

	n, err := engine.Create(ctx, notifykit.Notification{Title: "to delete", UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, engine.Delete(ctx, n.ID))
	assert.False(t, engine.Delete(ctx, n.ID))
	assert.Equal(t, 1, rec.count(notifykit.EventDeleted))
}

func TestEngineSearchAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	for i := 0; i < 5; i++ {
		_, err := engine.Create(ctx, notifykit.Notification{
			Title:  fmt.Sprintf("item %d", i),
			UserID: "u1",
		})
		require.NoError(t, err)
	}

	result, err := engine.Search(ctx, notifykit.Filter{UserID: "u1"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Notifications, 2)

	recent := engine.Recent(ctx, "u1", 3)
	assert.Len(t, recent, 3)
}

func TestEngineMetricsAndTrack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	n, err := engine.Create(ctx, notifykit.Notification{Title: "engage", UserID: "u1"})
	require.NoError(t, err)
	_, err = engine.Create(ctx, notifykit.Notification{Title: "ignore", UserID: "u1"})
	require.NoError(t, err)

	require.True(t, engine.MarkAsRead(ctx, n.ID, "u1"))
	engine.Track(ctx, n.ID, notifykit.AnalyticsClicked, "")

	m, err := engine.Metrics(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 1, m.Unread)
	assert.InDelta(t, 1.0, m.EngagementRate, 0.0001)

	got, err := engine.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Analytics.Clicks)
	assert.Equal(t, 1, got.Analytics.Impressions)
}

func TestEngineMaxNotificationsPerUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxNotificationsPerUser = 2
	engine := newTestEngine(t, cfg)

	first, err := engine.Create(ctx, notifykit.Notification{Title: "oldest", UserID: "u1"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = engine.Create(ctx, notifykit.Notification{Title: "middle", UserID: "u1"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = engine.Create(ctx, notifykit.Notification{Title: "newest", UserID: "u1"})
	require.NoError(t, err)

	all, err := engine.List(ctx, notifykit.Filter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = engine.Get(ctx, first.ID)
	assert.ErrorIs(t, err, notifykit.ErrNotFound)
}

func TestEngineClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())
	require.NoError(t, engine.Start(ctx))

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	_, err := engine.Create(ctx, notifykit.Notification{Title: "late", UserID: "u1"})
	assert.ErrorIs(t, err, notifykit.ErrEngineClosed)
	assert.ErrorIs(t, engine.Start(ctx), notifykit.ErrEngineClosed)
}

func TestEngineEventSubscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := newTestEngine(t, testConfig())

	created := 0
	sub := engine.On(notifykit.EventCreated, func(notifykit.Event) { created++ })

	_, err := engine.Create(ctx, notifykit.Notification{Title: "one", UserID: "u1"})
	require.NoError(t, err)

	engine.Off(notifykit.EventCreated, sub)
	_, err = engine.Create(ctx, notifykit.Notification{Title: "two", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, created)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEngineStructuredLogAttrs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := &syncBuffer{}
	log := logger.New(logger.WithOutput(out), logger.WithLevel(slog.LevelWarn))
	engine := newTestEngine(t, testConfig(), notifykit.WithLogger(log))

	// No provider is registered, so the delivery pass warns per channel
	n, err := engine.Create(ctx, notifykit.Notification{Title: "unroutable", UserID: "u1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), n.ID)
	}, 2*time.Second, 10*time.Millisecond)

	logged := out.String()
	assert.Contains(t, logged, `"notification_id":"`+n.ID+`"`)
	assert.Contains(t, logged, `"channel":"toast"`)
}
