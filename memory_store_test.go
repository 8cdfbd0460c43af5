package notifykit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit"
)

func seedNotification(id, userID string, typ notifykit.Type, createdAt time.Time) *notifykit.Notification {
	return &notifykit.Notification{
		ID:        id,
		Type:      typ,
		Priority:  notifykit.PriorityMedium,
		Status:    notifykit.StatusPending,
		Title:     "title " + id,
		Message:   "message " + id,
		UserID:    userID,
		Source:    "test",
		Channels:  []notifykit.Channel{notifykit.ChannelToast},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()

	n := seedNotification("n1", "u1", notifykit.TypeInfo, time.Now())
	require.NoError(t, store.Create(ctx, n))

	got, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "title n1", got.Title)

	// Mutating the returned copy must not affect stored state
	got.Title = "mutated"
	again, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "title n1", again.Title)

	got.Title = "updated"
	require.NoError(t, store.Update(ctx, got))
	updated, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Title)

	require.NoError(t, store.Delete(ctx, "n1"))
	_, err = store.Get(ctx, "n1")
	assert.ErrorIs(t, err, notifykit.ErrNotFound)
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, notifykit.ErrNotFound)

	err = store.Update(ctx, seedNotification("missing", "u1", notifykit.TypeInfo, time.Now()))
	assert.ErrorIs(t, err, notifykit.ErrNotFound)

	err = store.Delete(ctx, "missing")
	assert.ErrorIs(t, err, notifykit.ErrNotFound)
}

func TestMemoryStoreListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Create(ctx, seedNotification("n1", "u1", notifykit.TypeInfo, base)))
	require.NoError(t, store.Create(ctx, seedNotification("n2", "u1", notifykit.TypeSecurity, base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, seedNotification("n3", "u2", notifykit.TypeInfo, base.Add(2*time.Minute))))

	t.Run("newest first", func(t *testing.T) {
		all, err := store.List(ctx, notifykit.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "n3", all[0].ID)
		assert.Equal(t, "n1", all[2].ID)
	})

	t.Run("by user", func(t *testing.T) {
		mine, err := store.List(ctx, notifykit.Filter{UserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)
	})

	t.Run("by type", func(t *testing.T) {
		sec, err := store.List(ctx, notifykit.Filter{Types: []notifykit.Type{notifykit.TypeSecurity}})
		require.NoError(t, err)
		require.Len(t, sec, 1)
		assert.Equal(t, "n2", sec[0].ID)
	})

	t.Run("text query case-insensitive", func(t *testing.T) {
		hits, err := store.List(ctx, notifykit.Filter{Query: "TITLE N2"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "n2", hits[0].ID)
	})

	t.Run("time window", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		windowed, err := store.List(ctx, notifykit.Filter{From: &from})
		require.NoError(t, err)
		assert.Len(t, windowed, 2)
	})
}

func TestMemoryStoreSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	for i, typ := range []notifykit.Type{
		notifykit.TypeInfo, notifykit.TypeInfo, notifykit.TypeSecurity,
		notifykit.TypeBackup, notifykit.TypeSecurity,
	} {
		n := seedNotification(string(rune('a'+i)), "u1", typ, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(ctx, n))
	}

	result, err := store.Search(ctx, notifykit.Filter{UserID: "u1"}, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Notifications, 2)
	assert.Equal(t, 1, result.Page)

	// Facets cover the whole filtered set, not the returned page
	typeSum := 0
	for _, c := range result.Facets.ByType {
		typeSum += c
	}
	assert.Equal(t, result.Total, typeSum)
	assert.Equal(t, 2, result.Facets.ByType[notifykit.TypeSecurity])

	statusSum := 0
	for _, c := range result.Facets.ByStatus {
		statusSum += c
	}
	assert.Equal(t, result.Total, statusSum)

	// Page past the end is empty, not an error
	far, err := store.Search(ctx, notifykit.Filter{UserID: "u1"}, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, far.Notifications)
	assert.Equal(t, 5, far.Total)
}

func TestMemoryStoreCountByUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.Create(ctx, seedNotification("n1", "u1", notifykit.TypeInfo, now)))
	require.NoError(t, store.Create(ctx, seedNotification("n2", "u1", notifykit.TypeInfo, now)))
	require.NoError(t, store.Create(ctx, seedNotification("n3", "u2", notifykit.TypeInfo, now)))

	count, err := store.CountByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CountByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreDeleteOlderThan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.Create(ctx, seedNotification("old1", "u1", notifykit.TypeInfo, now.Add(-48*time.Hour))))
	require.NoError(t, store.Create(ctx, seedNotification("old2", "u1", notifykit.TypeInfo, now.Add(-25*time.Hour))))
	require.NoError(t, store.Create(ctx, seedNotification("fresh", "u1", notifykit.TypeInfo, now)))

	removed, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := store.List(ctx, notifykit.Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].ID)
}
