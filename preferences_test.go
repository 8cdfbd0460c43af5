package notifykit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit"
)

func clockAt(hour, minute int) time.Time {
	// Wednesday
	return time.Date(2025, 6, 4, hour, minute, 0, 0, time.UTC)
}

func TestDoNotDisturbActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dnd  notifykit.DoNotDisturb
		now  time.Time
		want bool
	}{
		{
			name: "disabled never active",
			dnd:  notifykit.DoNotDisturb{Start: "00:00", End: "23:59"},
			now:  clockAt(12, 0),
			want: false,
		},
		{
			name: "inside window",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "09:00", End: "17:00"},
			now:  clockAt(12, 0),
			want: true,
		},
		{
			name: "outside window",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "09:00", End: "17:00"},
			now:  clockAt(18, 0),
			want: false,
		},
		{
			name: "window crossing midnight, late evening",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "22:00", End: "07:00"},
			now:  clockAt(23, 30),
			want: true,
		},
		{
			name: "window crossing midnight, early morning",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "22:00", End: "07:00"},
			now:  clockAt(6, 0),
			want: true,
		},
		{
			name: "window crossing midnight, daytime",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "22:00", End: "07:00"},
			now:  clockAt(12, 0),
			want: false,
		},
		{
			name: "restricted to other days",
			dnd: notifykit.DoNotDisturb{
				Enabled: true, Start: "00:00", End: "23:59",
				Days: []time.Weekday{time.Saturday, time.Sunday},
			},
			now:  clockAt(12, 0),
			want: false,
		},
		{
			name: "matching day",
			dnd: notifykit.DoNotDisturb{
				Enabled: true, Start: "00:00", End: "23:59",
				Days: []time.Weekday{time.Wednesday},
			},
			now:  clockAt(12, 0),
			want: true,
		},
		{
			name: "malformed clock is inactive",
			dnd:  notifykit.DoNotDisturb{Enabled: true, Start: "9am", End: "5pm"},
			now:  clockAt(12, 0),
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.dnd.Active(tt.now))
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	t.Parallel()

	prefs := notifykit.DefaultPreferences("u1")
	assert.Equal(t, "u1", prefs.UserID)
	assert.False(t, prefs.SmartBatching.Enabled)
	assert.Equal(t, 10, prefs.SmartBatching.MaxBatchSize)
	assert.False(t, prefs.DoNotDisturb.Enabled)
}

func TestMemoryPreferenceStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notifykit.NewMemoryPreferenceStore()

	// Unset users get permissive defaults
	prefs, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", prefs.UserID)
	assert.False(t, prefs.SmartBatching.Enabled)

	prefs.SmartBatching.Enabled = true
	prefs.SmartBatching.MaxBatchSize = 5
	require.NoError(t, store.Set(ctx, prefs))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.SmartBatching.Enabled)
	assert.Equal(t, 5, got.SmartBatching.MaxBatchSize)
	assert.False(t, got.UpdatedAt.IsZero())
}
