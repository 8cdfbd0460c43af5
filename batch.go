package notifykit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchedNotification is the member projection carried in a rollup's
// data under the "batchedNotifications" key.
type BatchedNotification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Batch is an ephemeral grouping container. It lives only until flushed
// (size threshold or timeout) into a single rollup notification.
type Batch struct {
	ID        string
	Key       string
	UserID    string
	Type      Type
	Source    string
	Priority  Priority
	Channels  []Channel
	Members   []BatchedNotification
	Title     string
	Summary   string
	Strategy  string
	CreatedAt time.Time
}

// batchKey groups similar notifications per user, type and source.
func batchKey(userID string, typ Type, source string) string {
	return userID + "_" + string(typ) + "_" + source
}

// Batcher accumulates similar pending notifications into open batches.
// Lookup-and-append is guarded by a single mutex; the engine additionally
// serializes its create path so the eligibility check and the append are
// atomic with respect to each other.
type Batcher struct {
	mu   sync.Mutex
	open map[string]*Batch
}

// NewBatcher creates an empty batcher.
func NewBatcher() *Batcher {
	return &Batcher{
		open: make(map[string]*Batch),
	}
}

// Add appends a notification to the open batch for its key, creating the
// batch on first use. It returns the batch ID and whether the batch hit
// maxSize and must be processed now.
func (b *Batcher) Add(n *Notification, maxSize int) (batchID string, full bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := batchKey(n.UserID, n.Type, n.Source)
	batch, ok := b.open[key]
	if !ok {
		batch = &Batch{
			ID:        uuid.New().String(),
			Key:       key,
			UserID:    n.UserID,
			Type:      n.Type,
			Source:    n.Source,
			Priority:  n.Priority,
			Channels:  append([]Channel(nil), n.Channels...),
			Strategy:  "user_type_source",
			CreatedAt: time.Now(),
		}
		b.open[key] = batch
	}

	batch.Members = append(batch.Members, BatchedNotification{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	})
	// Summary text is regenerated on every addition
	batch.Title = fmt.Sprintf("%d new %s notifications", len(batch.Members), batch.Type)
	batch.Summary = fmt.Sprintf("You have %d new %s notifications", len(batch.Members), batch.Type)

	return batch.ID, maxSize > 0 && len(batch.Members) >= maxSize
}

// HasOpen reports whether an open batch exists for the key.
func (b *Batcher) HasOpen(userID string, typ Type, source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.open[batchKey(userID, typ, source)]
	return ok
}

// Take removes and returns a batch by ID. Size and timeout triggers are
// mutually exclusive per batch: once taken, the ID no longer resolves and
// a second trigger is a no-op.
func (b *Batcher) Take(batchID string) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, batch := range b.open {
		if batch.ID == batchID {
			delete(b.open, key)
			return batch
		}
	}
	return nil
}

// OlderThan returns the IDs of open batches created before the cutoff.
func (b *Batcher) OlderThan(cutoff time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for _, batch := range b.open {
		if batch.CreatedAt.Before(cutoff) {
			ids = append(ids, batch.ID)
		}
	}
	return ids
}

// Len returns the number of open batches.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.open)
}
