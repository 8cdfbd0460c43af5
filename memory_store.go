package notifykit

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Suitable for development and testing; substitute a durable adapter
// (redisstore, pgstore) for production retention guarantees.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Notification
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Notification),
	}
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	if n == nil || n.ID == "" {
		return ErrInvalidConfig
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[n.ID] = n.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[n.ID]; !ok {
		return ErrNotFound
	}
	s.records[n.ID] = n.clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.matching(f), nil
}

func (s *MemoryStore) Search(ctx context.Context, f Filter, page, pageSize int) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(f)

	result := &SearchResult{
		Total:    len(matched),
		Page:     page,
		PageSize: pageSize,
		Facets:   FacetCounts(matched),
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = len(matched)
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		result.Notifications = []Notification{}
		return result, nil
	}
	end := min(start+pageSize, len(matched))
	result.Notifications = matched[start:end]
	return result, nil
}

func (s *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.records {
		if n.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, n := range s.records {
		if n.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// matching returns copies of all records satisfying the filter, newest
// first. Callers must hold at least the read lock.
func (s *MemoryStore) matching(f Filter) []Notification {
	matched := make([]Notification, 0)
	for _, n := range s.records {
		if f.Matches(n) {
			matched = append(matched, *n.clone())
		}
	}

	slices.SortFunc(matched, func(a, b Notification) int {
		// Newest first; stable tie-break on ID for deterministic paging
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return matched
}
