package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifykit/notifykit"
)

// Store is a Redis-backed notifykit.Store. Records live as JSON strings
// keyed by ID, with a sorted set indexing IDs by creation time so
// listings come back newest first without scanning the keyspace.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures the store.
type Option func(*Store)

// WithKeyPrefix overrides the default "notifykit:" key prefix, letting
// several engines share one Redis database.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a Store around an established Redis client.
func New(client *redis.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, notifykit.ErrStoreNil
	}
	s := &Store{
		client: client,
		prefix: "notifykit:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) key(id string) string {
	return s.prefix + "notification:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Create persists a new record and indexes it by creation time.
func (s *Store) Create(ctx context.Context, n *notifykit.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(n.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(n.CreatedAt.UnixNano()),
		Member: n.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*notifykit.Notification, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notifykit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var n notifykit.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification %s: %w", id, err)
	}
	return &n, nil
}

// Update replaces an existing record. SetXX keeps the write from
// resurrecting a record that retention or a delete removed concurrently.
func (s *Store) Update(ctx context.Context, n *notifykit.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}

	ok, err := s.client.SetXX(ctx, s.key(n.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return notifykit.ErrNotFound
	}
	return nil
}

// Delete removes a record and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return notifykit.ErrNotFound
	}
	return s.client.ZRem(ctx, s.indexKey(), id).Err()
}

// List returns all records matching the filter, newest first.
func (s *Store) List(ctx context.Context, f notifykit.Filter) ([]notifykit.Notification, error) {
	all, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]notifykit.Notification, 0, len(all))
	for i := range all {
		if f.Matches(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	return matched, nil
}

// Search pages through the filtered set with facet counts over the whole
// filtered set.
func (s *Store) Search(ctx context.Context, f notifykit.Filter, page, pageSize int) (*notifykit.SearchResult, error) {
	matched, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}

	result := &notifykit.SearchResult{
		Total:    len(matched),
		Page:     page,
		PageSize: pageSize,
		Facets:   notifykit.FacetCounts(matched),
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		result.Notifications = matched
		return result, nil
	}

	start := (page - 1) * pageSize
	if start >= len(matched) {
		result.Notifications = []notifykit.Notification{}
		return result, nil
	}
	end := min(start+pageSize, len(matched))
	result.Notifications = matched[start:end]
	return result, nil
}

// CountByUser returns the number of records owned by a user.
func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	matched, err := s.List(ctx, notifykit.Filter{UserID: userID})
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// DeleteOlderThan removes records created before the cutoff using the
// creation-time index, returning how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	maxScore := fmt.Sprintf("(%d", cutoff.UnixNano())
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", maxScore)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// fetchAll loads every indexed record, newest first. Index entries whose
// record vanished mid-read are skipped.
func (s *Store) fetchAll(ctx context.Context) ([]notifykit.Notification, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]notifykit.Notification, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var n notifykit.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification %s: %w", ids[i], err)
		}
		out = append(out, n)
	}
	return out, nil
}
