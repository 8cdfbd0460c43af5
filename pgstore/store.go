package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifykit/notifykit"
)

// Store is a PostgreSQL-backed notifykit.Store. The full record lives in
// a JSONB payload column; the columns the filters touch are extracted for
// indexing so listings stay on SQL.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// Option configures the store.
type Option func(*Store)

// WithTable overrides the default "notifications" table name.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// New creates a Store around an established connection pool.
func New(pool *pgxpool.Pool, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, notifykit.ErrStoreNil
	}
	s := &Store{
		pool:  pool,
		table: "notifications",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the notifications table and its indexes when they
// do not exist yet. Deployments with managed migrations can skip it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL DEFAULT '',
			source     TEXT NOT NULL DEFAULT '',
			batch_id   TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL,
			priority   TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			payload    JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_user_created_idx ON %[1]s (user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS %[1]s_created_idx ON %[1]s (created_at);
	`, s.table)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Create persists a new record.
func (s *Store) Create(ctx context.Context, n *notifykit.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, source, batch_id, type, priority, status, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.table)
	_, err = s.pool.Exec(ctx, query,
		n.ID, n.UserID, n.Source, n.BatchID,
		string(n.Type), string(n.Priority), string(n.Status),
		n.CreatedAt, payload)
	return err
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*notifykit.Notification, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, s.table)

	var payload []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notifykit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var n notifykit.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification %s: %w", id, err)
	}
	return &n, nil
}

// Update replaces an existing record, keeping the indexed columns in sync
// with the payload.
func (s *Store) Update(ctx context.Context, n *notifykit.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET user_id = $2, source = $3, batch_id = $4, type = $5,
		    priority = $6, status = $7, payload = $8
		WHERE id = $1
	`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		n.ID, n.UserID, n.Source, n.BatchID,
		string(n.Type), string(n.Priority), string(n.Status), payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notifykit.ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notifykit.ErrNotFound
	}
	return nil
}

// List returns all records matching the filter, newest first.
func (s *Store) List(ctx context.Context, f notifykit.Filter) ([]notifykit.Notification, error) {
	where, args := buildWhere(f)
	query := fmt.Sprintf(`SELECT payload FROM %s%s ORDER BY created_at DESC, id DESC`, s.table, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifykit.Notification
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var n notifykit.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Search pages through the filtered set. Facets are computed over the
// whole filtered set, matching the in-memory store's semantics.
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
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE user_id = $1`, s.table)

	var count int
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan removes records created before the cutoff and returns
// how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// buildWhere renders the filter into a WHERE clause. The text query
// searches the payload's title and message fields.
func buildWhere(f notifykit.Filter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.Source != "" {
		conds = append(conds, "source = "+arg(f.Source))
	}
	if f.BatchID != "" {
		conds = append(conds, "batch_id = "+arg(f.BatchID))
	}
	if len(f.Types) > 0 {
		conds = append(conds, "type = ANY("+arg(asStrings(f.Types))+")")
	}
	if len(f.Priorities) > 0 {
		conds = append(conds, "priority = ANY("+arg(asStrings(f.Priorities))+")")
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status = ANY("+arg(asStrings(f.Statuses))+")")
	}
	if f.UnreadOnly {
		conds = append(conds, "status NOT IN ('read', 'acknowledged')")
	}
	if f.Query != "" {
		pattern := arg("%" + f.Query + "%")
		conds = append(conds, fmt.Sprintf("(payload->>'title' ILIKE %[1]s OR payload->>'message' ILIKE %[1]s)", pattern))
	}
	if f.From != nil {
		conds = append(conds, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "created_at <= "+arg(*f.To))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func asStrings[T ~string](set []T) []string {
	out := make([]string, len(set))
	for i, v := range set {
		out[i] = string(v)
	}
	return out
}
