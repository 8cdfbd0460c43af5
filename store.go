package notifykit

import (
	"context"
	"strings"
	"time"
)

// Filter narrows notification queries. Zero-valued fields are ignored.
type Filter struct {
	Types      []Type     // match any of these types
	Priorities []Priority // match any of these priorities
	Statuses   []Status   // match any of these statuses
	UserID     string     // owning user
	Source     string     // provenance source identifier
	BatchID    string     // batch membership
	UnreadOnly bool       // exclude read/acknowledged records
	Query      string     // case-insensitive substring over title+message
	From       *time.Time // createdAt lower bound (inclusive)
	To         *time.Time // createdAt upper bound (inclusive)
}

// Facets holds per-field counts across the whole filtered set, not the
// returned page. Summed per field, each map equals the filtered total.
type Facets struct {
	ByType     map[Type]int     `json:"by_type"`
	ByPriority map[Priority]int `json:"by_priority"`
	BySource   map[string]int   `json:"by_source"`
	ByStatus   map[Status]int   `json:"by_status"`
}

// SearchResult is one page of a filtered, newest-first listing.
type SearchResult struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	Facets        Facets         `json:"facets"`
}

// Store is the persistence seam for notification records. The engine owns
// all lifecycle semantics; implementations only persist and query. A
// durable backing store can be substituted without touching queue or
// batch logic.
type Store interface {
	// Create persists a new record.
	Create(ctx context.Context, n *Notification) error

	// Get retrieves a record by ID, returning ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Notification, error)

	// Update replaces the stored record with the given one.
	Update(ctx context.Context, n *Notification) error

	// Delete removes a record, returning ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// List returns all records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Notification, error)

	// Search pages through the filtered set and computes facet counts
	// over the whole filtered set.
	Search(ctx context.Context, f Filter, page, pageSize int) (*SearchResult, error)

	// CountByUser returns the number of records owned by a user.
	CountByUser(ctx context.Context, userID string) (int, error)

	// DeleteOlderThan permanently removes records created before the
	// cutoff and returns how many were removed. Used by retention
	// cleanup; callers must not emit lifecycle events for these.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Matches reports whether a notification satisfies the filter. Store
// adapters that cannot push every predicate into their query language
// apply it after fetching.
func (f Filter) Matches(n *Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if f.Source != "" && n.Source != f.Source {
		return false
	}
	if f.BatchID != "" && n.BatchID != f.BatchID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, n.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, n.Priority) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, n.Status) {
		return false
	}
	if f.UnreadOnly && (n.Status == StatusRead || n.Status == StatusAcknowledged) {
		return false
	}
	if f.Query != "" && !containsFold(n.Title, f.Query) && !containsFold(n.Message, f.Query) {
		return false
	}
	if f.From != nil && n.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && n.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func containsType(set []Type, t Type) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(set []Priority, p Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// FacetCounts derives facet counts from a filtered set. Shared by store
// adapters implementing Search.
func FacetCounts(matched []Notification) Facets {
	f := Facets{
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
		BySource:   make(map[string]int),
		ByStatus:   make(map[Status]int),
	}
	for i := range matched {
		n := &matched[i]
		f.ByType[n.Type]++
		f.ByPriority[n.Priority]++
		f.ByStatus[n.Status]++
		if n.Source != "" {
			f.BySource[n.Source]++
		} else {
			f.BySource["unknown"]++
		}
	}
	return f
}
