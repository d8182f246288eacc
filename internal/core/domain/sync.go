package domain

import (
	"fmt"
	"time"
)

// SyncStats summarizes one reconciliation
type SyncStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// SyncResult represents the outcome of a provider sync
type SyncResult struct {
	ProviderID string    `json:"providerId"`
	Success    bool      `json:"success"`
	Stats      SyncStats `json:"stats"`
	Error      string    `json:"error,omitempty"`
	Duration   float64   `json:"durationSeconds"`
	SyncedAt   time.Time `json:"syncedAt"`
}

// SweepResult aggregates one SyncAll execution
type SweepResult struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    bool          `json:"skipped,omitempty"`
	Results    []*SyncResult `json:"results,omitempty"`
}

// Diff is the reconciliation between a snapshot and a fresh fetch
type Diff struct {
	Added     []*BookmarkItem
	Updated   []UpdatedEntry
	Removed   []SnapshotEntry
	Unchanged []SnapshotEntry
}

// UpdatedEntry pairs the stored entry with its newer remote version
type UpdatedEntry struct {
	Previous SnapshotEntry
	Current  *BookmarkItem
}

// IsEmpty reports whether applying the diff would touch the bookmark collaborator.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Reconcile computes the diff between snapshot and fetched, keyed by
// (providerId, id). An existing key is updated only when LastModified differs,
// so unchanged remote data produces an empty diff. Fetched keys must be unique.
func Reconcile(snapshot []SnapshotEntry, fetched []*BookmarkItem) (*Diff, error) {
	previous := make(map[ItemKey]SnapshotEntry, len(snapshot))
	for _, entry := range snapshot {
		previous[entry.Item.Key()] = entry
	}

	diff := &Diff{}
	seen := make(map[ItemKey]struct{}, len(fetched))
	for _, item := range fetched {
		key := item.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, key)
		}
		seen[key] = struct{}{}

		entry, ok := previous[key]
		switch {
		case !ok:
			diff.Added = append(diff.Added, item)
		case !entry.Item.LastModified.Equal(item.LastModified):
			diff.Updated = append(diff.Updated, UpdatedEntry{Previous: entry, Current: item})
		default:
			diff.Unchanged = append(diff.Unchanged, entry)
		}
	}

	for _, entry := range snapshot {
		if _, ok := seen[entry.Item.Key()]; !ok {
			diff.Removed = append(diff.Removed, entry)
		}
	}

	return diff, nil
}
