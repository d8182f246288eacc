package domain

import (
	"fmt"
	"time"
)

// BookmarkItem is one remote work item mapped for the bookmark folder.
// ID is provider-scoped and stable across fetches; (ProviderID, ID) is unique.
type BookmarkItem struct {
	ID           string         `json:"id"`
	ProviderID   string         `json:"providerId"`
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	LastModified time.Time      `json:"lastModified"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ItemKey is the reconciliation key of a BookmarkItem
type ItemKey struct {
	ProviderID string
	ID         string
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s", k.ProviderID, k.ID)
}

// Key returns the (providerId, id) pair.
func (i *BookmarkItem) Key() ItemKey {
	return ItemKey{ProviderID: i.ProviderID, ID: i.ID}
}

// SnapshotEntry is a reconciled item plus the bookmark node it was written to
type SnapshotEntry struct {
	Item       BookmarkItem `json:"item"`
	BookmarkID string       `json:"bookmarkId"`
}

// Bookmark is a node in the bookmark collaborator. Folders have an empty URL.
type Bookmark struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
}

// IsFolder checks if the node is a folder
func (b *Bookmark) IsFolder() bool {
	return b.URL == ""
}

// BookmarkFromItem builds the bookmark node content for an item.
func BookmarkFromItem(folderID string, item *BookmarkItem) *Bookmark {
	return &Bookmark{
		ParentID: folderID,
		Title:    item.Title,
		URL:      item.URL,
	}
}
