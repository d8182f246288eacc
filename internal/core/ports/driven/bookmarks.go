package driven

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// BookmarkStore is the bookmark folder collaborator items are written into.
type BookmarkStore interface {
	// Create adds a node under bookmark.ParentID and returns it with its new ID
	Create(ctx context.Context, bookmark *domain.Bookmark) (*domain.Bookmark, error)

	// Update changes the title and URL of an existing node
	Update(ctx context.Context, id string, title, url string) error

	// Remove deletes a node. Removing a missing node returns domain.ErrNotFound.
	Remove(ctx context.Context, id string) error

	// Get retrieves a node. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Bookmark, error)
}
