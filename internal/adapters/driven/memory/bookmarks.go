package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BookmarkStore = (*BookmarkStore)(nil)

// BookmarkStore is an in-process bookmark tree.
type BookmarkStore struct {
	mu     sync.Mutex
	nodes  map[string]*domain.Bookmark
	nextID int
}

// NewBookmarkStore creates an empty tree.
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{nodes: make(map[string]*domain.Bookmark)}
}

// CreateFolder adds a folder node and returns its id.
func (s *BookmarkStore) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	created, err := s.Create(ctx, &domain.Bookmark{ParentID: parentID, Title: title})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// EnsureFolder returns the id of the top-level folder with the given title,
// creating it if absent.
func (s *BookmarkStore) EnsureFolder(ctx context.Context, title string) (string, error) {
	roots, _ := s.Children(ctx, "")
	for _, n := range roots {
		if n.IsFolder() && n.Title == title {
			return n.ID, nil
		}
	}
	return s.CreateFolder(ctx, "", title)
}

// Create adds a node under bookmark.ParentID.
func (s *BookmarkStore) Create(ctx context.Context, bookmark *domain.Bookmark) (*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bookmark.ParentID != "" {
		parent, ok := s.nodes[bookmark.ParentID]
		if !ok {
			return nil, fmt.Errorf("parent %s: %w", bookmark.ParentID, domain.ErrNotFound)
		}
		if !parent.IsFolder() {
			return nil, fmt.Errorf("%w: parent %s is not a folder", domain.ErrInvalidInput, bookmark.ParentID)
		}
	}

	s.nextID++
	node := *bookmark
	node.ID = strconv.Itoa(s.nextID)
	s.nodes[node.ID] = &node

	out := node
	return &out, nil
}

// Update changes the title and URL of a node.
func (s *BookmarkStore) Update(ctx context.Context, id string, title, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	node.Title = title
	node.URL = url
	return nil
}

// Remove deletes a node and everything under it.
func (s *BookmarkStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return domain.ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *BookmarkStore) removeLocked(id string) {
	for childID, n := range s.nodes {
		if n.ParentID == id {
			s.removeLocked(childID)
		}
	}
	delete(s.nodes, id)
}

// Get retrieves a node.
func (s *BookmarkStore) Get(ctx context.Context, id string) (*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *node
	return &out, nil
}

// Children returns the direct children of a folder ordered by id.
func (s *BookmarkStore) Children(ctx context.Context, parentID string) ([]*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Bookmark
	for _, n := range s.nodes {
		if n.ParentID == parentID {
			node := *n
			out = append(out, &node)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out, nil
}
