package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

func TestBookmarkStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewBookmarkStore()

	folder, err := store.CreateFolder(ctx, "", "Work")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	created, err := store.Create(ctx, &domain.Bookmark{ParentID: folder, Title: "PR #1", URL: "https://github.com/o/r/pull/1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.ID == folder {
		t.Errorf("expected a new id, got %q", created.ID)
	}

	if err := store.Update(ctx, created.ID, "PR #1 (draft)", created.URL); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := store.Get(ctx, created.ID)
	if got.Title != "PR #1 (draft)" {
		t.Errorf("expected updated title, got %q", got.Title)
	}

	children, _ := store.Children(ctx, folder)
	if len(children) != 1 {
		t.Errorf("expected 1 child, got %d", len(children))
	}

	if err := store.Remove(ctx, created.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
	if err := store.Update(ctx, created.ID, "x", "y"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestBookmarkStore_CreateUnderMissingOrLeafParent(t *testing.T) {
	ctx := context.Background()
	store := NewBookmarkStore()

	if _, err := store.Create(ctx, &domain.Bookmark{ParentID: "404", Title: "x", URL: "https://x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	folder, _ := store.CreateFolder(ctx, "", "Work")
	leaf, _ := store.Create(ctx, &domain.Bookmark{ParentID: folder, Title: "x", URL: "https://x"})
	if _, err := store.Create(ctx, &domain.Bookmark{ParentID: leaf.ID, Title: "y", URL: "https://y"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBookmarkStore_RemoveFolderRemovesChildren(t *testing.T) {
	ctx := context.Background()
	store := NewBookmarkStore()

	folder, _ := store.CreateFolder(ctx, "", "Work")
	child, _ := store.Create(ctx, &domain.Bookmark{ParentID: folder, Title: "x", URL: "https://x"})

	if err := store.Remove(ctx, folder); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Get(ctx, child.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected child removed, got %v", err)
	}
}

func TestBookmarkStore_EnsureFolder(t *testing.T) {
	ctx := context.Background()
	s := NewBookmarkStore()

	first, err := s.EnsureFolder(ctx, "Work items")
	if err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	if _, err := s.Create(ctx, &domain.Bookmark{Title: "Work items", URL: "https://example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := s.EnsureFolder(ctx, "Work items")
	if err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	if first != second {
		t.Errorf("expected the existing folder %s, got %s", first, second)
	}
}
