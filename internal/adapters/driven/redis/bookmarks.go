package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BookmarkStore = (*BookmarkStore)(nil)

const (
	bookmarkPrefix = keyPrefix + "bookmark:"
	bookmarkSeq    = keyPrefix + "bookmarks:seq"
	rootChildren   = keyPrefix + "bookmarks:root"

	// Node hash fields
	fieldParent = "parent"
	fieldTitle  = "title"
	fieldURL    = "url"
)

// updateNodeScript sets title and url only on an existing node.
// Returns 1 if updated, 0 if the node is absent.
var updateNodeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "title", ARGV[1], "url", ARGV[2])
return 1
`)

// BookmarkStore implements driven.BookmarkStore using Redis.
// Each node is a hash; each folder keeps a set of child ids. Ids come from
// a shared counter so they survive restarts.
type BookmarkStore struct {
	client *redis.Client
}

// NewBookmarkStore creates a new Redis-backed bookmark tree.
func NewBookmarkStore(client *redis.Client) *BookmarkStore {
	return &BookmarkStore{client: client}
}

func nodeKey(id string) string {
	return bookmarkPrefix + id
}

func childrenKey(parentID string) string {
	if parentID == "" {
		return rootChildren
	}
	return bookmarkPrefix + parentID + ":children"
}

// EnsureFolder returns the id of the top-level folder with the given title,
// creating it if absent.
func (s *BookmarkStore) EnsureFolder(ctx context.Context, title string) (string, error) {
	var folderID string

	txf := func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, rootChildren).Result()
		if err != nil {
			return fmt.Errorf("failed to list top-level nodes: %w", err)
		}
		sortNodeIDs(ids)
		for _, id := range ids {
			fields, err := tx.HGetAll(ctx, nodeKey(id)).Result()
			if err != nil {
				return fmt.Errorf("failed to read node %s: %w", id, err)
			}
			if len(fields) > 0 && fields[fieldURL] == "" && fields[fieldTitle] == title {
				folderID = id
				return nil
			}
		}

		seq, err := s.client.Incr(ctx, bookmarkSeq).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate node id: %w", err)
		}
		id := strconv.FormatInt(seq, 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			writeNode(ctx, pipe, &domain.Bookmark{ID: id, Title: title})
			return nil
		})
		if err == nil {
			folderID = id
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, rootChildren)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return "", err
		}
		return folderID, nil
	}
	return "", fmt.Errorf("ensure folder %q: too much contention", title)
}

// Create adds a node under bookmark.ParentID. The parent is watched so a
// concurrent removal aborts the insert.
func (s *BookmarkStore) Create(ctx context.Context, bookmark *domain.Bookmark) (*domain.Bookmark, error) {
	var watched []string
	if bookmark.ParentID != "" {
		watched = append(watched, nodeKey(bookmark.ParentID))
	}

	var created *domain.Bookmark
	txf := func(tx *redis.Tx) error {
		if bookmark.ParentID != "" {
			parent, err := readNode(ctx, tx, bookmark.ParentID)
			if err != nil {
				return fmt.Errorf("parent %s: %w", bookmark.ParentID, err)
			}
			if !parent.IsFolder() {
				return fmt.Errorf("%w: parent %s is not a folder", domain.ErrInvalidInput, bookmark.ParentID)
			}
		}

		seq, err := s.client.Incr(ctx, bookmarkSeq).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate node id: %w", err)
		}
		node := *bookmark
		node.ID = strconv.FormatInt(seq, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			writeNode(ctx, pipe, &node)
			return nil
		})
		if err == nil {
			created = &node
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, watched...)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to create bookmark: %w", err)
		}
		return created, nil
	}
	return nil, fmt.Errorf("create bookmark under %s: too much contention", bookmark.ParentID)
}

// Update changes the title and URL of a node
func (s *BookmarkStore) Update(ctx context.Context, id string, title, url string) error {
	n, err := updateNodeScript.Run(ctx, s.client, []string{nodeKey(id)}, title, url).Int()
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Remove deletes a node and everything under it.
func (s *BookmarkStore) Remove(ctx context.Context, id string) error {
	key := nodeKey(id)

	txf := func(tx *redis.Tx) error {
		node, err := readNode(ctx, tx, id)
		if err != nil {
			return err
		}
		subtree, err := collectSubtree(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, childrenKey(node.ParentID), id)
			for _, nodeID := range subtree {
				pipe.Del(ctx, nodeKey(nodeID), childrenKey(nodeID))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key, childrenKey(id))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to remove bookmark %s: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("remove bookmark %s: too much contention", id)
}

// Get retrieves a node
func (s *BookmarkStore) Get(ctx context.Context, id string) (*domain.Bookmark, error) {
	node, err := readNode(ctx, s.client, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to get bookmark %s: %w", id, err)
	}
	return node, err
}

// Children returns the direct children of a folder ordered by id.
func (s *BookmarkStore) Children(ctx context.Context, parentID string) ([]*domain.Bookmark, error) {
	ids, err := s.client.SMembers(ctx, childrenKey(parentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, err)
	}
	sortNodeIDs(ids)

	out := make([]*domain.Bookmark, 0, len(ids))
	for _, id := range ids {
		node, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func writeNode(ctx context.Context, pipe redis.Pipeliner, node *domain.Bookmark) {
	pipe.HSet(ctx, nodeKey(node.ID), map[string]any{
		fieldParent: node.ParentID,
		fieldTitle:  node.Title,
		fieldURL:    node.URL,
	})
	pipe.SAdd(ctx, childrenKey(node.ParentID), node.ID)
}

func readNode(ctx context.Context, c redis.Cmdable, id string) (*domain.Bookmark, error) {
	fields, err := c.HGetAll(ctx, nodeKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return &domain.Bookmark{
		ID:       id,
		ParentID: fields[fieldParent],
		Title:    fields[fieldTitle],
		URL:      fields[fieldURL],
	}, nil
}

// collectSubtree returns id and every descendant id
func collectSubtree(ctx context.Context, c redis.Cmdable, id string) ([]string, error) {
	out := []string{id}
	for i := 0; i < len(out); i++ {
		children, err := c.SMembers(ctx, childrenKey(out[i])).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", out[i], err)
		}
		out = append(out, children...)
	}
	return out, nil
}

func sortNodeIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseInt(ids[i], 10, 64)
		b, _ := strconv.ParseInt(ids[j], 10, 64)
		return a < b
	})
}
