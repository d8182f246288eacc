package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BookmarkStore = (*BookmarkStore)(nil)

// foreignKeyViolation is the SQLSTATE raised when a parent vanished mid-insert
const foreignKeyViolation = pq.ErrorCode("23503")

// BookmarkStore implements driven.BookmarkStore over the bookmark_nodes table.
// Node ids are the decimal form of the BIGSERIAL key.
type BookmarkStore struct {
	db *DB
}

// NewBookmarkStore creates a new PostgreSQL-backed bookmark tree.
func NewBookmarkStore(db *DB) *BookmarkStore {
	return &BookmarkStore{db: db}
}

const (
	selectNode = `SELECT id, parent_id, title, url FROM bookmark_nodes WHERE id = $1`

	insertNode = `
		INSERT INTO bookmark_nodes (parent_id, title, url)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	updateNode = `
		UPDATE bookmark_nodes
		SET title = $2, url = $3, updated_at = NOW()
		WHERE id = $1
	`

	deleteNode = `DELETE FROM bookmark_nodes WHERE id = $1`

	selectRootFolder = `
		SELECT id FROM bookmark_nodes
		WHERE parent_id IS NULL AND url = '' AND title = $1
		ORDER BY id
		LIMIT 1
	`

	insertRootFolder = `
		INSERT INTO bookmark_nodes (parent_id, title, url)
		VALUES (NULL, $1, '')
		RETURNING id
	`
)

// EnsureFolder returns the id of the top-level folder with the given title,
// creating it if absent. Instances starting together agree on one folder.
func (s *BookmarkStore) EnsureFolder(ctx context.Context, title string) (string, error) {
	var id int64
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", hashLockName("folder:"+title)); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, selectRootFolder, title).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.QueryRowContext(ctx, insertRootFolder, title).Scan(&id)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to ensure folder %q: %w", title, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// CreateFolder adds a folder node and returns its id.
func (s *BookmarkStore) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	created, err := s.Create(ctx, &domain.Bookmark{ParentID: parentID, Title: title})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Create adds a node under bookmark.ParentID
func (s *BookmarkStore) Create(ctx context.Context, bookmark *domain.Bookmark) (*domain.Bookmark, error) {
	var parent sql.NullInt64
	if bookmark.ParentID != "" {
		p, err := s.Get(ctx, bookmark.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent %s: %w", bookmark.ParentID, err)
		}
		if !p.IsFolder() {
			return nil, fmt.Errorf("%w: parent %s is not a folder", domain.ErrInvalidInput, bookmark.ParentID)
		}
		id, _ := parseNodeID(p.ID)
		parent = sql.NullInt64{Int64: id, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, insertNode, parent, bookmark.Title, bookmark.URL).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("parent %s: %w", bookmark.ParentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to create bookmark: %w", err)
	}

	node := *bookmark
	node.ID = strconv.FormatInt(id, 10)
	return &node, nil
}

// Update changes the title and URL of a node
func (s *BookmarkStore) Update(ctx context.Context, id string, title, url string) error {
	nodeID, ok := parseNodeID(id)
	if !ok {
		return domain.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, updateNode, nodeID, title, url)
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", id, err)
	}
	return requireAffected(res)
}

// Remove deletes a node. Children go with it via ON DELETE CASCADE.
func (s *BookmarkStore) Remove(ctx context.Context, id string) error {
	nodeID, ok := parseNodeID(id)
	if !ok {
		return domain.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, deleteNode, nodeID)
	if err != nil {
		return fmt.Errorf("failed to remove bookmark %s: %w", id, err)
	}
	return requireAffected(res)
}

// Get retrieves a node
func (s *BookmarkStore) Get(ctx context.Context, id string) (*domain.Bookmark, error) {
	nodeID, ok := parseNodeID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}

	var (
		rowID  int64
		parent sql.NullInt64
		node   domain.Bookmark
	)
	err := s.db.QueryRowContext(ctx, selectNode, nodeID).Scan(&rowID, &parent, &node.Title, &node.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark %s: %w", id, err)
	}

	node.ID = strconv.FormatInt(rowID, 10)
	if parent.Valid {
		node.ParentID = strconv.FormatInt(parent.Int64, 10)
	}
	return &node, nil
}

func parseNodeID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
