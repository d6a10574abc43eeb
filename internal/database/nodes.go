package database

import (
	"context"
	"errors"
	"time"

	"chmura-plikow/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type CreateNodeParams struct {
	ID           string
	OwnerID      string
	ParentID     *string
	Name         string
	Path         string
	IsFolder     bool
	SizeBytes    int64
	MimeType     string
	BlobURL      *string
	ThumbnailURL *string
}

const nodeColumns = `id, owner_id, parent_id, name, path, is_folder, size_bytes, mime_type,
	blob_url, thumbnail_url, is_starred, is_trashed, created_at, updated_at`

func scanNode(row pgx.Row) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.ID,
		&node.OwnerID,
		&node.ParentID,
		&node.Name,
		&node.Path,
		&node.IsFolder,
		&node.SizeBytes,
		&node.MimeType,
		&node.BlobURL,
		&node.ThumbnailURL,
		&node.IsStarred,
		&node.IsTrashed,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if nodes == nil {
		return []models.Node{}, nil
	}

	return nodes, nil
}

func (q *Queries) CreateNode(ctx context.Context, arg CreateNodeParams) (*models.Node, error) {
	query := `
		INSERT INTO nodes (id, owner_id, parent_id, name, path, is_folder, size_bytes, mime_type,
			blob_url, thumbnail_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + nodeColumns

	now := time.Now()

	row := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.ParentID,
		arg.Name,
		arg.Path,
		arg.IsFolder,
		arg.SizeBytes,
		arg.MimeType,
		arg.BlobURL,
		arg.ThumbnailURL,
		now,
		now,
	)

	node, err := scanNode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateNodeName
		}
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrParentNotFound
		}
		return nil, err
	}

	return node, nil
}

// GetNodeByID returns a live (non-trashed) node owned by ownerID, or nil.
func (q *Queries) GetNodeByID(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE id = $1 AND owner_id = $2 AND is_trashed = FALSE
	`
	node, err := scanNode(q.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

// GetNodeAnyState also finds trashed nodes. Used by restore and hard delete.
func (q *Queries) GetNodeAnyState(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE id = $1 AND owner_id = $2
	`
	node, err := scanNode(q.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

// GetNodeForUpdate locks the row for the remainder of the transaction.
// Only meaningful when called through Store.ExecTx.
func (q *Queries) GetNodeForUpdate(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE id = $1 AND owner_id = $2 AND is_trashed = FALSE
		FOR UPDATE
	`
	node, err := scanNode(q.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

func (q *Queries) NodeExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM nodes WHERE id = $1)"
	err := q.db.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (q *Queries) GetNodesByParentID(ctx context.Context, ownerID string, parentID *string, limit int, offset int) ([]models.Node, error) {
	var rows pgx.Rows
	var err error

	if parentID == nil {
		query := `SELECT ` + nodeColumns + `
				 FROM nodes
				 WHERE owner_id = $1 AND parent_id IS NULL AND is_trashed = FALSE
				 ORDER BY is_folder DESC, name
				 LIMIT $2 OFFSET $3`
		rows, err = q.db.Query(ctx, query, ownerID, limit, offset)
	} else {
		query := `SELECT ` + nodeColumns + `
				 FROM nodes
				 WHERE owner_id = $1 AND parent_id = $2 AND is_trashed = FALSE
				 ORDER BY is_folder DESC, name
				 LIMIT $3 OFFSET $4`
		rows, err = q.db.Query(ctx, query, ownerID, *parentID, limit, offset)
	}

	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

func (q *Queries) CountChildren(ctx context.Context, ownerID string, parentID string) (int, error) {
	var count int
	query := `SELECT count(*) FROM nodes WHERE owner_id = $1 AND parent_id = $2`
	err := q.db.QueryRow(ctx, query, ownerID, parentID).Scan(&count)
	return count, err
}

func (q *Queries) ListStarred(ctx context.Context, ownerID string, limit int, offset int) ([]models.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE owner_id = $1 AND is_starred = TRUE AND is_trashed = FALSE
		ORDER BY is_folder DESC, name
		LIMIT $2 OFFSET $3
	`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

func (q *Queries) SetStarred(ctx context.Context, id string, ownerID string, starred bool) (bool, error) {
	query := `
		UPDATE nodes
		SET is_starred = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND is_trashed = FALSE
	`
	res, err := q.db.Exec(ctx, query, starred, time.Now(), id, ownerID)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (q *Queries) RenameNode(ctx context.Context, id string, ownerID string, newName string) (bool, error) {
	query := `
		UPDATE nodes
		SET name = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND is_trashed = FALSE
	`
	res, err := q.db.Exec(ctx, query, newName, time.Now(), id, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateNodeName
		}
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// MoveNode writes the new parent. Callers must have re-validated ownership,
// folder-ness and acyclicity inside the same transaction (see api.MoveNode).
func (q *Queries) MoveNode(ctx context.Context, id string, ownerID string, newParentID *string) (bool, error) {
	query := `
		UPDATE nodes
		SET parent_id = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND is_trashed = FALSE
	`
	res, err := q.db.Exec(ctx, query, newParentID, time.Now(), id, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrParentNotFound
		}
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateNodeName
		}
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// TrashNode flags the node and its whole subtree as trashed in one
// statement. The cascade is denormalized at write time; listings never have
// to consult ancestors.
func (q *Queries) TrashNode(ctx context.Context, id string, ownerID string) (bool, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT n.id
			FROM nodes n
			WHERE n.id = $1 AND n.owner_id = $2 AND n.is_trashed = FALSE

			UNION ALL

			SELECT n.id
			FROM nodes n
			INNER JOIN subtree s ON n.parent_id = s.id
		)
		UPDATE nodes
		SET is_trashed = TRUE, updated_at = $3
		WHERE id IN (SELECT id FROM subtree)
	`
	res, err := q.db.Exec(ctx, query, id, ownerID, time.Now())
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// RestoreNode flips the trash flag back for the subtree rooted at id. If the
// node's own parent is still trashed the node is re-attached at the owner
// root, so a restore never resurrects an invisible location.
func (q *Queries) RestoreNode(ctx context.Context, id string, ownerID string) (bool, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT n.id
			FROM nodes n
			WHERE n.id = $1 AND n.owner_id = $2 AND n.is_trashed = TRUE

			UNION ALL

			SELECT n.id
			FROM nodes n
			INNER JOIN subtree s ON n.parent_id = s.id
			WHERE n.is_trashed = TRUE
		)
		UPDATE nodes
		SET is_trashed = FALSE, updated_at = $3
		WHERE id IN (SELECT id FROM subtree)
	`
	res, err := q.db.Exec(ctx, query, id, ownerID, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateNodeName
		}
		return false, err
	}
	if res.RowsAffected() == 0 {
		return false, nil
	}

	detach := `
		UPDATE nodes
		SET parent_id = NULL, updated_at = $3
		WHERE id = $1 AND owner_id = $2
		  AND parent_id IS NOT NULL
		  AND EXISTS (SELECT 1 FROM nodes p WHERE p.id = nodes.parent_id AND p.is_trashed = TRUE)
	`
	if _, err := q.db.Exec(ctx, detach, id, ownerID, time.Now()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateNodeName
		}
		return false, err
	}

	return true, nil
}

// ListTrashRoots returns trashed nodes whose parent is not itself trashed,
// i.e. the roots of trashed subtrees. Descendants are implied.
func (q *Queries) ListTrashRoots(ctx context.Context, ownerID string, limit int, offset int) ([]models.Node, error) {
	query := `
		SELECT ` + nodeColumnsPrefixed("n") + `
		FROM nodes n
		LEFT JOIN nodes p ON p.id = n.parent_id
		WHERE n.owner_id = $1 AND n.is_trashed = TRUE
		  AND (n.parent_id IS NULL OR p.is_trashed = FALSE)
		ORDER BY n.updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

// ListSubtreeBlobKeys returns the blob keys of every file in the subtree
// rooted at id. Hard delete removes these from the object store before it
// deletes the rows.
func (q *Queries) ListSubtreeBlobKeys(ctx context.Context, id string, ownerID string) ([]string, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT n.id
			FROM nodes n
			WHERE n.id = $1 AND n.owner_id = $2

			UNION ALL

			SELECT n.id
			FROM nodes n
			INNER JOIN subtree s ON n.parent_id = s.id
		)
		SELECT path FROM nodes
		WHERE id IN (SELECT id FROM subtree) AND is_folder = FALSE
	`
	rows, err := q.db.Query(ctx, query, id, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobKeys []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		blobKeys = append(blobKeys, path)
	}

	return blobKeys, rows.Err()
}

// ListTrashBlobKeys returns the blob keys of every trashed file owned by
// ownerID.
func (q *Queries) ListTrashBlobKeys(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		SELECT path FROM nodes
		WHERE owner_id = $1 AND is_trashed = TRUE AND is_folder = FALSE
	`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobKeys []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		blobKeys = append(blobKeys, path)
	}

	return blobKeys, rows.Err()
}

// DeleteSubtree hard-deletes the node and every descendant, returning the
// blob keys of the deleted files so callers can clean up the object store.
func (q *Queries) DeleteSubtree(ctx context.Context, id string, ownerID string) ([]string, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT n.id
			FROM nodes n
			WHERE n.id = $1 AND n.owner_id = $2

			UNION ALL

			SELECT n.id
			FROM nodes n
			INNER JOIN subtree s ON n.parent_id = s.id
		)
		DELETE FROM nodes
		WHERE id IN (SELECT id FROM subtree)
		RETURNING path, is_folder
	`
	rows, err := q.db.Query(ctx, query, id, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobKeys []string
	found := false
	for rows.Next() {
		var path string
		var isFolder bool
		if err := rows.Scan(&path, &isFolder); err != nil {
			return nil, err
		}
		found = true
		if !isFolder {
			blobKeys = append(blobKeys, path)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNodeNotFound
	}

	return blobKeys, nil
}

// PurgeTrash hard-deletes everything in the owner's trash and returns the
// blob keys of removed files.
func (q *Queries) PurgeTrash(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		DELETE FROM nodes
		WHERE owner_id = $1 AND is_trashed = TRUE
		RETURNING path, is_folder
	`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobKeys []string
	for rows.Next() {
		var path string
		var isFolder bool
		if err := rows.Scan(&path, &isFolder); err != nil {
			return nil, err
		}
		if !isFolder {
			blobKeys = append(blobKeys, path)
		}
	}

	return blobKeys, rows.Err()
}

func nodeColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.owner_id, ` + alias + `.parent_id, ` + alias + `.name, ` +
		alias + `.path, ` + alias + `.is_folder, ` + alias + `.size_bytes, ` + alias + `.mime_type, ` +
		alias + `.blob_url, ` + alias + `.thumbnail_url, ` + alias + `.is_starred, ` + alias + `.is_trashed, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
