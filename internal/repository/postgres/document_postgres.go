package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// docColumns is the shared select list. Every document read joins users so
// the owner username travels with the record.
const docColumns = `d.id, d.file_name, d.storage_key, d.content_type, d.size, COALESCE(d.category, ''), d.tags, d.owner_id, u.username, d.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var tags []byte
	if err := row.Scan(
		&d.ID,
		&d.FileName,
		&d.StorageKey,
		&d.ContentType,
		&d.Size,
		&d.Category,
		&tags,
		&d.OwnerID,
		&d.OwnerName,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &d.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, file_name, storage_key, content_type, size, category, tags, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		RETURNING id, file_name, storage_key, content_type, size, COALESCE(category, ''), tags, owner_id, created_at
	`
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	if doc.Tags == nil {
		tags = []byte(`[]`)
	}
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.FileName,
		doc.StorageKey,
		doc.ContentType,
		doc.Size,
		doc.Category,
		tags,
		doc.OwnerID,
		doc.CreatedAt,
	)
	var out model.Document
	var outTags []byte
	if err := row.Scan(
		&out.ID,
		&out.FileName,
		&out.StorageKey,
		&out.ContentType,
		&out.Size,
		&out.Category,
		&outTags,
		&out.OwnerID,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(outTags, &out.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	// The insert cannot join users; the caller already knows the owner.
	out.OwnerName = doc.OwnerName
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `
		SELECT ` + docColumns + `
		FROM documents d
		JOIN users u ON u.id = d.owner_id
		WHERE d.id = $1
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// List returns documents matching the filter using LIMIT/OFFSET pagination
// and a total count for the same filter.
func (r *DocumentPostgres) List(ctx context.Context, f repository.DocumentFilter, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	where, args := whereClause(1, filterConds(f)...)

	qCount := `SELECT COUNT(*) FROM documents d JOIN users u ON u.id = d.owner_id` + where
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, err
	}

	n := len(args)
	qList := `
		SELECT ` + docColumns + `
		FROM documents d
		JOIN users u ON u.id = d.owner_id` + where + `
		ORDER BY d.created_at, d.id
		LIMIT $` + fmt.Sprint(n+1) + ` OFFSET $` + fmt.Sprint(n+2)

	rows, err := r.db.QueryContext(ctx, qList, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPage(rows, total)
}

// ListSharedWith returns the page of documents shared with the given recipient.
func (r *DocumentPostgres) ListSharedWith(ctx context.Context, recipientID string, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM document_shares s WHERE s.recipient_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, recipientID).Scan(&total); err != nil {
		return nil, err
	}

	q := `
		SELECT ` + docColumns + `
		FROM documents d
		JOIN users u ON u.id = d.owner_id
		JOIN document_shares s ON s.document_id = d.id
		WHERE s.recipient_id = $1
		ORDER BY d.created_at, d.id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, q, recipientID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPage(rows, total)
}

func collectPage(rows *sql.Rows, total int) (*repository.PageResult[model.Document], error) {
	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// Delete removes a document and its share records in one transaction. The
// schema also carries ON DELETE CASCADE as a backstop, but the explicit
// delete keeps the cascade visible and testable.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_shares WHERE document_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}
