package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// SharePostgres is a PostgreSQL implementation of repository.DocumentShareRepository.
type SharePostgres struct {
	db *sql.DB
}

// NewSharePostgres creates a new SharePostgres repository.
func NewSharePostgres(db *sql.DB) *SharePostgres {
	return &SharePostgres{db: db}
}

var _ repository.DocumentShareRepository = (*SharePostgres)(nil)

// Create inserts a new share row. The unique constraint on
// (document_id, recipient_id) is the authority for duplicate detection; a
// violation is translated to repository.ErrDuplicate.
func (r *SharePostgres) Create(ctx context.Context, share *model.DocumentShare) (*model.DocumentShare, error) {
	const q = `
		INSERT INTO document_shares (id, document_id, recipient_id, shared_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, document_id, recipient_id, shared_at
	`
	row := r.db.QueryRowContext(ctx, q,
		share.ID,
		share.DocumentID,
		share.RecipientID,
		share.SharedAt,
	)
	var out model.DocumentShare
	if err := row.Scan(
		&out.ID,
		&out.DocumentID,
		&out.RecipientID,
		&out.SharedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return &out, nil
}

// Exists reports whether a share row exists for the (document, recipient) pair.
func (r *SharePostgres) Exists(ctx context.Context, documentID, recipientID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM document_shares WHERE document_id = $1 AND recipient_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, documentID, recipientID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Delete removes the share row for the pair. Returns sql.ErrNoRows when no
// row was deleted so callers can distinguish a missing grant.
func (r *SharePostgres) Delete(ctx context.Context, documentID, recipientID string) error {
	const q = `DELETE FROM document_shares WHERE document_id = $1 AND recipient_id = $2`
	res, err := r.db.ExecContext(ctx, q, documentID, recipientID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
