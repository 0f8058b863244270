package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func docRows(docs ...*model.Document) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "file_name", "storage_key", "content_type", "size",
		"category", "tags", "owner_id", "username", "created_at",
	})
	for _, d := range docs {
		rows.AddRow(d.ID, d.FileName, d.StorageKey, d.ContentType, d.Size,
			d.Category, []byte(`["a"]`), d.OwnerID, d.OwnerName, d.CreatedAt)
	}
	return rows
}

func TestDocumentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{
		ID:          "doc-uuid",
		FileName:    "test.txt",
		StorageKey:  "key-test.txt",
		ContentType: "text/plain",
		Size:        123,
		Category:    "finance",
		Tags:        []string{"a"},
		OwnerID:     "owner-uuid",
		OwnerName:   "alice",
		CreatedAt:   now,
	}

	rows := sqlmock.NewRows([]string{
		"id", "file_name", "storage_key", "content_type", "size",
		"category", "tags", "owner_id", "created_at",
	}).AddRow(doc.ID, doc.FileName, doc.StorageKey, doc.ContentType, doc.Size,
		doc.Category, []byte(`["a"]`), doc.OwnerID, doc.CreatedAt)

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.ID, doc.FileName, doc.StorageKey, doc.ContentType, doc.Size,
			doc.Category, []byte(`["a"]`), doc.OwnerID, doc.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, doc)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, doc.ID, result.ID)
	assert.Equal(t, []string{"a"}, result.Tags)
	// The insert cannot join users, so the owner name is carried over.
	assert.Equal(t, "alice", result.OwnerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Create_NilTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{ID: "doc-uuid", FileName: "a.txt", StorageKey: "k", ContentType: "text/plain", OwnerID: "o", CreatedAt: now}

	rows := sqlmock.NewRows([]string{
		"id", "file_name", "storage_key", "content_type", "size",
		"category", "tags", "owner_id", "created_at",
	}).AddRow(doc.ID, doc.FileName, doc.StorageKey, doc.ContentType, int64(0),
		"", []byte(`[]`), doc.OwnerID, doc.CreatedAt)

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.ID, doc.FileName, doc.StorageKey, doc.ContentType, int64(0),
			"", []byte(`[]`), doc.OwnerID, doc.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.Create(ctx, doc)

	assert.NoError(t, err)
	assert.Equal(t, []string{}, result.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		doc := &model.Document{
			ID: "doc-id", FileName: "file.txt", StorageKey: "k-file.txt",
			ContentType: "text/plain", Size: 100, Category: "hr",
			OwnerID: "owner-id", OwnerName: "alice", CreatedAt: time.Now(),
		}
		mock.ExpectQuery("SELECT (.+) FROM documents d JOIN users u").
			WithArgs("doc-id").
			WillReturnRows(docRows(doc))

		got, err := repo.FindByID(ctx, "doc-id")

		assert.NoError(t, err)
		assert.NotNil(t, got)
		assert.Equal(t, "doc-id", got.ID)
		assert.Equal(t, "alice", got.OwnerName)
		assert.Equal(t, []string{"a"}, got.Tags)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents d JOIN users u").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.FindByID(ctx, "missing")

		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.Nil(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("filtered page", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents d JOIN users u`).
			WithArgs("owner-id", "finance").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		doc := &model.Document{ID: "d1", FileName: "a.txt", OwnerID: "owner-id", OwnerName: "alice", CreatedAt: time.Now()}
		mock.ExpectQuery("SELECT (.+) FROM documents d JOIN users u (.+) ORDER BY d.created_at, d.id").
			WithArgs("owner-id", "finance", 5, 10).
			WillReturnRows(docRows(doc))

		res, err := repo.List(ctx,
			repository.DocumentFilter{OwnerID: "owner-id", Category: "finance"},
			repository.PageQuery{Limit: 5, Offset: 10})

		assert.NoError(t, err)
		assert.Equal(t, 7, res.Total)
		assert.Len(t, res.Items, 1)
		assert.Equal(t, "d1", res.Items[0].ID)
	})

	t.Run("empty page keeps total", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents d JOIN users u`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		mock.ExpectQuery("SELECT (.+) FROM documents d JOIN users u").
			WithArgs(10, 100).
			WillReturnRows(docRows())

		res, err := repo.List(ctx, repository.DocumentFilter{}, repository.PageQuery{Limit: 10, Offset: 100})

		assert.NoError(t, err)
		assert.Equal(t, 42, res.Total)
		assert.Empty(t, res.Items)
	})

	t.Run("count error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents d JOIN users u`).
			WillReturnError(errors.New("db down"))

		res, err := repo.List(ctx, repository.DocumentFilter{}, repository.PageQuery{Limit: 10})

		assert.Error(t, err)
		assert.Nil(t, res)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListSharedWith(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_shares s`).
		WithArgs("recipient-id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	d1 := &model.Document{ID: "d1", FileName: "a.txt", OwnerID: "o1", OwnerName: "alice", CreatedAt: time.Now()}
	d2 := &model.Document{ID: "d2", FileName: "b.txt", OwnerID: "o2", OwnerName: "carol", CreatedAt: time.Now()}
	mock.ExpectQuery("SELECT (.+) FROM documents d JOIN users u (.+) JOIN document_shares s").
		WithArgs("recipient-id", 10, 0).
		WillReturnRows(docRows(d1, d2))

	res, err := repo.ListSharedWith(ctx, "recipient-id", repository.PageQuery{Limit: 10, Offset: 0})

	assert.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, "carol", res.Items[1].OwnerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("deletes shares then document in one tx", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM document_shares WHERE document_id").
			WithArgs("doc-id").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM documents WHERE id").
			WithArgs("doc-id").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.Delete(ctx, "doc-id"))
	})

	t.Run("rolls back when the document delete fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM document_shares WHERE document_id").
			WithArgs("doc-id").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("DELETE FROM documents WHERE id").
			WithArgs("doc-id").
			WillReturnError(errors.New("deadlock"))
		mock.ExpectRollback()

		assert.Error(t, repo.Delete(ctx, "doc-id"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
