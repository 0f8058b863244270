package handler

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Handlers are
// thin: request binding, identity extraction and status mapping only — all
// lifecycle decisions live in the service.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, users repository.UserRepository) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents", middleware.Identity(users))
	docs.Get("/shared", ListSharedWithMe(docSvc))
	docs.Get("/", ListDocuments(docSvc))
	docs.Post("/", UploadDocument(docSvc))
	docs.Get("/:id/download", DownloadDocument(docSvc))
	docs.Get("/:id/link", DocumentDownloadLink(docSvc))
	docs.Delete("/:id/share/:username", RevokeShare(docSvc))
	docs.Post("/:id/share", ShareDocument(docSvc))
	docs.Post("/:id/save", SaveSharedDocument(docSvc))
	docs.Delete("/:id", DeleteDocument(docSvc))

	admin := app.Group("/admin", middleware.Identity(users), middleware.RequireAdmin())
	admin.Get("/documents", ListAllDocuments(docSvc))
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

func caller(c *fiber.Ctx) (model.User, error) {
	u, ok := middleware.Caller(c)
	if !ok {
		return model.User{}, fiber.NewError(fiber.StatusUnauthorized, "missing identity")
	}
	return u, nil
}

func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// splitTags turns "a,b , c" into {"a","b","c"}; blanks disappear.
func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// listQuery binds the shared filter/pagination query parameters. The second
// return value is a non-nil response when binding failed.
func listQuery(c *fiber.Ctx) (service.ListQuery, error, bool) {
	page, err := strconv.Atoi(c.Query("page", "0"))
	if err != nil {
		return service.ListQuery{}, writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page"), false
	}
	size, err := strconv.Atoi(c.Query("size", "10"))
	if err != nil {
		return service.ListQuery{}, writeError(c, fiber.StatusBadRequest, "INVALID_SIZE", "invalid size"), false
	}
	return service.ListQuery{
		Category:  c.Query("category"),
		Tags:      splitTags(c.Query("tags")),
		FileName:  c.Query("query"),
		OwnerName: c.Query("owner"),
		Page:      page,
		Size:      size,
	}, nil, true
}

// UploadDocument handles multipart/form-data uploads (field name: file),
// with optional category and comma-separated tags fields.
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		doc, err := svc.Upload(c.UserContext(), f, service.UploadInput{
			FileName:    fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
			Category:    c.FormValue("category"),
			Tags:        splitTags(c.FormValue("tags")),
		}, u)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// ListDocuments returns the caller's own documents with optional filters.
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		q, resp, ok := listQuery(c)
		if !ok {
			return resp
		}
		res, err := svc.ListOwn(c.UserContext(), u, q)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ListAllDocuments is the admin listing across all owners. RequireAdmin
// guards the route.
func ListAllDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, resp, ok := listQuery(c)
		if !ok {
			return resp
		}
		res, err := svc.ListAll(c.UserContext(), q)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// DownloadDocument streams a document to its owner or an admin.
func DownloadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		fd, err := svc.Download(c.UserContext(), id, u)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fd.FileName))
		c.Set(fiber.HeaderContentType, fd.ContentType)
		if fd.Size > 0 {
			return c.SendStream(fd.Content, int(fd.Size))
		}
		return c.SendStream(fd.Content)
	}
}

// DocumentDownloadLink returns a time-limited presigned URL for the blob,
// letting clients fetch large content straight from object storage. The ttl
// query parameter is in seconds; the service clamps it.
func DocumentDownloadLink(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		ttlSec, err := strconv.Atoi(c.Query("ttl", "0"))
		if err != nil || ttlSec < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_TTL", "invalid ttl")
		}

		url, err := svc.DownloadLink(c.UserContext(), id, time.Duration(ttlSec)*time.Second, u)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

// DeleteDocument removes a document on behalf of its owner or an admin.
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id, u); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type shareRequest struct {
	Recipient string `json:"recipient"`
}

// ShareDocument grants a named user visibility of the caller's document.
func ShareDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		var req shareRequest
		if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Recipient) == "" {
			return writeError(c, fiber.StatusBadRequest, "RECIPIENT_REQUIRED", "recipient username is required")
		}

		share, err := svc.Share(c.UserContext(), id, req.Recipient, u)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(share)
	}
}

// RevokeShare removes a previously granted share.
func RevokeShare(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Revoke(c.UserContext(), id, c.Params("username"), u); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListSharedWithMe returns documents other users have shared with the caller.
func ListSharedWithMe(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		q, resp, ok := listQuery(c)
		if !ok {
			return resp
		}
		res, err := svc.SharedWithMe(c.UserContext(), u, q)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// SaveSharedDocument copies a shared document into the caller's own collection.
func SaveSharedDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := caller(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.SaveShared(c.UserContext(), id, u)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}
