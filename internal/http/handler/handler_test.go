package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	repoMocks "docvault/internal/repository/mocks"
	"docvault/internal/service"
	serviceMocks "docvault/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testUser  = model.User{ID: "11111111-1111-1111-1111-111111111111", Username: "alice", Role: model.RoleUser}
	testAdmin = model.User{ID: "22222222-2222-2222-2222-222222222222", Username: "root", Role: model.RoleAdmin}
)

// newTestApp wires the full route table against mocks, with the real Identity
// middleware resolving callers through a mocked user repository.
func newTestApp(t *testing.T, svc service.DocumentService) (*fiber.App, *repoMocks.MockUserRepository) {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := new(repoMocks.MockUserRepository)
	users.On("FindByID", mock.Anything, testUser.ID).Return(&testUser, nil).Maybe()
	users.On("FindByID", mock.Anything, testAdmin.ID).Return(&testAdmin, nil).Maybe()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, db, svc, users)
	return app, users
}

func authed(req *http.Request, u model.User) *http.Request {
	req.Header.Set(middleware.CallerHeader, u.ID)
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)

	newMultipart := func(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "test.txt")
		require.NoError(t, err)
		part.Write([]byte("hello world"))
		for k, v := range fields {
			writer.WriteField(k, v)
		}
		writer.Close()
		return body, writer.FormDataContentType()
	}

	t.Run("success", func(t *testing.T) {
		body, ct := newMultipart(t, map[string]string{"category": "finance", "tags": "a, b"})

		expectedDoc := &model.Document{ID: uuid.NewString(), FileName: "test.txt"}
		mockSvc.On("Upload", mock.Anything, mock.Anything, mock.MatchedBy(func(in service.UploadInput) bool {
			return in.FileName == "test.txt" &&
				in.Category == "finance" &&
				len(in.Tags) == 2 &&
				in.Size == int64(len("hello world"))
		}), testUser).Return(expectedDoc, nil).Once()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents", body), testUser)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result model.Document
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, expectedDoc.ID, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing file part", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.WriteField("category", "finance")
		writer.Close()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents", body), testUser)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		body, ct := newMultipart(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, resp).Error.Code)
	})
}

func TestListDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)

	t.Run("success with filters", func(t *testing.T) {
		expectedRes := &service.DocumentListResult{
			Items: []model.Document{{ID: uuid.NewString(), FileName: "test.pdf"}},
			Total: 1,
			Page:  2,
			Size:  5,
		}
		mockSvc.On("ListOwn", mock.Anything, testUser, service.ListQuery{
			Category: "finance",
			Tags:     []string{"a", "b"},
			FileName: "rep",
			Page:     2,
			Size:     5,
		}).Return(expectedRes, nil).Once()

		req := authed(httptest.NewRequest(http.MethodGet,
			"/documents?category=finance&tags=a,b&query=rep&page=2&size=5", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DocumentListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid page", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/documents?page=abc", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PAGE", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid size", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/documents?size=huge", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_SIZE", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("ListOwn", mock.Anything, testUser, mock.Anything).
			Return(nil, errors.New("service error")).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestListAllDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)

	t.Run("admin lists across owners", func(t *testing.T) {
		mockSvc.On("ListAll", mock.Anything, service.ListQuery{OwnerName: "ali", Page: 0, Size: 10}).
			Return(&service.DocumentListResult{Total: 3}, nil).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/admin/documents?owner=ali", nil), testAdmin)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("regular user is rejected", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/admin/documents", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
		mockSvc.AssertNotCalled(t, "ListAll", mock.Anything, mock.Anything)
	})
}

func TestDownloadDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Download", mock.Anything, docID, testUser).Return(&service.FileDownload{
			FileName:    "report.pdf",
			ContentType: "application/pdf",
			Size:        5,
			Content:     io.NopCloser(strings.NewReader("hello")),
		}, nil).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/download", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="report.pdf"`, resp.Header.Get(fiber.HeaderContentDisposition))
		assert.Equal(t, "application/pdf", resp.Header.Get(fiber.HeaderContentType))

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "hello", string(body))
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid/download", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		mockSvc.On("Download", mock.Anything, docID, testUser).
			Return(nil, service.ErrForbidden).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/download", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Download", mock.Anything, docID, testUser).
			Return(nil, service.ErrNotFound).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/download", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestDocumentDownloadLink(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		mockSvc.On("DownloadLink", mock.Anything, docID, 600*time.Second, testUser).
			Return("https://store/signed", nil).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/link?ttl=600", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "https://store/signed", body["url"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/link?ttl=soon", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_TTL", decodeError(t, resp).Error.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		mockSvc.On("DownloadLink", mock.Anything, docID, mock.Anything, testUser).
			Return("", service.ErrForbidden).Once()

		req := authed(httptest.NewRequest(http.MethodGet, "/documents/"+docID+"/link", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, docID, testUser).Return(nil).Once()

		req := authed(httptest.NewRequest(http.MethodDelete, "/documents/"+docID, nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, docID, testUser).Return(service.ErrNotFound).Once()

		req := authed(httptest.NewRequest(http.MethodDelete, "/documents/"+docID, nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestShareDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	shareReq := func(body string) *http.Request {
		req := authed(httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/share",
			strings.NewReader(body)), testUser)
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Share", mock.Anything, docID, "bob", testUser).
			Return(&model.DocumentShare{ID: uuid.NewString(), DocumentID: docID}, nil).Once()

		resp, _ := app.Test(shareReq(`{"recipient":"bob"}`))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing recipient", func(t *testing.T) {
		resp, _ := app.Test(shareReq(`{}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "RECIPIENT_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("self share", func(t *testing.T) {
		mockSvc.On("Share", mock.Anything, docID, "alice", testUser).
			Return(nil, service.ErrSelfShare).Once()

		resp, _ := app.Test(shareReq(`{"recipient":"alice"}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "SELF_SHARE", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("duplicate share", func(t *testing.T) {
		mockSvc.On("Share", mock.Anything, docID, "bob", testUser).
			Return(nil, service.ErrAlreadyShared).Once()

		resp, _ := app.Test(shareReq(`{"recipient":"bob"}`))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "ALREADY_SHARED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		mockSvc.On("Share", mock.Anything, docID, "ghost", testUser).
			Return(nil, service.ErrUserNotFound).Once()

		resp, _ := app.Test(shareReq(`{"recipient":"ghost"}`))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "USER_NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestRevokeShare(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Revoke", mock.Anything, docID, "bob", testUser).Return(nil).Once()

		req := authed(httptest.NewRequest(http.MethodDelete, "/documents/"+docID+"/share/bob", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no share to revoke", func(t *testing.T) {
		mockSvc.On("Revoke", mock.Anything, docID, "bob", testUser).
			Return(service.ErrShareNotFound).Once()

		req := authed(httptest.NewRequest(http.MethodDelete, "/documents/"+docID+"/share/bob", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "SHARE_NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestListSharedWithMe(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)

	// /documents/shared must route to the shared listing, not the :id routes.
	mockSvc.On("SharedWithMe", mock.Anything, testUser, service.ListQuery{Page: 0, Size: 10}).
		Return(&service.DocumentListResult{
			Items: []model.Document{{ID: uuid.NewString(), OwnerName: "bob"}},
			Total: 1,
		}, nil).Once()

	req := authed(httptest.NewRequest(http.MethodGet, "/documents/shared", nil), testUser)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result service.DocumentListResult
	json.NewDecoder(resp.Body).Decode(&result)
	assert.Equal(t, 1, result.Total)
	mockSvc.AssertExpectations(t)
	mockSvc.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveSharedDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app, _ := newTestApp(t, mockSvc)
	docID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		saved := &model.Document{ID: uuid.NewString(), OwnerID: testUser.ID}
		mockSvc.On("SaveShared", mock.Anything, docID, testUser).Return(saved, nil).Once()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/save", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result model.Document
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, saved.ID, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("own document", func(t *testing.T) {
		mockSvc.On("SaveShared", mock.Anything, docID, testUser).
			Return(nil, service.ErrOwnDocument).Once()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/save", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "OWN_DOCUMENT", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not shared with caller", func(t *testing.T) {
		mockSvc.On("SaveShared", mock.Anything, docID, testUser).
			Return(nil, service.ErrForbidden).Once()

		req := authed(httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/save", nil), testUser)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}
