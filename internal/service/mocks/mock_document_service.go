package mocks

import (
	"context"
	"io"
	"time"

	"docvault/internal/model"
	"docvault/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, r io.Reader, in service.UploadInput, owner model.User) (*model.Document, error) {
	args := m.Called(ctx, r, in, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ListOwn(ctx context.Context, owner model.User, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, owner, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) ListAll(ctx context.Context, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Download(ctx context.Context, id string, caller model.User) (*service.FileDownload, error) {
	args := m.Called(ctx, id, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FileDownload), args.Error(1)
}

func (m *MockDocumentService) DownloadLink(ctx context.Context, id string, ttl time.Duration, caller model.User) (string, error) {
	args := m.Called(ctx, id, ttl, caller)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string, caller model.User) error {
	args := m.Called(ctx, id, caller)
	return args.Error(0)
}

func (m *MockDocumentService) Share(ctx context.Context, documentID, recipientUsername string, sender model.User) (*model.DocumentShare, error) {
	args := m.Called(ctx, documentID, recipientUsername, sender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentShare), args.Error(1)
}

func (m *MockDocumentService) Revoke(ctx context.Context, documentID, recipientUsername string, sender model.User) error {
	args := m.Called(ctx, documentID, recipientUsername, sender)
	return args.Error(0)
}

func (m *MockDocumentService) SharedWithMe(ctx context.Context, user model.User, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, user, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) SaveShared(ctx context.Context, sourceDocumentID string, user model.User) (*model.Document, error) {
	args := m.Called(ctx, sourceDocumentID, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}
