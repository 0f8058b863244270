package mocks

import (
	"context"

	"docvault/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockShareRepository struct {
	mock.Mock
}

func (m *MockShareRepository) Create(ctx context.Context, share *model.DocumentShare) (*model.DocumentShare, error) {
	args := m.Called(ctx, share)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentShare), args.Error(1)
}

func (m *MockShareRepository) Exists(ctx context.Context, documentID, recipientID string) (bool, error) {
	args := m.Called(ctx, documentID, recipientID)
	return args.Bool(0), args.Error(1)
}

func (m *MockShareRepository) Delete(ctx context.Context, documentID, recipientID string) error {
	args := m.Called(ctx, documentID, recipientID)
	return args.Error(0)
}
