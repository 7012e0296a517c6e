package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *MockNotifier) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string) error {
	args := m.Called(ctx, chatID, fileRef, caption)
	return args.Error(0)
}
