package classifier

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of Provider.
type MockProvider struct {
	mock.Mock
}

// Name mocks the Name method.
func (m *MockProvider) Name() string {
	return "mock"
}

// Complete mocks the Complete method.
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*CompletionResponse)
	return resp, args.Error(1)
}
