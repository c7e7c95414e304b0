package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of the BlobStore interface for testing.
// The uploaded content is passed to the expectation as a string.
type MockBlobStore struct {
	mock.Mock
}

// PutObject is the mock implementation of the PutObject method.
func (m *MockBlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	args := m.Called(ctx, path, contentType, string(data))
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
