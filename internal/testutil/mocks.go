package testutil

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	ports "adapter-persistence-service/internal/core/ports/output"
)

// MockBlobStore is a mock of BlobStore.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	args := m.Called(ctx, key, body, size, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ObjectInfo), args.Error(1)
}

func (m *MockBlobStore) PutFile(ctx context.Context, key, path string, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	args := m.Called(ctx, key, path, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ObjectInfo), args.Error(1)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, *ports.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*ports.ObjectInfo), args.Error(2)
}

func (m *MockBlobStore) GetFile(ctx context.Context, key, path string) error {
	args := m.Called(ctx, key, path)
	return args.Error(0)
}

func (m *MockBlobStore) Stat(ctx context.Context, key string) (*ports.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ObjectInfo), args.Error(1)
}

func (m *MockBlobStore) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.ObjectInfo), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBlobStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	args := m.Called(ctx, keys)
	return args.Int(0), args.Error(1)
}

func (m *MockBlobStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBlobStore) Bucket() string {
	args := m.Called()
	return args.String(0)
}

// MockTrainer is a mock of Trainer.
type MockTrainer struct {
	mock.Mock
}

func (m *MockTrainer) Train(ctx context.Context, job ports.TrainingJob) (*ports.TrainingOutcome, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.TrainingOutcome), args.Error(1)
}
