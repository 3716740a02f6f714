// Package memory provides an in-process BlobStore. It backs tests and the
// "memory" storage driver for local development; nothing survives a restart.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

type object struct {
	data []byte
	info ports.ObjectInfo
}

// Store keeps objects in a map guarded by an RWMutex. Data is copied on the
// way in and out.
type Store struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]*object
	now     func() time.Time
}

func NewStore(bucket string) *Store {
	return &Store{bucket: bucket, objects: make(map[string]*object), now: time.Now}
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrTransport, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.objects[key]
	switch {
	case opts.IfMatch != "":
		if !exists || cur.info.ETag != opts.IfMatch {
			return nil, domain.ErrPreconditionFailed
		}
	case opts.IfNoneMatch == "*":
		if exists {
			return nil, domain.ErrPreconditionFailed
		}
	case opts.IfNoneMatch != "":
		if exists && cur.info.ETag == opts.IfNoneMatch {
			return nil, domain.ErrPreconditionFailed
		}
	}

	sum := md5.Sum(data)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := make(map[string]string, len(opts.UserMetadata))
	for k, v := range opts.UserMetadata {
		meta[k] = v
	}

	obj := &object{
		data: data,
		info: ports.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ETag:         hex.EncodeToString(sum[:]),
			ContentType:  contentType,
			LastModified: s.now().UTC(),
			UserMetadata: meta,
		},
	}
	s.objects[key] = obj
	info := obj.info
	return &info, nil
}

func (s *Store) PutFile(ctx context.Context, key, path string, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Put(ctx, key, f, -1, opts)
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, nil, domain.ErrObjectNotFound
	}
	info := obj.info
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), &info, nil
}

func (s *Store) GetFile(ctx context.Context, key, path string) error {
	rc, _, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Stat(ctx context.Context, key string) (*ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	info := obj.info
	return &info, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.ObjectInfo, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, key := range keys {
		if _, ok := s.objects[key]; ok {
			delete(s.objects, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", s.bucket, key, s.now().Add(expiry).Unix()), nil
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
