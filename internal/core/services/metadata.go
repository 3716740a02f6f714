package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

const (
	defaultMetadataRetries = 5
	metadataBackoffBase    = 25 * time.Millisecond
	metadataBackoffMax     = time.Second
)

// MetadataService owns metadata.json, the filename -> use-for-training map.
// Writes are serialized per avatar in-process and conditioned on the ETag
// that was read, so writers in other processes are detected and retried.
type MetadataService struct {
	store      ports.BlobStore
	locks      *keyLock
	maxRetries int
	backoff    time.Duration
}

func NewMetadataService(store ports.BlobStore, maxRetries int) *MetadataService {
	if maxRetries < 1 {
		maxRetries = defaultMetadataRetries
	}
	return &MetadataService{
		store:      store,
		locks:      newKeyLock(),
		maxRetries: maxRetries,
		backoff:    metadataBackoffBase,
	}
}

// Get returns the selection map. A missing or unreadable document is an
// empty map; transport failures are returned.
func (s *MetadataService) Get(ctx context.Context, ns domain.Namespace) (domain.TrainingSelectionMap, error) {
	m, _, err := s.load(ctx, ns)
	if err != nil {
		return nil, domain.WrapOp("get metadata", ns, err)
	}
	return m, nil
}

// SetFlag records one file's flag.
func (s *MetadataService) SetFlag(ctx context.Context, ns domain.Namespace, filename string, useForTraining bool) error {
	return s.SetFlags(ctx, ns, map[string]bool{filename: useForTraining})
}

// SetFlags records several flags in one write.
func (s *MetadataService) SetFlags(ctx context.Context, ns domain.Namespace, flags map[string]bool) error {
	return s.Update(ctx, ns, func(m domain.TrainingSelectionMap) bool {
		changed := false
		for name, use := range flags {
			if cur, ok := m[name]; !ok || cur != use {
				m[name] = use
				changed = true
			}
		}
		return changed
	})
}

// Update applies mutate to the current map and writes the result back when
// mutate reports a change. A concurrent writer causes a re-read and another
// attempt; after maxRetries attempts the result is ErrMetadataConflict.
func (s *MetadataService) Update(ctx context.Context, ns domain.Namespace, mutate func(domain.TrainingSelectionMap) bool) error {
	unlock, err := s.locks.Lock(ctx, metadataLockKey(ns))
	if err != nil {
		return domain.WrapOp("update metadata", ns, err)
	}
	defer unlock()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, s.backoffFor(attempt)); err != nil {
				return domain.WrapOp("update metadata", ns, err)
			}
		}

		m, etag, err := s.load(ctx, ns)
		if err != nil {
			return domain.WrapOp("update metadata", ns, err)
		}
		if !mutate(m) {
			return nil
		}

		raw, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return domain.WrapOp("update metadata", ns, err)
		}
		opts := ports.PutOptions{ContentType: contentTypeJSON, IfMatch: etag}
		if etag == "" {
			// First write loses to anyone who created the document meanwhile.
			opts.IfNoneMatch = "*"
		}
		_, err = s.store.Put(ctx, ns.SelectionMapKey(), bytes.NewReader(raw), int64(len(raw)), opts)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			return domain.WrapOp("update metadata", ns, err)
		}
		log.WithFields(log.Fields{
			"user_id":   ns.UserID,
			"avatar_id": ns.AvatarID,
			"attempt":   attempt + 1,
		}).Debug("Metadata changed underneath us, retrying")
	}
	return domain.WrapOp("update metadata", ns, domain.ErrMetadataConflict)
}

// load reads the map and the ETag it was read at. The ETag is empty when the
// document does not exist yet.
func (s *MetadataService) load(ctx context.Context, ns domain.Namespace) (domain.TrainingSelectionMap, string, error) {
	rc, info, err := s.store.Get(ctx, ns.SelectionMapKey())
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.TrainingSelectionMap{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read metadata: %v", domain.ErrTransport, err)
	}

	m := domain.TrainingSelectionMap{}
	if err := json.Unmarshal(raw, &m); err != nil {
		log.WithError(err).WithField("key", ns.SelectionMapKey()).Warn("Metadata document is unreadable, treating as empty")
		m = domain.TrainingSelectionMap{}
	}
	if m == nil {
		m = domain.TrainingSelectionMap{}
	}
	return m, info.ETag, nil
}

func (s *MetadataService) backoffFor(attempt int) time.Duration {
	if s.backoff <= 0 {
		return 0
	}
	d := s.backoff << (attempt - 1)
	if d <= 0 || d > metadataBackoffMax {
		d = metadataBackoffMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
