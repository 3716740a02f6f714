package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"adapter-persistence-service/internal/archive"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

const (
	contentTypeZip  = "application/zip"
	contentTypeJSON = "application/json"
)

// BackupService packs local directories into archives in the blob store and
// unpacks them again. Every archive gets a backup_metadata.json sidecar.
type BackupService struct {
	store   ports.BlobStore
	workDir string
	now     func() time.Time
}

func NewBackupService(store ports.BlobStore, workDir string) *BackupService {
	return &BackupService{store: store, workDir: workDir, now: time.Now}
}

// Backup zips sourceDir, uploads it to the target's archive key and writes
// the sidecar descriptor. The local archive is removed on every path.
func (s *BackupService) Backup(ctx context.Context, sourceDir string, target domain.BackupTarget) (*domain.BackupDescriptor, error) {
	st, err := os.Stat(sourceDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.WrapOp("backup", target.Namespace, fmt.Errorf("%w: %s", domain.ErrLocalPathNotFound, sourceDir))
	}
	if err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, err)
	}
	if !st.IsDir() {
		return nil, domain.WrapOp("backup", target.Namespace, fmt.Errorf("%w: %s is not a directory", domain.ErrValidation, sourceDir))
	}

	tmp, err := os.CreateTemp(s.workDir, "backup-*.zip")
	if err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, fmt.Errorf("create temp archive: %w", err))
	}
	defer os.Remove(tmp.Name())

	count, err := archive.Zip(ctx, sourceDir, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, err)
	}

	info, err := s.store.PutFile(ctx, target.ArchiveKey(), tmp.Name(), ports.PutOptions{ContentType: contentTypeZip})
	if err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, err)
	}

	size := info.Size
	if size <= 0 {
		if fi, err := os.Stat(tmp.Name()); err == nil {
			size = fi.Size()
		}
	}

	desc := &domain.BackupDescriptor{
		BackupType:      target.Type,
		UserID:          target.Namespace.UserID,
		AvatarID:        target.Namespace.AvatarID,
		BackupTimestamp: s.now().UTC(),
		FileCount:       count,
		BackupSizeBytes: size,
	}
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, err)
	}
	if _, err := s.store.Put(ctx, target.DescriptorKey(), bytes.NewReader(raw), int64(len(raw)), ports.PutOptions{ContentType: contentTypeJSON}); err != nil {
		return nil, domain.WrapOp("backup", target.Namespace, err)
	}

	log.WithFields(log.Fields{
		"user_id":     target.Namespace.UserID,
		"avatar_id":   target.Namespace.AvatarID,
		"backup_type": target.Type,
		"file_count":  count,
		"size_bytes":  size,
	}).Info("Backup written")
	return desc, nil
}

// Restore extracts the target's archive into destDir, creating it when
// needed. A missing archive is ErrBackupNotFound; any other probe failure is
// returned unchanged.
func (s *BackupService) Restore(ctx context.Context, target domain.BackupTarget, destDir string) (int, error) {
	if _, err := s.store.Stat(ctx, target.ArchiveKey()); err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return 0, domain.WrapOp("restore", target.Namespace, domain.ErrBackupNotFound)
		}
		return 0, domain.WrapOp("restore", target.Namespace, err)
	}

	tmp, err := os.CreateTemp(s.workDir, "restore-*.zip")
	if err != nil {
		return 0, domain.WrapOp("restore", target.Namespace, fmt.Errorf("create temp archive: %w", err))
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.store.GetFile(ctx, target.ArchiveKey(), tmp.Name()); err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			err = domain.ErrBackupNotFound
		}
		return 0, domain.WrapOp("restore", target.Namespace, err)
	}

	count, err := archive.Unzip(ctx, tmp.Name(), destDir)
	if errors.Is(err, archive.ErrUnsafePath) {
		return count, domain.WrapOp("restore", target.Namespace, fmt.Errorf("%w: %v", domain.ErrUnsafeArchivePath, err))
	}
	if err != nil {
		return count, domain.WrapOp("restore", target.Namespace, err)
	}

	log.WithFields(log.Fields{
		"user_id":     target.Namespace.UserID,
		"avatar_id":   target.Namespace.AvatarID,
		"backup_type": target.Type,
		"file_count":  count,
	}).Info("Backup restored")
	return count, nil
}

// Descriptor reads the sidecar. A missing or unparsable sidecar yields nil
// without error; transport failures are returned.
func (s *BackupService) Descriptor(ctx context.Context, target domain.BackupTarget) (*domain.BackupDescriptor, error) {
	rc, _, err := s.store.Get(ctx, target.DescriptorKey())
	if errors.Is(err, domain.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapOp("read backup descriptor", target.Namespace, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.WrapOp("read backup descriptor", target.Namespace, fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}
	var desc domain.BackupDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		log.WithError(err).WithField("key", target.DescriptorKey()).Warn("Ignoring corrupt backup descriptor")
		return nil, nil
	}
	return &desc, nil
}

// List reports both archives of ns that exist.
func (s *BackupService) List(ctx context.Context, ns domain.Namespace) ([]domain.BackupInfo, error) {
	out := make([]domain.BackupInfo, 0, 2)
	for _, target := range []domain.BackupTarget{ns.AdapterBackup(), ns.TrainingDataBackup()} {
		info, err := s.store.Stat(ctx, target.ArchiveKey())
		if errors.Is(err, domain.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, domain.WrapOp("list backups", ns, err)
		}
		desc, err := s.Descriptor(ctx, target)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BackupInfo{
			Type:         target.Type,
			Key:          target.ArchiveKey(),
			Size:         info.Size,
			LastModified: info.LastModified,
			Descriptor:   desc,
		})
	}
	return out, nil
}

// Delete removes an archive and its sidecar.
func (s *BackupService) Delete(ctx context.Context, target domain.BackupTarget) error {
	if _, err := s.store.Stat(ctx, target.ArchiveKey()); err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return domain.WrapOp("delete backup", target.Namespace, domain.ErrBackupNotFound)
		}
		return domain.WrapOp("delete backup", target.Namespace, err)
	}
	if _, err := s.store.DeleteMany(ctx, []string{target.ArchiveKey(), target.DescriptorKey()}); err != nil {
		return domain.WrapOp("delete backup", target.Namespace, err)
	}
	log.WithFields(log.Fields{
		"user_id":     target.Namespace.UserID,
		"avatar_id":   target.Namespace.AvatarID,
		"backup_type": target.Type,
	}).Info("Backup deleted")
	return nil
}

// Status probes the bucket and both archive keys of ns.
func (s *BackupService) Status(ctx context.Context, ns domain.Namespace) (*domain.PersistenceStatus, error) {
	status := &domain.PersistenceStatus{
		Bucket:                 s.store.Bucket(),
		AdapterBackupPath:      s.URI(ns.AdapterArchiveKey()),
		TrainingDataBackupPath: s.URI(ns.TrainingDataBackup().ArchiveKey()),
	}
	if err := s.store.Ping(ctx); err != nil {
		log.WithError(err).Warn("Blob store unreachable")
		return status, nil
	}
	status.Connected = true

	var err error
	if status.AdapterBackupExists, err = s.exists(ctx, ns.AdapterArchiveKey()); err != nil {
		return nil, domain.WrapOp("status", ns, err)
	}
	if status.TrainingDataBackupExists, err = s.exists(ctx, ns.TrainingDataBackup().ArchiveKey()); err != nil {
		return nil, domain.WrapOp("status", ns, err)
	}
	return status, nil
}

// URI renders key as an s3:// location in the configured bucket.
func (s *BackupService) URI(key string) string {
	return "s3://" + s.store.Bucket() + "/" + key
}

func (s *BackupService) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.store.Stat(ctx, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
