package services

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

const uploadTimestampMeta = "upload-timestamp"

type TrainingDataOptions struct {
	WorkDir            string
	PresignExpiry      time.Duration
	StagingConcurrency int
}

// TrainingDataService is the catalog of uploaded training files and their
// selection flags.
type TrainingDataService struct {
	store    ports.BlobStore
	metadata *MetadataService
	backups  *BackupService
	opts     TrainingDataOptions
	now      func() time.Time
}

func NewTrainingDataService(store ports.BlobStore, metadata *MetadataService, backups *BackupService, opts TrainingDataOptions) *TrainingDataService {
	if opts.StagingConcurrency < 1 {
		opts.StagingConcurrency = 1
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = 15 * time.Minute
	}
	return &TrainingDataService{store: store, metadata: metadata, backups: backups, opts: opts, now: time.Now}
}

// List returns the uploaded files matching filter, sorted by filename.
func (s *TrainingDataService) List(ctx context.Context, ns domain.Namespace, filter domain.SelectionFilter) ([]domain.TrainingDataFile, error) {
	objects, err := s.store.List(ctx, ns.TrainingDataPrefix())
	if err != nil {
		return nil, domain.WrapOp("list training data", ns, err)
	}
	flags, err := s.metadata.Get(ctx, ns)
	if err != nil {
		return nil, err
	}

	prefix := ns.TrainingDataPrefix()
	files := make([]domain.TrainingDataFile, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if domain.ValidateFilename(name) != nil {
			// Placeholders, archives and nested keys written by other tools.
			continue
		}
		use := flags.UseForTraining(name)
		if !filter.Matches(use) {
			continue
		}
		files = append(files, domain.TrainingDataFile{
			Filename:       name,
			Key:            obj.Key,
			Size:           obj.Size,
			ContentType:    obj.ContentType,
			UploadedAt:     uploadedAt(obj),
			UserID:         ns.UserID,
			AvatarID:       ns.AvatarID,
			UseForTraining: use,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// SelectedFilenames lists the files the next training run will use.
func (s *TrainingDataService) SelectedFilenames(ctx context.Context, ns domain.Namespace) ([]string, error) {
	files, err := s.List(ctx, ns, domain.SelectTrainingOnly)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return names, nil
}

// Upload stores a file and then records its flag. A failed flag write is
// logged and reported through FlagPersisted; the stored file then trains by
// default.
func (s *TrainingDataService) Upload(ctx context.Context, ns domain.Namespace, filename string, body io.Reader, size int64, contentType string, useForTraining bool) (*domain.UploadResult, error) {
	if err := domain.ValidateFilename(filename); err != nil {
		return nil, domain.WrapOp("upload training file", ns, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadedAt := s.now().UTC()
	info, err := s.store.Put(ctx, ns.TrainingFileKey(filename), body, size, ports.PutOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			uploadTimestampMeta: uploadedAt.Format(time.RFC3339),
			"user-id":           ns.UserID,
			"avatar-id":         ns.AvatarID,
		},
	})
	if err != nil {
		return nil, domain.WrapOp("upload training file", ns, err)
	}

	result := &domain.UploadResult{
		File: domain.TrainingDataFile{
			Filename:       filename,
			Key:            ns.TrainingFileKey(filename),
			Size:           info.Size,
			ContentType:    contentType,
			UploadedAt:     uploadedAt,
			UserID:         ns.UserID,
			AvatarID:       ns.AvatarID,
			UseForTraining: useForTraining,
		},
		FlagPersisted: true,
	}

	if err := s.metadata.SetFlag(ctx, ns, filename, useForTraining); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":   ns.UserID,
			"avatar_id": ns.AvatarID,
			"filename":  filename,
		}).Warn("Training flag not saved; file will train by default")
		result.FlagPersisted = false
		result.File.UseForTraining = true
	}
	return result, nil
}

// SetFlag changes the flag of an existing file.
func (s *TrainingDataService) SetFlag(ctx context.Context, ns domain.Namespace, filename string, useForTraining bool) error {
	if err := s.requireFile(ctx, ns, "set training flag", filename); err != nil {
		return err
	}
	return s.metadata.SetFlag(ctx, ns, filename, useForTraining)
}

// Metadata returns the raw selection map with its summary.
func (s *TrainingDataService) Metadata(ctx context.Context, ns domain.Namespace) (domain.TrainingSelectionMap, domain.SelectionSummary, error) {
	m, err := s.metadata.Get(ctx, ns)
	if err != nil {
		return nil, domain.SelectionSummary{}, err
	}
	return m, m.Summary(), nil
}

// PresignDownload returns a time-limited URL for one file.
func (s *TrainingDataService) PresignDownload(ctx context.Context, ns domain.Namespace, filename string) (string, time.Duration, error) {
	if err := domain.ValidateFilename(filename); err != nil {
		return "", 0, domain.WrapOp("presign training file", ns, err)
	}
	url, err := s.store.PresignGet(ctx, ns.TrainingFileKey(filename), s.opts.PresignExpiry)
	if errors.Is(err, domain.ErrObjectNotFound) {
		err = domain.ErrTrainingFileNotFound
	}
	if err != nil {
		return "", 0, domain.WrapOp("presign training file", ns, err)
	}
	return url, s.opts.PresignExpiry, nil
}

// DeleteOne removes a file. Its metadata entry is left in place.
func (s *TrainingDataService) DeleteOne(ctx context.Context, ns domain.Namespace, filename string) error {
	if err := s.requireFile(ctx, ns, "delete training file", filename); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ns.TrainingFileKey(filename)); err != nil {
		return domain.WrapOp("delete training file", ns, err)
	}
	log.WithFields(log.Fields{"user_id": ns.UserID, "avatar_id": ns.AvatarID, "filename": filename}).Info("Training file deleted")
	return nil
}

// DeleteExcluded removes every file flagged out of training. Metadata
// entries are left in place.
func (s *TrainingDataService) DeleteExcluded(ctx context.Context, ns domain.Namespace) (*domain.DeleteResult, error) {
	files, err := s.List(ctx, ns, domain.SelectExcludedOnly)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &domain.DeleteResult{}, nil
	}

	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.Key
	}
	n, err := s.store.DeleteMany(ctx, keys)
	if err != nil {
		return nil, domain.WrapOp("delete excluded training files", ns, err)
	}
	log.WithFields(log.Fields{"user_id": ns.UserID, "avatar_id": ns.AvatarID, "deleted": n}).Info("Excluded training files deleted")
	return &domain.DeleteResult{DeletedCount: n}, nil
}

// Backup snapshots every uploaded file into the training-data archive.
func (s *TrainingDataService) Backup(ctx context.Context, ns domain.Namespace) (*domain.BackupDescriptor, error) {
	files, err := s.List(ctx, ns, domain.SelectAll)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.opts.WorkDir, "training-backup-*")
	if err != nil {
		return nil, domain.WrapOp("backup training data", ns, err)
	}
	defer os.RemoveAll(dir)

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	if _, err := s.Stage(ctx, ns, names, dir); err != nil {
		return nil, err
	}
	return s.backups.Backup(ctx, dir, ns.TrainingDataBackup())
}

// Restore re-uploads every file in the training-data archive. Files without
// a metadata entry are flagged for training; existing flags are kept.
func (s *TrainingDataService) Restore(ctx context.Context, ns domain.Namespace) (int, error) {
	dir, err := os.MkdirTemp(s.opts.WorkDir, "training-restore-*")
	if err != nil {
		return 0, domain.WrapOp("restore training data", ns, err)
	}
	defer os.RemoveAll(dir)

	if _, err := s.backups.Restore(ctx, ns.TrainingDataBackup(), dir); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, domain.WrapOp("restore training data", ns, err)
	}

	var mu sync.Mutex
	restored := make([]string, 0, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.StagingConcurrency)
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || domain.ValidateFilename(name) != nil {
			log.WithField("entry", name).Warn("Skipping archive entry that is not a training file")
			continue
		}
		g.Go(func() error {
			_, err := s.store.PutFile(gctx, ns.TrainingFileKey(name), filepath.Join(dir, name), ports.PutOptions{
				ContentType:  contentTypeFor(name),
				UserMetadata: map[string]string{uploadTimestampMeta: s.now().UTC().Format(time.RFC3339)},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			restored = append(restored, name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, domain.WrapOp("restore training data", ns, err)
	}

	err = s.metadata.Update(ctx, ns, func(m domain.TrainingSelectionMap) bool {
		changed := false
		for _, name := range restored {
			if _, ok := m[name]; !ok {
				m[name] = true
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		return len(restored), err
	}
	return len(restored), nil
}

// Stage downloads the named files into dir in parallel. Files that vanished
// since they were listed are skipped. It returns the staged names, sorted.
func (s *TrainingDataService) Stage(ctx context.Context, ns domain.Namespace, names []string, dir string) ([]string, error) {
	var mu sync.Mutex
	staged := make([]string, 0, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.StagingConcurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			err := s.store.GetFile(gctx, ns.TrainingFileKey(name), filepath.Join(dir, name))
			if errors.Is(err, domain.ErrObjectNotFound) {
				log.WithField("filename", name).Warn("Training file disappeared before staging")
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			staged = append(staged, name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.WrapOp("stage training data", ns, err)
	}
	sort.Strings(staged)
	return staged, nil
}

func (s *TrainingDataService) requireFile(ctx context.Context, ns domain.Namespace, op, filename string) error {
	if err := domain.ValidateFilename(filename); err != nil {
		return domain.WrapOp(op, ns, err)
	}
	if _, err := s.store.Stat(ctx, ns.TrainingFileKey(filename)); err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return domain.WrapOp(op, ns, domain.ErrTrainingFileNotFound)
		}
		return domain.WrapOp(op, ns, err)
	}
	return nil
}

// contentTypeFor guesses a restored file's type from its extension; the
// archive does not record the type given at upload.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func uploadedAt(obj ports.ObjectInfo) time.Time {
	for k, v := range obj.UserMetadata {
		if strings.EqualFold(k, uploadTimestampMeta) {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	return obj.LastModified
}
