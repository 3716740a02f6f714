package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"adapter-persistence-service/internal/archive"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
	"adapter-persistence-service/internal/safetensors"
)

type AdapterOptions struct {
	BaseModel string
	WorkDir   string
}

// AdapterService manages the lifecycle of the one adapter artifact each
// avatar owns. Create, Train and Delete are serialized per avatar.
type AdapterService struct {
	store    ports.BlobStore
	backups  *BackupService
	catalog  *TrainingDataService
	trainer  ports.Trainer
	locks    *keyLock
	opts     AdapterOptions
	now      func() time.Time
	newRunID func() uuid.UUID
}

func NewAdapterService(store ports.BlobStore, backups *BackupService, catalog *TrainingDataService, trainer ports.Trainer, opts AdapterOptions) *AdapterService {
	return &AdapterService{
		store:    store,
		backups:  backups,
		catalog:  catalog,
		trainer:  trainer,
		locks:    newKeyLock(),
		opts:     opts,
		now:      time.Now,
		newRunID: uuid.New,
	}
}

// Exists probes the adapter archive. Only a missing object reads as false.
func (s *AdapterService) Exists(ctx context.Context, ns domain.Namespace) (bool, error) {
	_, err := s.store.Stat(ctx, ns.AdapterArchiveKey())
	if errors.Is(err, domain.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapOp("check adapter", ns, err)
	}
	return true, nil
}

// Create writes an untrained adapter unless one already exists.
func (s *AdapterService) Create(ctx context.Context, ns domain.Namespace, name string) (*domain.CreateResult, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, adapterLockKey(ns))
	if err != nil {
		return nil, domain.WrapOp("create adapter", ns, err)
	}
	defer unlock()

	return s.create(ctx, ns, name)
}

// create assumes the avatar lock is held.
func (s *AdapterService) create(ctx context.Context, ns domain.Namespace, name string) (*domain.CreateResult, error) {
	path := s.backups.URI(ns.AdapterArchiveKey())

	exists, err := s.Exists(ctx, ns)
	if err != nil {
		return nil, err
	}
	if exists {
		desc, err := s.backups.Descriptor(ctx, ns.AdapterBackup())
		if err != nil {
			return nil, err
		}
		return &domain.CreateResult{Status: domain.CreateStatusExisting, Path: path, Descriptor: desc}, nil
	}

	if name == "" {
		name = domain.DefaultAdapterName
	}

	dir, err := os.MkdirTemp(s.opts.WorkDir, "adapter-create-*")
	if err != nil {
		return nil, domain.WrapOp("create adapter", ns, err)
	}
	defer os.RemoveAll(dir)

	if err := s.writeInitialAdapter(dir, ns, name); err != nil {
		return nil, domain.WrapOp("create adapter", ns, err)
	}
	desc, err := s.backups.Backup(ctx, dir, ns.AdapterBackup())
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user_id": ns.UserID, "avatar_id": ns.AvatarID, "adapter_name": name}).Info("Adapter created")
	return &domain.CreateResult{Status: domain.CreateStatusCreated, Path: path, Descriptor: desc}, nil
}

func (s *AdapterService) writeInitialAdapter(dir string, ns domain.Namespace, name string) error {
	if err := writeJSON(filepath.Join(dir, domain.AdapterConfigFile), domain.DefaultLoRAConfig(s.opts.BaseModel)); err != nil {
		return err
	}

	weights := filepath.Join(dir, domain.AdapterWeightsFile)
	if err := safetensors.WritePlaceholder(weights); err != nil {
		return err
	}
	if _, err := safetensors.Validate(weights); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidWeights, err)
	}

	return writeJSON(filepath.Join(dir, domain.AdapterManifestFile), &domain.AdapterManifest{
		AdapterName:     name,
		UserID:          ns.UserID,
		AvatarID:        ns.AvatarID,
		CreatedAt:       s.now().UTC(),
		Version:         domain.InitialAdapterVersion,
		Status:          domain.AdapterStatusUntrained,
		TrainingHistory: []domain.TrainingRun{},
	})
}

// Retrieve creates the adapter when absent and opens its archive.
func (s *AdapterService) Retrieve(ctx context.Context, ns domain.Namespace) (*domain.AdapterDownload, error) {
	created, err := s.Create(ctx, ns, domain.DefaultAdapterName)
	if err != nil {
		return nil, err
	}

	rc, info, err := s.store.Get(ctx, ns.AdapterArchiveKey())
	if errors.Is(err, domain.ErrObjectNotFound) {
		err = domain.ErrAdapterNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("retrieve adapter", ns, err)
	}

	desc := created.Descriptor
	if desc == nil {
		if desc, err = s.backups.Descriptor(ctx, ns.AdapterBackup()); err != nil {
			rc.Close()
			return nil, err
		}
	}

	return &domain.AdapterDownload{
		Archive:    rc,
		Size:       info.Size,
		Descriptor: desc,
		Created:    created.Status == domain.CreateStatusCreated,
	}, nil
}

// Info reports the descriptor and manifest without creating anything.
func (s *AdapterService) Info(ctx context.Context, ns domain.Namespace) (*domain.AdapterInfo, error) {
	exists, err := s.Exists(ctx, ns)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &domain.AdapterInfo{Found: false}, nil
	}

	desc, err := s.backups.Descriptor(ctx, ns.AdapterBackup())
	if err != nil {
		return nil, err
	}
	manifest, err := s.readStoredManifest(ctx, ns)
	if err != nil {
		return nil, err
	}
	return &domain.AdapterInfo{
		Found:      true,
		Artifact:   domain.NewAdapterArtifact(manifest, desc),
		Descriptor: desc,
		Manifest:   manifest,
	}, nil
}

func (s *AdapterService) readStoredManifest(ctx context.Context, ns domain.Namespace) (*domain.AdapterManifest, error) {
	tmp, err := os.CreateTemp(s.opts.WorkDir, "adapter-info-*.zip")
	if err != nil {
		return nil, domain.WrapOp("adapter info", ns, err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.store.GetFile(ctx, ns.AdapterArchiveKey(), tmp.Name()); err != nil {
		return nil, domain.WrapOp("adapter info", ns, err)
	}
	raw, err := archive.ReadFile(tmp.Name(), domain.AdapterManifestFile)
	if err != nil {
		log.WithError(err).WithField("avatar_id", ns.AvatarID).Warn("Adapter archive has no readable manifest")
		return nil, nil
	}
	var m domain.AdapterManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		log.WithError(err).WithField("avatar_id", ns.AvatarID).Warn("Adapter manifest is corrupt")
		return nil, nil
	}
	return &m, nil
}

// Delete removes every object under the adapter prefix, training data and
// metadata included.
func (s *AdapterService) Delete(ctx context.Context, ns domain.Namespace) (*domain.DeleteResult, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	unlock, err := s.locks.Lock(ctx, adapterLockKey(ns))
	if err != nil {
		return nil, domain.WrapOp("delete adapter", ns, err)
	}
	defer unlock()

	objects, err := s.store.List(ctx, ns.AdapterPrefix())
	if err != nil {
		return nil, domain.WrapOp("delete adapter", ns, err)
	}
	if len(objects) == 0 {
		return nil, domain.WrapOp("delete adapter", ns, domain.ErrAdapterNotFound)
	}

	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	n, err := s.store.DeleteMany(ctx, keys)
	if err != nil {
		return nil, domain.WrapOp("delete adapter", ns, err)
	}

	log.WithFields(log.Fields{"user_id": ns.UserID, "avatar_id": ns.AvatarID, "deleted": n}).Info("Adapter deleted")
	return &domain.DeleteResult{DeletedCount: n}, nil
}

// Train stages the selected files, runs the trainer over the current adapter
// and stores the result. The trainer runs even when no file is selected. A
// failed run leaves the stored adapter untouched.
func (s *AdapterService) Train(ctx context.Context, ns domain.Namespace, params domain.TrainingParams) (*domain.TrainingResult, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	params = params.WithDefaults()

	unlock, err := s.locks.Lock(ctx, adapterLockKey(ns))
	if err != nil {
		return nil, domain.WrapOp("train adapter", ns, err)
	}
	defer unlock()

	selected, err := s.catalog.SelectedFilenames(ctx, ns)
	if err != nil {
		return nil, err
	}

	work, err := os.MkdirTemp(s.opts.WorkDir, "adapter-train-*")
	if err != nil {
		return nil, domain.WrapOp("train adapter", ns, err)
	}
	defer os.RemoveAll(work)

	adapterDir := filepath.Join(work, "adapter")
	dataDir := filepath.Join(work, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, domain.WrapOp("train adapter", ns, err)
	}

	if err := s.restoreOrCreate(ctx, ns, adapterDir); err != nil {
		return nil, err
	}
	manifest := s.loadManifest(adapterDir, ns)

	used, err := s.catalog.Stage(ctx, ns, selected, dataDir)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"user_id": ns.UserID, "avatar_id": ns.AvatarID, "files": len(used)})
	logger.Info("Training adapter")

	outcome, err := s.trainer.Train(ctx, ports.TrainingJob{
		DataDir:    dataDir,
		AdapterDir: adapterDir,
		Params:     params,
		BaseModel:  s.opts.BaseModel,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.WrapOp("train adapter", ns, ctxErr)
		}
		return nil, domain.WrapOp("train adapter", ns, fmt.Errorf("%w: %v", domain.ErrTrainingFailed, err))
	}
	if !outcome.Success {
		logger.WithField("message", outcome.Message).Warn("Training run failed")
		return nil, domain.WrapOp("train adapter", ns, fmt.Errorf("%w: %s", domain.ErrTrainingFailed, outcome.Message))
	}

	if _, err := safetensors.Validate(filepath.Join(adapterDir, domain.AdapterWeightsFile)); err != nil {
		return nil, domain.WrapOp("train adapter", ns, fmt.Errorf("%w: %v", domain.ErrInvalidWeights, err))
	}

	now := s.now().UTC()
	run := domain.TrainingRun{
		RunID:          s.newRunID(),
		Timestamp:      now,
		FilesUsed:      used,
		TrainingParams: params,
		Success:        true,
		Message:        outcome.Message,
	}
	manifest.TrainingHistory = append(manifest.TrainingHistory, run)
	if len(used) > 0 {
		manifest.Status = domain.AdapterStatusTrained
		manifest.LastTrained = &now
	}
	if err := writeJSON(filepath.Join(adapterDir, domain.AdapterManifestFile), manifest); err != nil {
		return nil, domain.WrapOp("train adapter", ns, err)
	}

	desc, err := s.backups.Backup(ctx, adapterDir, ns.AdapterBackup())
	if err != nil {
		return nil, err
	}

	logger.WithField("status", manifest.Status).Info("Adapter trained")
	return &domain.TrainingResult{
		RunID:      run.RunID,
		Status:     manifest.Status,
		FilesUsed:  used,
		Message:    outcome.Message,
		Metrics:    outcome.Metrics,
		Descriptor: desc,
	}, nil
}

// restoreOrCreate fills dir with the stored adapter, creating it first when
// the avatar has none. The avatar lock must be held.
func (s *AdapterService) restoreOrCreate(ctx context.Context, ns domain.Namespace, dir string) error {
	_, err := s.backups.Restore(ctx, ns.AdapterBackup(), dir)
	if !errors.Is(err, domain.ErrBackupNotFound) {
		return err
	}
	if _, err := s.create(ctx, ns, domain.DefaultAdapterName); err != nil {
		return err
	}
	_, err = s.backups.Restore(ctx, ns.AdapterBackup(), dir)
	return err
}

// loadManifest reads the manifest from an unpacked adapter, starting a fresh
// one when it is missing or corrupt.
func (s *AdapterService) loadManifest(dir string, ns domain.Namespace) *domain.AdapterManifest {
	raw, err := os.ReadFile(filepath.Join(dir, domain.AdapterManifestFile))
	if err == nil {
		var m domain.AdapterManifest
		if err = json.Unmarshal(raw, &m); err == nil {
			if m.TrainingHistory == nil {
				m.TrainingHistory = []domain.TrainingRun{}
			}
			return &m
		}
	}
	log.WithError(err).WithField("avatar_id", ns.AvatarID).Warn("Adapter manifest unreadable, starting a new one")
	return &domain.AdapterManifest{
		AdapterName:     domain.DefaultAdapterName,
		UserID:          ns.UserID,
		AvatarID:        ns.AvatarID,
		CreatedAt:       s.now().UTC(),
		Version:         domain.InitialAdapterVersion,
		Status:          domain.AdapterStatusUntrained,
		TrainingHistory: []domain.TrainingRun{},
	}
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
