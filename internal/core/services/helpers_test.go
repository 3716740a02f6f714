package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adapter-persistence-service/internal/adapters/secondary/memory"
	"adapter-persistence-service/internal/archive"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
	"adapter-persistence-service/internal/testutil"
)

var testNS = domain.NewNamespace("user-1", "avatar-1")

type fixture struct {
	store    *memory.Store
	workDir  string
	backups  *BackupService
	metadata *MetadataService
	catalog  *TrainingDataService
	adapters *AdapterService
	trainer  *testutil.MockTrainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStore("test-bucket")
	return newFixtureWithStore(t, mem, mem)
}

// newFixtureWithStore wires the services over store; mem is the memory store
// underneath it, used for direct inspection.
func newFixtureWithStore(t *testing.T, mem *memory.Store, store ports.BlobStore) *fixture {
	t.Helper()
	f := &fixture{store: mem, workDir: t.TempDir(), trainer: new(testutil.MockTrainer)}
	f.backups = NewBackupService(store, f.workDir)
	f.metadata = NewMetadataService(store, 3)
	f.metadata.backoff = time.Millisecond
	f.catalog = NewTrainingDataService(store, f.metadata, f.backups, TrainingDataOptions{
		WorkDir:            f.workDir,
		PresignExpiry:      time.Minute,
		StagingConcurrency: 2,
	})
	f.adapters = NewAdapterService(store, f.backups, f.catalog, f.trainer, AdapterOptions{
		BaseModel: "base-model",
		WorkDir:   f.workDir,
	})
	return f
}

func (f *fixture) upload(t *testing.T, name, content string, use bool) {
	t.Helper()
	res, err := f.catalog.Upload(context.Background(), testNS, name, strings.NewReader(content), int64(len(content)), "text/plain", use)
	require.NoError(t, err)
	require.True(t, res.FlagPersisted)
}

// unpackAdapter downloads the stored adapter archive into a fresh directory.
func (f *fixture) unpackAdapter(t *testing.T) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "adapter.zip")
	require.NoError(t, f.store.GetFile(context.Background(), testNS.AdapterArchiveKey(), tmp))
	dir := t.TempDir()
	_, err := archive.Unzip(context.Background(), tmp, dir)
	require.NoError(t, err)
	return dir
}

// requireEmptyDir fails when operations left temp files behind.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFiles(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(raw)
		return nil
	})
	require.NoError(t, err)
	return out
}

// flakyStore fails writes to one key and otherwise behaves like the memory store.
type flakyStore struct {
	*memory.Store
	failKey string
	err     error
}

func (s *flakyStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts ports.PutOptions) (*ports.ObjectInfo, error) {
	if key == s.failKey {
		return nil, s.err
	}
	return s.Store.Put(ctx, key, body, size, opts)
}
