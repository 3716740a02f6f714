package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapter-persistence-service/internal/adapters/secondary/memory"
	"adapter-persistence-service/internal/core/domain"
	ports "adapter-persistence-service/internal/core/ports/output"
)

func filenames(files []domain.TrainingDataFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out
}

func TestTrainingDataService_NotesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// upload without ever touching the flag
	_, err := f.store.Put(ctx, testNS.TrainingFileKey("notes.txt"), strings.NewReader("hello"), 5, ports.PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	all, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "notes.txt", all[0].Filename)
	assert.True(t, all[0].UseForTraining)
	assert.Equal(t, int64(5), all[0].Size)
	assert.Equal(t, "user-1", all[0].UserID)

	require.NoError(t, f.catalog.SetFlag(ctx, testNS, "notes.txt", false))

	training, err := f.catalog.List(ctx, testNS, domain.SelectTrainingOnly)
	require.NoError(t, err)
	assert.Empty(t, training)

	excluded, err := f.catalog.List(ctx, testNS, domain.SelectExcludedOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, filenames(excluded))
}

func TestTrainingDataService_UploadExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "keep.txt", "k", true)
	f.upload(t, "skip.txt", "s", false)

	training, err := f.catalog.List(ctx, testNS, domain.SelectTrainingOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, filenames(training))

	excluded, err := f.catalog.List(ctx, testNS, domain.SelectExcludedOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"skip.txt"}, filenames(excluded))

	selected, err := f.catalog.SelectedFilenames(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, selected)
}

func TestTrainingDataService_List_SkipsPlaceholdersAndArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range []string{
		testNS.TrainingDataPrefix(),
		testNS.TrainingDataPrefix() + "folder/",
		testNS.TrainingDataPrefix() + "sub/nested.txt",
		testNS.TrainingDataBackup().ArchiveKey(),
		testNS.TrainingDataBackup().DescriptorKey(),
	} {
		_, err := f.store.Put(ctx, key, strings.NewReader(""), 0, ports.PutOptions{})
		require.NoError(t, err)
	}
	f.upload(t, "b.txt", "b", true)
	f.upload(t, "a.txt", "a", true)

	all, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, filenames(all))
}

func TestContentTypeFor(t *testing.T) {
	assert.True(t, strings.HasPrefix(contentTypeFor("notes.txt"), "text/plain"))
	assert.Equal(t, "application/json", contentTypeFor("data.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob.unknownext"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("README"))
}

func TestTrainingDataService_Upload_InvalidFilename(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", "..", "a/b.txt", `a\b.txt`, domain.TrainingDataArchiveName, domain.BackupDescriptorName} {
		_, err := f.catalog.Upload(context.Background(), testNS, name, strings.NewReader("x"), 1, "", true)
		assert.ErrorIs(t, err, domain.ErrInvalidFilename, name)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}
	assert.Zero(t, f.store.Len())
}

func TestTrainingDataService_Upload_FlagWriteFails(t *testing.T) {
	mem := memory.NewStore("test-bucket")
	store := &flakyStore{Store: mem, failKey: testNS.SelectionMapKey(), err: fmt.Errorf("%w: throttled", domain.ErrTransport)}
	f := newFixtureWithStore(t, mem, store)
	ctx := context.Background()

	res, err := f.catalog.Upload(ctx, testNS, "a.txt", strings.NewReader("a"), 1, "text/plain", false)
	require.NoError(t, err)
	assert.False(t, res.FlagPersisted)
	assert.True(t, res.File.UseForTraining)

	all, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].UseForTraining)
}

func TestTrainingDataService_DeleteExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "a.txt", "a", true)
	f.upload(t, "b.txt", "b", false)
	f.upload(t, "c.txt", "c", false)
	f.upload(t, "d.txt", "d", true)

	before, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	excluded, err := f.catalog.List(ctx, testNS, domain.SelectExcludedOnly)
	require.NoError(t, err)

	res, err := f.catalog.DeleteExcluded(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, len(excluded), res.DeletedCount)

	after, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	assert.Len(t, after, len(before)-len(excluded))
	assert.Equal(t, []string{"a.txt", "d.txt"}, filenames(after))

	m, err := f.metadata.Get(ctx, testNS)
	require.NoError(t, err)
	assert.Len(t, m, 4, "metadata entries are left in place")

	res, err = f.catalog.DeleteExcluded(ctx, testNS)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedCount)
}

func TestTrainingDataService_DeleteOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "a.txt", "a", false)
	require.NoError(t, f.catalog.DeleteOne(ctx, testNS, "a.txt"))

	all, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	assert.Empty(t, all)

	m, summary, err := f.catalog.Metadata(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, domain.TrainingSelectionMap{"a.txt": false}, m)
	assert.Equal(t, domain.SelectionSummary{TotalFiles: 1, NonTrainingFiles: 1}, summary)

	err = f.catalog.DeleteOne(ctx, testNS, "a.txt")
	assert.ErrorIs(t, err, domain.ErrTrainingFileNotFound)
}

func TestTrainingDataService_SetFlag_MissingFile(t *testing.T) {
	f := newFixture(t)

	err := f.catalog.SetFlag(context.Background(), testNS, "ghost.txt", false)
	assert.ErrorIs(t, err, domain.ErrTrainingFileNotFound)
	assert.Zero(t, f.store.Len())
}

func TestTrainingDataService_PresignDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, "a.txt", "a", true)

	url, expiry, err := f.catalog.PresignDownload(ctx, testNS, "a.txt")
	require.NoError(t, err)
	assert.Contains(t, url, testNS.TrainingFileKey("a.txt"))
	assert.Equal(t, f.catalog.opts.PresignExpiry, expiry)

	_, _, err = f.catalog.PresignDownload(ctx, testNS, "missing.txt")
	assert.ErrorIs(t, err, domain.ErrTrainingFileNotFound)
}

func TestTrainingDataService_BackupRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.upload(t, "a.txt", "alpha", true)
	f.upload(t, "b.txt", "beta", false)

	desc, err := f.catalog.Backup(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, domain.BackupTypeTrainingData, desc.BackupType)
	assert.Equal(t, 2, desc.FileCount)

	_, err = f.store.DeleteMany(ctx, []string{testNS.TrainingFileKey("a.txt"), testNS.TrainingFileKey("b.txt"), testNS.SelectionMapKey()})
	require.NoError(t, err)
	require.NoError(t, f.metadata.SetFlag(ctx, testNS, "b.txt", false))

	n, err := f.catalog.Restore(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.catalog.List(ctx, testNS, domain.SelectAll)
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "b.txt"}, filenames(all))
	assert.True(t, all[0].UseForTraining)
	assert.False(t, all[1].UseForTraining, "existing flags survive a restore")
	for _, file := range all {
		assert.True(t, strings.HasPrefix(file.ContentType, "text/plain"), file.ContentType)
	}

	m, err := f.metadata.Get(ctx, testNS)
	require.NoError(t, err)
	assert.Equal(t, domain.TrainingSelectionMap{"a.txt": true, "b.txt": false}, m)
	requireEmptyDir(t, f.workDir)
}

func TestTrainingDataService_Restore_NoBackup(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.Restore(context.Background(), testNS)
	assert.ErrorIs(t, err, domain.ErrBackupNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	requireEmptyDir(t, f.workDir)
}

func TestTrainingDataService_Stage_SkipsVanishedFiles(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.txt", "a", true)

	dir := t.TempDir()
	staged, err := f.catalog.Stage(context.Background(), testNS, []string{"a.txt", "gone.txt"}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, staged)
	assert.Equal(t, map[string]string{"a.txt": "a"}, readFiles(t, dir))
}
