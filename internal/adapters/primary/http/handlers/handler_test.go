package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adapter-persistence-service/internal/adapters/secondary/memory"
	"adapter-persistence-service/internal/adapters/secondary/trainer"
	"adapter-persistence-service/internal/core/domain"
	"adapter-persistence-service/internal/core/services"
)

const base = "/api/v1"

func setupRouter(t *testing.T) (*memory.Store, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore("test-bucket")
	workDir := t.TempDir()
	backups := services.NewBackupService(store, workDir)
	metadata := services.NewMetadataService(store, 3)
	catalog := services.NewTrainingDataService(store, metadata, backups, services.TrainingDataOptions{
		WorkDir:            workDir,
		PresignExpiry:      time.Minute,
		StagingConcurrency: 2,
	})
	adapters := services.NewAdapterService(store, backups, catalog, trainer.NewPlaceholder(), services.AdapterOptions{
		BaseModel: "base-model",
		WorkDir:   workDir,
	})

	h := New(adapters, catalog, backups, "user-1")
	r := gin.New()
	h.RegisterRoutes(r.Group(base))
	return store, r
}

func do(r *gin.Engine, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func uploadFile(t *testing.T, r *gin.Engine, name, content, use string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	path := base + "/training-data/user-1/avatar-1/upload"
	if use != "" {
		path += "?use_for_training=" + use
	}
	return do(r, http.MethodPost, path, buf.Bytes(), mw.FormDataContentType())
}

func TestCreateAdapter(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/create", nil, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "created", resp["status"])
	assert.Equal(t, "avatar-1", resp["avatar_id"])
	assert.NotNil(t, resp["metadata"])

	w = do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/create", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "existing", decode(t, w)["status"])
}

func TestCreateAdapter_OwnerMismatch(t *testing.T) {
	store, r := setupRouter(t)

	w := do(r, http.MethodPost, base+"/adapters/someone-else/avatar-1/create", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, store.Len())
}

func TestGetAdapter(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodGet, base+"/adapters/user-1/avatar-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "adapter_user-1_avatar-1.zip")
	assert.Equal(t, "newly_created", w.Header().Get("X-Adapter-Status"))
	assert.Equal(t, "user-1", w.Header().Get("X-User-ID"))
	assert.Equal(t, "avatar-1", w.Header().Get("X-Avatar-ID"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(w.Header().Get("X-Adapter-Metadata")), &meta))
	assert.Equal(t, "adapters", meta["backup_type"])

	w = do(r, http.MethodGet, base+"/adapters/user-1/avatar-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "existing", w.Header().Get("X-Adapter-Status"))
}

func TestGetAdapterInfo(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodGet, base+"/adapters/user-1/avatar-1/info", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["status"])

	do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/create", nil, "")

	w = do(r, http.MethodGet, base+"/adapters/user-1/avatar-1/info", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "found", resp["status"])
	manifest, ok := resp["manifest"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "untrained", manifest["status"])
	adapter, ok := resp["adapter"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1.0.0", adapter["version"])
	assert.Equal(t, float64(3), adapter["file_count"])
}

func TestDeleteAdapter(t *testing.T) {
	store, r := setupRouter(t)

	w := do(r, http.MethodDelete, base+"/adapters/user-1/avatar-1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/create", nil, "")
	w = do(r, http.MethodDelete, base+"/adapters/user-1/avatar-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["deleted_count"])
	assert.Zero(t, store.Len())
}

func TestTrainAdapter(t *testing.T) {
	_, r := setupRouter(t)

	require.Equal(t, http.StatusCreated, uploadFile(t, r, "a.txt", "alpha", "").Code)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "b.txt", "beta", "false").Code)

	w := do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/train", []byte(`{"num_train_epochs": 1}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "trained", resp["adapter_status"])
	assert.Equal(t, []interface{}{"a.txt"}, resp["files_used"])
	assert.NotEmpty(t, resp["run_id"])
}

func TestTrainAdapter_NoBody(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/train", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "untrained", resp["adapter_status"])
	assert.Equal(t, []interface{}{}, resp["files_used"])
}

func TestTrainAdapter_InvalidParams(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/train", []byte(`{"learning_rate": -1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAndListTrainingFiles(t *testing.T) {
	_, r := setupRouter(t)

	w := uploadFile(t, r, "notes.txt", "hello", "")
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "notes.txt", resp["filename"])
	assert.Equal(t, true, resp["use_for_training"])
	assert.Equal(t, true, resp["flag_persisted"])
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "skip.txt", "s", "false").Code)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"notes.txt", "skip.txt"}},
		{"training only", "?training_only=true", []string{"notes.txt"}},
		{"excluded only", "?training_only=false", []string{"skip.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/list"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode(t, w)
			files := resp["files"].([]interface{})
			var got []string
			for _, f := range files {
				got = append(got, f.(map[string]interface{})["filename"].(string))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, float64(len(tt.want)), resp["count"])
		})
	}
}

func TestUploadTrainingFile_Invalid(t *testing.T) {
	_, r := setupRouter(t)

	w := uploadFile(t, r, "a.txt", "a", "maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, base+"/training-data/user-1/avatar-1/upload", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = uploadFile(t, r, domain.BackupDescriptorName, "{}", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTrainingFiles_BadFilter(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/list?training_only=sometimes", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTrainingFlag(t *testing.T) {
	_, r := setupRouter(t)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "a.txt", "a", "").Code)

	path := base + "/training-data/user-1/avatar-1/files/a.txt/training-flag"

	w := do(r, http.MethodPut, path, []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, path, []byte(`{"use_for_training": false}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["use_for_training"])

	w = do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/metadata", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, map[string]interface{}{"a.txt": false}, resp["metadata"])
	assert.Equal(t, float64(1), resp["non_training_files"])

	w = do(r, http.MethodPut, base+"/training-data/user-1/avatar-1/files/ghost.txt/training-flag", []byte(`{"use_for_training": true}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadTrainingFile(t *testing.T) {
	_, r := setupRouter(t)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "a.txt", "a", "").Code)

	w := do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/files/a.txt/download", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, strings.HasSuffix(strings.Split(resp["download_url"].(string), "?")[0], "training_data/a.txt"))
	assert.Equal(t, float64(60), resp["expires_in_seconds"])

	w = do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/files/missing.txt/download", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTrainingFiles(t *testing.T) {
	_, r := setupRouter(t)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "a.txt", "a", "").Code)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "b.txt", "b", "false").Code)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "c.txt", "c", "false").Code)

	w := do(r, http.MethodDelete, base+"/training-data/user-1/avatar-1/non-training-files", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["deleted_count"])

	w = do(r, http.MethodDelete, base+"/training-data/user-1/avatar-1/files/a.txt", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, base+"/training-data/user-1/avatar-1/files/a.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, base+"/training-data/user-1/avatar-1/list", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}

func TestTrainingDataBackupRestore(t *testing.T) {
	store, r := setupRouter(t)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "a.txt", "alpha", "").Code)

	w := do(r, http.MethodPost, base+"/persistence/user-1/avatar-1/training-data/restore", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, base+"/persistence/user-1/avatar-1/training-data/backup", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	backup := decode(t, w)["backup"].(map[string]interface{})
	assert.Equal(t, "training_data", backup["backup_type"])
	assert.Equal(t, float64(1), backup["file_count"])

	w = do(r, http.MethodDelete, base+"/training-data/user-1/avatar-1/files/a.txt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	before := store.Len()

	w = do(r, http.MethodPost, base+"/persistence/user-1/avatar-1/training-data/restore", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["restored_files"])
	assert.Equal(t, before+1, store.Len())
}

func TestBackupsListDeleteStatus(t *testing.T) {
	_, r := setupRouter(t)

	w := do(r, http.MethodGet, base+"/persistence/user-1/avatar-1/backups", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["backups"])

	do(r, http.MethodPost, base+"/adapters/user-1/avatar-1/create", nil, "")

	w = do(r, http.MethodGet, base+"/persistence/user-1/avatar-1/backups", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	backups := decode(t, w)["backups"].([]interface{})
	require.Len(t, backups, 1)
	assert.Equal(t, "adapters", backups[0].(map[string]interface{})["backup_type"])

	w = do(r, http.MethodGet, base+"/persistence/user-1/avatar-1/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, true, status["s3_connected"])
	assert.Equal(t, true, status["adapter_backup_exists"])
	assert.Equal(t, false, status["training_data_backup_exists"])

	w = do(r, http.MethodDelete, base+"/persistence/user-1/avatar-1/backups/bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, base+"/persistence/user-1/avatar-1/backups/adapters", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, base+"/persistence/user-1/avatar-1/backups/adapters", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
