package handlers

import (
	"adapter-persistence-service/internal/core/domain"
	"adapter-persistence-service/internal/core/services"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	adapterSvc  *services.AdapterService
	trainingSvc *services.TrainingDataService
	backupSvc   *services.BackupService
	ownerID     string
}

// New builds the HTTP handlers. ownerID is the only user this deployment
// serves; requests for any other user are rejected.
func New(
	adapterSvc *services.AdapterService,
	trainingSvc *services.TrainingDataService,
	backupSvc *services.BackupService,
	ownerID string,
) *Handler {
	return &Handler{
		adapterSvc:  adapterSvc,
		trainingSvc: trainingSvc,
		backupSvc:   backupSvc,
		ownerID:     ownerID,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	// Adapters
	r.POST("/adapters/:user_id/:avatar_id/create", h.CreateAdapter)
	r.POST("/adapters/:user_id/:avatar_id/train", h.TrainAdapter)
	r.GET("/adapters/:user_id/:avatar_id", h.GetAdapter)
	r.GET("/adapters/:user_id/:avatar_id/info", h.GetAdapterInfo)
	r.DELETE("/adapters/:user_id/:avatar_id", h.DeleteAdapter)

	// Training Data
	r.POST("/training-data/:user_id/:avatar_id/upload", h.UploadTrainingFile)
	r.GET("/training-data/:user_id/:avatar_id/list", h.ListTrainingFiles)
	r.PUT("/training-data/:user_id/:avatar_id/files/:file_name/training-flag", h.UpdateTrainingFlag)
	r.GET("/training-data/:user_id/:avatar_id/files/:file_name/download", h.DownloadTrainingFile)
	r.DELETE("/training-data/:user_id/:avatar_id/files/:file_name", h.DeleteTrainingFile)
	r.GET("/training-data/:user_id/:avatar_id/metadata", h.GetTrainingMetadata)
	r.DELETE("/training-data/:user_id/:avatar_id/non-training-files", h.DeleteNonTrainingFiles)

	// Persistence
	r.POST("/persistence/:user_id/:avatar_id/training-data/backup", h.BackupTrainingData)
	r.POST("/persistence/:user_id/:avatar_id/training-data/restore", h.RestoreTrainingData)
	r.GET("/persistence/:user_id/:avatar_id/backups", h.ListBackups)
	r.DELETE("/persistence/:user_id/:avatar_id/backups/:backup_type", h.DeleteBackup)
	r.GET("/persistence/:user_id/:avatar_id/status", h.GetPersistenceStatus)
}

func (h *Handler) namespace(c *gin.Context) (domain.Namespace, error) {
	ns := domain.NewNamespace(c.Param("user_id"), c.Param("avatar_id"))
	if err := ns.Validate(); err != nil {
		return ns, err
	}
	if ns.UserID != h.ownerID {
		return ns, domain.ErrOwnerMismatch
	}
	return ns, nil
}
