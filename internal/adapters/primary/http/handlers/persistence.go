package handlers

import (
	"net/http"

	"adapter-persistence-service/internal/adapters/primary/http/dto"
	"adapter-persistence-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) BackupTrainingData(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	desc, err := h.trainingSvc.Backup(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("backup training data failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BackupResponse{Status: "success", Backup: dto.ToBackupDescriptorResponse(desc)})
}

func (h *Handler) RestoreTrainingData(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	n, err := h.trainingSvc.Restore(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("restore training data failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RestoreResponse{Status: "success", RestoredFiles: n})
}

func (h *Handler) ListBackups(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	backups, err := h.backupSvc.List(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("list backups failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToListBackupsResponse(ns, backups))
}

func (h *Handler) DeleteBackup(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	backupType, err := domain.ParseBackupType(c.Param("backup_type"))
	if err != nil {
		mapDomainError(c, err)
		return
	}
	target, err := ns.BackupTarget(backupType)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	if err := h.backupSvc.Delete(c.Request.Context(), target); err != nil {
		log.WithError(err).Error("delete backup failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteBackupResponse{Status: "deleted", BackupType: string(backupType)})
}

func (h *Handler) GetPersistenceStatus(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	status, err := h.backupSvc.Status(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("persistence status failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToPersistenceStatusResponse(status))
}
