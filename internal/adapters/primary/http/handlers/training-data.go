package handlers

import (
	"net/http"
	"strconv"

	"adapter-persistence-service/internal/adapters/primary/http/dto"
	"adapter-persistence-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) UploadTrainingFile(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	use, err := strconv.ParseBool(c.DefaultQuery("use_for_training", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use_for_training must be a boolean"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	res, err := h.trainingSvc.Upload(c.Request.Context(), ns, header.Filename, file, header.Size, header.Header.Get("Content-Type"), use)
	if err != nil {
		log.WithError(err).Error("upload training file failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToUploadTrainingFileResponse(res))
}

func (h *Handler) ListTrainingFiles(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	filter := domain.SelectAll
	var trainingOnly *bool
	if raw := c.Query("training_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "training_only must be a boolean"})
			return
		}
		trainingOnly = &v
		filter = domain.SelectExcludedOnly
		if v {
			filter = domain.SelectTrainingOnly
		}
	}

	files, err := h.trainingSvc.List(c.Request.Context(), ns, filter)
	if err != nil {
		log.WithError(err).Error("list training files failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToListTrainingFilesResponse(ns, files, trainingOnly))
}

func (h *Handler) UpdateTrainingFlag(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	var req dto.UpdateTrainingFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filename := c.Param("file_name")
	if err := h.trainingSvc.SetFlag(c.Request.Context(), ns, filename, *req.UseForTraining); err != nil {
		log.WithError(err).Error("update training flag failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TrainingFlagResponse{Filename: filename, UseForTraining: *req.UseForTraining})
}

func (h *Handler) DownloadTrainingFile(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	filename := c.Param("file_name")
	url, expiry, err := h.trainingSvc.PresignDownload(c.Request.Context(), ns, filename)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DownloadURLResponse{
		Filename:         filename,
		DownloadURL:      url,
		ExpiresInSeconds: int64(expiry.Seconds()),
	})
}

func (h *Handler) DeleteTrainingFile(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	if err := h.trainingSvc.DeleteOne(c.Request.Context(), ns, c.Param("file_name")); err != nil {
		log.WithError(err).Error("delete training file failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteFilesResponse{Status: "deleted", DeletedCount: 1})
}

func (h *Handler) GetTrainingMetadata(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	m, summary, err := h.trainingSvc.Metadata(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("get training metadata failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTrainingMetadataResponse(ns, m, summary))
}

func (h *Handler) DeleteNonTrainingFiles(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	res, err := h.trainingSvc.DeleteExcluded(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("delete non-training files failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteFilesResponse{Status: "deleted", DeletedCount: res.DeletedCount})
}
