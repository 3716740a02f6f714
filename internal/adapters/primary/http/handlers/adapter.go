package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"adapter-persistence-service/internal/adapters/primary/http/dto"
	"adapter-persistence-service/internal/core/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) CreateAdapter(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	res, err := h.adapterSvc.Create(c.Request.Context(), ns, c.DefaultQuery("adapter_name", domain.DefaultAdapterName))
	if err != nil {
		log.WithError(err).Error("create adapter failed")
		mapDomainError(c, err)
		return
	}

	status := http.StatusOK
	if res.Status == domain.CreateStatusCreated {
		status = http.StatusCreated
	}
	c.JSON(status, dto.ToCreateAdapterResponse(ns, res))
}

func (h *Handler) TrainAdapter(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	var req dto.TrainAdapterRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.adapterSvc.Train(c.Request.Context(), ns, req.ToParams())
	if err != nil {
		log.WithError(err).Error("train adapter failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTrainAdapterResponse(ns, res))
}

func (h *Handler) GetAdapter(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	dl, err := h.adapterSvc.Retrieve(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("retrieve adapter failed")
		mapDomainError(c, err)
		return
	}
	defer dl.Archive.Close()

	meta, err := json.Marshal(dto.ToBackupDescriptorResponse(dl.Descriptor))
	if err != nil {
		mapDomainError(c, err)
		return
	}
	adapterStatus := "existing"
	if dl.Created {
		adapterStatus = "newly_created"
	}

	c.DataFromReader(http.StatusOK, dl.Size, "application/zip", dl.Archive, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="adapter_%s_%s.zip"`, ns.UserID, ns.AvatarID),
		"X-Adapter-Metadata":  string(meta),
		"X-Adapter-Status":    adapterStatus,
		"X-User-ID":           ns.UserID,
		"X-Avatar-ID":         ns.AvatarID,
	})
}

func (h *Handler) GetAdapterInfo(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	info, err := h.adapterSvc.Info(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("adapter info failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAdapterInfoResponse(ns, info))
}

func (h *Handler) DeleteAdapter(c *gin.Context) {
	ns, err := h.namespace(c)
	if err != nil {
		mapDomainError(c, err)
		return
	}

	res, err := h.adapterSvc.Delete(c.Request.Context(), ns)
	if err != nil {
		log.WithError(err).Error("delete adapter failed")
		mapDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteAdapterResponse{
		Status:       "deleted",
		UserID:       ns.UserID,
		AvatarID:     ns.AvatarID,
		DeletedCount: res.DeletedCount,
	})
}
