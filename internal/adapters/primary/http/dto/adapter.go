package dto

import (
	"time"

	"github.com/google/uuid"

	"adapter-persistence-service/internal/core/domain"
)

type TrainAdapterRequest struct {
	LearningRate float64        `json:"learning_rate" binding:"omitempty,gt=0"`
	Epochs       int            `json:"num_train_epochs" binding:"omitempty,gt=0"`
	BatchSize    int            `json:"per_device_train_batch_size" binding:"omitempty,gt=0"`
	Extra        map[string]any `json:"extra"`
}

func (r TrainAdapterRequest) ToParams() domain.TrainingParams {
	return domain.TrainingParams{
		LearningRate: r.LearningRate,
		Epochs:       r.Epochs,
		BatchSize:    r.BatchSize,
		Extra:        r.Extra,
	}
}

type BackupDescriptorResponse struct {
	BackupType      string `json:"backup_type"`
	UserID          string `json:"user_id"`
	AvatarID        string `json:"avatar_id"`
	BackupTimestamp string `json:"backup_timestamp"`
	FileCount       int    `json:"file_count"`
	BackupSizeBytes int64  `json:"backup_size_bytes"`
}

type CreateAdapterResponse struct {
	Status      string                    `json:"status"`
	UserID      string                    `json:"user_id"`
	AvatarID    string                    `json:"avatar_id"`
	AdapterPath string                    `json:"adapter_path"`
	Metadata    *BackupDescriptorResponse `json:"metadata"`
}

type TrainAdapterResponse struct {
	Status         string                    `json:"status"`
	UserID         string                    `json:"user_id"`
	AvatarID       string                    `json:"avatar_id"`
	RunID          uuid.UUID                 `json:"run_id"`
	AdapterStatus  string                    `json:"adapter_status"`
	FilesUsed      []string                  `json:"files_used"`
	Message        string                    `json:"message,omitempty"`
	Metrics        map[string]float64        `json:"metrics,omitempty"`
	BackupMetadata *BackupDescriptorResponse `json:"backup_metadata"`
}

type AdapterInfoResponse struct {
	Status   string                    `json:"status"`
	UserID   string                    `json:"user_id"`
	AvatarID string                    `json:"avatar_id"`
	Adapter  *AdapterResponse          `json:"adapter,omitempty"`
	Metadata *BackupDescriptorResponse `json:"metadata,omitempty"`
	Manifest *domain.AdapterManifest   `json:"manifest,omitempty"`
}

type AdapterResponse struct {
	Name         string `json:"adapter_name"`
	Status       string `json:"status"`
	Version      string `json:"version"`
	CreatedAt    string `json:"created_at,omitempty"`
	ArchiveSize  int64  `json:"archive_size_bytes"`
	FileCount    int    `json:"file_count"`
	TrainingRuns int    `json:"training_runs"`
}

type DeleteAdapterResponse struct {
	Status       string `json:"status"`
	UserID       string `json:"user_id"`
	AvatarID     string `json:"avatar_id"`
	DeletedCount int    `json:"deleted_count"`
}

func ToBackupDescriptorResponse(d *domain.BackupDescriptor) *BackupDescriptorResponse {
	if d == nil {
		return nil
	}
	return &BackupDescriptorResponse{
		BackupType:      string(d.BackupType),
		UserID:          d.UserID,
		AvatarID:        d.AvatarID,
		BackupTimestamp: d.BackupTimestamp.Format(time.RFC3339),
		FileCount:       d.FileCount,
		BackupSizeBytes: d.BackupSizeBytes,
	}
}

func ToCreateAdapterResponse(ns domain.Namespace, r *domain.CreateResult) CreateAdapterResponse {
	return CreateAdapterResponse{
		Status:      string(r.Status),
		UserID:      ns.UserID,
		AvatarID:    ns.AvatarID,
		AdapterPath: r.Path,
		Metadata:    ToBackupDescriptorResponse(r.Descriptor),
	}
}

func ToTrainAdapterResponse(ns domain.Namespace, r *domain.TrainingResult) TrainAdapterResponse {
	files := r.FilesUsed
	if files == nil {
		files = []string{}
	}
	return TrainAdapterResponse{
		Status:         "success",
		UserID:         ns.UserID,
		AvatarID:       ns.AvatarID,
		RunID:          r.RunID,
		AdapterStatus:  string(r.Status),
		FilesUsed:      files,
		Message:        r.Message,
		Metrics:        r.Metrics,
		BackupMetadata: ToBackupDescriptorResponse(r.Descriptor),
	}
}

func ToAdapterInfoResponse(ns domain.Namespace, info *domain.AdapterInfo) AdapterInfoResponse {
	resp := AdapterInfoResponse{Status: "not_found", UserID: ns.UserID, AvatarID: ns.AvatarID}
	if info.Found {
		resp.Status = "found"
		resp.Adapter = ToAdapterResponse(info.Artifact)
		resp.Metadata = ToBackupDescriptorResponse(info.Descriptor)
		resp.Manifest = info.Manifest
	}
	return resp
}

func ToAdapterResponse(a *domain.AdapterArtifact) *AdapterResponse {
	if a == nil {
		return nil
	}
	resp := &AdapterResponse{
		Name:         a.Name,
		Status:       string(a.Status),
		Version:      a.Version,
		ArchiveSize:  a.ArchiveSize,
		FileCount:    a.FileCount,
		TrainingRuns: len(a.TrainingHistory),
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return resp
}
