package dto

import (
	"time"

	"adapter-persistence-service/internal/core/domain"
)

type BackupResponse struct {
	Status string                    `json:"status"`
	Backup *BackupDescriptorResponse `json:"backup"`
}

type RestoreResponse struct {
	Status        string `json:"status"`
	RestoredFiles int    `json:"restored_files"`
}

type BackupInfoResponse struct {
	BackupType   string                    `json:"backup_type"`
	Key          string                    `json:"key"`
	SizeBytes    int64                     `json:"size_bytes"`
	LastModified string                    `json:"last_modified"`
	Metadata     *BackupDescriptorResponse `json:"metadata"`
}

type ListBackupsResponse struct {
	UserID   string               `json:"user_id"`
	AvatarID string               `json:"avatar_id"`
	Backups  []BackupInfoResponse `json:"backups"`
}

type DeleteBackupResponse struct {
	Status     string `json:"status"`
	BackupType string `json:"backup_type"`
}

type PersistenceStatusResponse struct {
	Connected                bool   `json:"s3_connected"`
	Bucket                   string `json:"bucket"`
	AdapterBackupPath        string `json:"adapter_backup_path"`
	TrainingDataBackupPath   string `json:"training_data_backup_path"`
	AdapterBackupExists      bool   `json:"adapter_backup_exists"`
	TrainingDataBackupExists bool   `json:"training_data_backup_exists"`
}

func ToListBackupsResponse(ns domain.Namespace, backups []domain.BackupInfo) ListBackupsResponse {
	items := make([]BackupInfoResponse, 0, len(backups))
	for _, b := range backups {
		items = append(items, BackupInfoResponse{
			BackupType:   string(b.Type),
			Key:          b.Key,
			SizeBytes:    b.Size,
			LastModified: b.LastModified.Format(time.RFC3339),
			Metadata:     ToBackupDescriptorResponse(b.Descriptor),
		})
	}
	return ListBackupsResponse{UserID: ns.UserID, AvatarID: ns.AvatarID, Backups: items}
}

func ToPersistenceStatusResponse(s *domain.PersistenceStatus) PersistenceStatusResponse {
	return PersistenceStatusResponse{
		Connected:                s.Connected,
		Bucket:                   s.Bucket,
		AdapterBackupPath:        s.AdapterBackupPath,
		TrainingDataBackupPath:   s.TrainingDataBackupPath,
		AdapterBackupExists:      s.AdapterBackupExists,
		TrainingDataBackupExists: s.TrainingDataBackupExists,
	}
}
