package dto

import (
	"time"

	"adapter-persistence-service/internal/core/domain"
)

type UpdateTrainingFlagRequest struct {
	UseForTraining *bool `json:"use_for_training" binding:"required"`
}

type TrainingFileResponse struct {
	Filename       string `json:"filename"`
	Key            string `json:"key"`
	Size           int64  `json:"size"`
	ContentType    string `json:"content_type,omitempty"`
	UploadedAt     string `json:"uploaded_at"`
	UseForTraining bool   `json:"use_for_training"`
}

type UploadTrainingFileResponse struct {
	TrainingFileResponse
	UserID        string `json:"user_id"`
	AvatarID      string `json:"avatar_id"`
	FlagPersisted bool   `json:"flag_persisted"`
}

type ListTrainingFilesResponse struct {
	UserID       string                 `json:"user_id"`
	AvatarID     string                 `json:"avatar_id"`
	Files        []TrainingFileResponse `json:"files"`
	Count        int                    `json:"count"`
	TrainingOnly *bool                  `json:"training_only,omitempty"`
}

type TrainingFlagResponse struct {
	Filename       string `json:"filename"`
	UseForTraining bool   `json:"use_for_training"`
}

type DownloadURLResponse struct {
	Filename         string `json:"filename"`
	DownloadURL      string `json:"download_url"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

type TrainingMetadataResponse struct {
	UserID           string          `json:"user_id"`
	AvatarID         string          `json:"avatar_id"`
	Metadata         map[string]bool `json:"metadata"`
	TotalFiles       int             `json:"total_files"`
	TrainingFiles    int             `json:"training_files"`
	NonTrainingFiles int             `json:"non_training_files"`
}

type DeleteFilesResponse struct {
	Status       string `json:"status"`
	DeletedCount int    `json:"deleted_count"`
}

func ToTrainingFileResponse(f domain.TrainingDataFile) TrainingFileResponse {
	return TrainingFileResponse{
		Filename:       f.Filename,
		Key:            f.Key,
		Size:           f.Size,
		ContentType:    f.ContentType,
		UploadedAt:     f.UploadedAt.Format(time.RFC3339),
		UseForTraining: f.UseForTraining,
	}
}

func ToUploadTrainingFileResponse(r *domain.UploadResult) UploadTrainingFileResponse {
	return UploadTrainingFileResponse{
		TrainingFileResponse: ToTrainingFileResponse(r.File),
		UserID:               r.File.UserID,
		AvatarID:             r.File.AvatarID,
		FlagPersisted:        r.FlagPersisted,
	}
}

func ToListTrainingFilesResponse(ns domain.Namespace, files []domain.TrainingDataFile, trainingOnly *bool) ListTrainingFilesResponse {
	items := make([]TrainingFileResponse, 0, len(files))
	for _, f := range files {
		items = append(items, ToTrainingFileResponse(f))
	}
	return ListTrainingFilesResponse{
		UserID:       ns.UserID,
		AvatarID:     ns.AvatarID,
		Files:        items,
		Count:        len(items),
		TrainingOnly: trainingOnly,
	}
}

func ToTrainingMetadataResponse(ns domain.Namespace, m domain.TrainingSelectionMap, s domain.SelectionSummary) TrainingMetadataResponse {
	if m == nil {
		m = domain.TrainingSelectionMap{}
	}
	return TrainingMetadataResponse{
		UserID:           ns.UserID,
		AvatarID:         ns.AvatarID,
		Metadata:         m,
		TotalFiles:       s.TotalFiles,
		TrainingFiles:    s.TrainingFiles,
		NonTrainingFiles: s.NonTrainingFiles,
	}
}
