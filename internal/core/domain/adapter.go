package domain

import (
	"io"
	"time"

	"github.com/google/uuid"
)

type AdapterStatus string

const (
	AdapterStatusUntrained AdapterStatus = "untrained"
	AdapterStatusTrained   AdapterStatus = "trained"
)

type CreateStatus string

const (
	CreateStatusExisting CreateStatus = "existing"
	CreateStatusCreated  CreateStatus = "created"
)

const (
	DefaultAdapterName    = "default"
	InitialAdapterVersion = "1.0.0"
)

// Files inside an adapter archive.
const (
	AdapterConfigFile   = "adapter_config.json"
	AdapterWeightsFile  = "adapter_model.safetensors"
	AdapterManifestFile = "adapter_manifest.json"
)

// TrainingRun summarizes one past training run.
type TrainingRun struct {
	RunID          uuid.UUID      `json:"run_id"`
	Timestamp      time.Time      `json:"timestamp"`
	FilesUsed      []string       `json:"files_used"`
	TrainingParams TrainingParams `json:"training_params"`
	Success        bool           `json:"success"`
	Message        string         `json:"message,omitempty"`
}

// AdapterManifest is adapter_manifest.json: identity, lifecycle status and history.
type AdapterManifest struct {
	AdapterName     string        `json:"adapter_name"`
	UserID          string        `json:"user_id"`
	AvatarID        string        `json:"avatar_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Version         string        `json:"version"`
	Status          AdapterStatus `json:"status"`
	LastTrained     *time.Time    `json:"last_trained,omitempty"`
	TrainingHistory []TrainingRun `json:"training_history"`
}

// LoRAConfig is adapter_config.json in the layout PEFT loads.
type LoRAConfig struct {
	PeftType            string   `json:"peft_type"`
	TaskType            string   `json:"task_type"`
	BaseModelNameOrPath string   `json:"base_model_name_or_path"`
	R                   int      `json:"r"`
	LoraAlpha           int      `json:"lora_alpha"`
	LoraDropout         float64  `json:"lora_dropout"`
	TargetModules       []string `json:"target_modules"`
	Bias                string   `json:"bias"`
	InferenceMode       bool     `json:"inference_mode"`
}

func DefaultLoRAConfig(baseModel string) LoRAConfig {
	return LoRAConfig{
		PeftType:            "LORA",
		TaskType:            "CAUSAL_LM",
		BaseModelNameOrPath: baseModel,
		R:                   16,
		LoraAlpha:           32,
		LoraDropout:         0.1,
		TargetModules:       []string{"q_proj", "v_proj"},
		Bias:                "none",
		InferenceMode:       true,
	}
}

// AdapterArtifact is the packaged adapter for one (user, avatar) pair.
type AdapterArtifact struct {
	UserID          string
	AvatarID        string
	Name            string
	Status          AdapterStatus
	CreatedAt       time.Time
	ArchiveSize     int64
	FileCount       int
	Version         string
	TrainingHistory []TrainingRun
}

func NewAdapterArtifact(m *AdapterManifest, d *BackupDescriptor) *AdapterArtifact {
	a := &AdapterArtifact{}
	if m != nil {
		a.UserID = m.UserID
		a.AvatarID = m.AvatarID
		a.Name = m.AdapterName
		a.Status = m.Status
		a.CreatedAt = m.CreatedAt
		a.Version = m.Version
		a.TrainingHistory = m.TrainingHistory
	}
	if d != nil {
		a.UserID = d.UserID
		a.AvatarID = d.AvatarID
		a.ArchiveSize = d.BackupSizeBytes
		a.FileCount = d.FileCount
	}
	return a
}

type CreateResult struct {
	Status     CreateStatus
	Path       string
	Descriptor *BackupDescriptor
}

// AdapterDownload is an open archive stream. The caller closes Archive.
type AdapterDownload struct {
	Archive    io.ReadCloser
	Size       int64
	Descriptor *BackupDescriptor
	Created    bool
}

type DeleteResult struct {
	DeletedCount int
}

// AdapterInfo is returned by the info lookup; Found is false when no archive exists.
type AdapterInfo struct {
	Found      bool
	Artifact   *AdapterArtifact
	Descriptor *BackupDescriptor
	Manifest   *AdapterManifest
}

// TrainingParams carries the options recognized by the training routine.
type TrainingParams struct {
	LearningRate float64        `json:"learning_rate,omitempty"`
	Epochs       int            `json:"num_train_epochs,omitempty"`
	BatchSize    int            `json:"per_device_train_batch_size,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

func DefaultTrainingParams() TrainingParams {
	return TrainingParams{LearningRate: 5e-4, Epochs: 3, BatchSize: 4}
}

// WithDefaults fills zero-valued options.
func (p TrainingParams) WithDefaults() TrainingParams {
	d := DefaultTrainingParams()
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Epochs <= 0 {
		p.Epochs = d.Epochs
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	return p
}

type TrainingResult struct {
	RunID      uuid.UUID
	Status     AdapterStatus
	FilesUsed  []string
	Message    string
	Metrics    map[string]float64
	Descriptor *BackupDescriptor
}
