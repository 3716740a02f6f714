package domain

import "time"

type BackupType string

const (
	BackupTypeAdapters     BackupType = "adapters"
	BackupTypeTrainingData BackupType = "training_data"
)

func ParseBackupType(s string) (BackupType, error) {
	switch BackupType(s) {
	case BackupTypeAdapters, BackupTypeTrainingData:
		return BackupType(s), nil
	default:
		return "", ErrInvalidBackupType
	}
}

// BackupTarget is the resolved location of one archive and its sidecar.
type BackupTarget struct {
	Namespace   Namespace
	Type        BackupType
	Prefix      string
	ArchiveName string
}

func (t BackupTarget) ArchiveKey() string {
	return t.Prefix + t.ArchiveName
}

func (t BackupTarget) DescriptorKey() string {
	return t.Prefix + BackupDescriptorName
}

// BackupDescriptor is the backup_metadata.json sidecar written next to every archive.
type BackupDescriptor struct {
	BackupType      BackupType `json:"backup_type"`
	UserID          string     `json:"user_id"`
	AvatarID        string     `json:"avatar_id"`
	BackupTimestamp time.Time  `json:"backup_timestamp"`
	FileCount       int        `json:"file_count"`
	BackupSizeBytes int64      `json:"backup_size_bytes"`
}

// BackupInfo describes a stored archive. Descriptor is nil when the sidecar is missing.
type BackupInfo struct {
	Type         BackupType
	Key          string
	Size         int64
	LastModified time.Time
	Descriptor   *BackupDescriptor
}

// PersistenceStatus reports storage reachability and which archives exist.
type PersistenceStatus struct {
	Connected                bool
	Bucket                   string
	AdapterBackupPath        string
	TrainingDataBackupPath   string
	AdapterBackupExists      bool
	TrainingDataBackupExists bool
}
