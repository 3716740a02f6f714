package domain

import "strings"

// Object names inside an avatar's adapter prefix.
const (
	AdapterArchiveName      = "adapter_backup.zip"
	TrainingDataArchiveName = "training_data_backup.zip"
	BackupDescriptorName    = "backup_metadata.json"
	SelectionMapName        = "metadata.json"
)

// Namespace resolves blob-store keys for one (user, avatar) pair. All keys
// used by the service come from here.
type Namespace struct {
	UserID   string
	AvatarID string
}

func NewNamespace(userID, avatarID string) Namespace {
	return Namespace{UserID: userID, AvatarID: avatarID}
}

// Validate reports missing identifiers. Resolution itself never fails.
func (n Namespace) Validate() error {
	if strings.TrimSpace(n.UserID) == "" || strings.Contains(n.UserID, "/") {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(n.AvatarID) == "" || strings.Contains(n.AvatarID, "/") {
		return ErrInvalidAvatarID
	}
	return nil
}

// Root is users/{user}/avatars/{avatar}/.
func (n Namespace) Root() string {
	return "users/" + n.UserID + "/avatars/" + n.AvatarID + "/"
}

func (n Namespace) AdapterPrefix() string {
	return n.Root() + "adapters/"
}

func (n Namespace) TrainingDataPrefix() string {
	return n.AdapterPrefix() + "training_data/"
}

func (n Namespace) MetadataPrefix() string {
	return n.AdapterPrefix() + "metadata/"
}

func (n Namespace) AdapterArchiveKey() string {
	return n.AdapterPrefix() + AdapterArchiveName
}

func (n Namespace) SelectionMapKey() string {
	return n.MetadataPrefix() + SelectionMapName
}

func (n Namespace) TrainingFileKey(filename string) string {
	return n.TrainingDataPrefix() + filename
}

// BackupTarget returns where an archive of the given type lives.
func (n Namespace) BackupTarget(t BackupType) (BackupTarget, error) {
	switch t {
	case BackupTypeAdapters:
		return BackupTarget{Namespace: n, Type: t, Prefix: n.AdapterPrefix(), ArchiveName: AdapterArchiveName}, nil
	case BackupTypeTrainingData:
		return BackupTarget{Namespace: n, Type: t, Prefix: n.TrainingDataPrefix(), ArchiveName: TrainingDataArchiveName}, nil
	default:
		return BackupTarget{}, ErrInvalidBackupType
	}
}

func (n Namespace) AdapterBackup() BackupTarget {
	t, _ := n.BackupTarget(BackupTypeAdapters)
	return t
}

func (n Namespace) TrainingDataBackup() BackupTarget {
	t, _ := n.BackupTarget(BackupTypeTrainingData)
	return t
}
