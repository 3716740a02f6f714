package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"adapter-persistence-service/internal/adapters/secondary/blobstore"
	"adapter-persistence-service/internal/config"
	"adapter-persistence-service/internal/core/domain"
	"adapter-persistence-service/internal/core/services"
)

type environment struct {
	backups *services.BackupService
	ownerID string
}

// loadEnvironment is swapped out in tests.
var loadEnvironment = func() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Service.WorkDir, 0o755); err != nil {
		return nil, err
	}
	store, err := blobstore.New(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	return &environment{
		backups: services.NewBackupService(store, cfg.Service.WorkDir),
		ownerID: cfg.Owner.UserID,
	}, nil
}

func namespace(env *environment) (domain.Namespace, error) {
	user := flags.user
	if user == "" {
		user = env.ownerID
	}
	ns := domain.NewNamespace(user, flags.avatar)
	return ns, ns.Validate()
}

func target(env *environment) (domain.BackupTarget, error) {
	ns, err := namespace(env)
	if err != nil {
		return domain.BackupTarget{}, err
	}
	bt, err := domain.ParseBackupType(flags.backupType)
	if err != nil {
		return domain.BackupTarget{}, err
	}
	return ns.BackupTarget(bt)
}

func cmdBackup(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	t, err := target(env)
	if err != nil {
		return err
	}

	desc, err := env.backups.Backup(cmd.Context(), flags.from, t)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"status":      "success",
		"backup_path": env.backups.URI(t.ArchiveKey()),
		"metadata":    desc,
	})
}

func cmdRestore(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	t, err := target(env)
	if err != nil {
		return err
	}

	n, err := env.backups.Restore(cmd.Context(), t, flags.to)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"avatar_id": t.Namespace.AvatarID, "files": n}).Debug("restore finished")
	return printJSON(cmd, map[string]any{
		"status":         "success",
		"restored_files": n,
		"restore_path":   flags.to,
	})
}

func cmdBackups(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ns, err := namespace(env)
	if err != nil {
		return err
	}

	backups, err := env.backups.List(cmd.Context(), ns)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(backups))
	for _, b := range backups {
		out = append(out, map[string]any{
			"backup_type":   b.Type,
			"path":          env.backups.URI(b.Key),
			"size_bytes":    b.Size,
			"last_modified": b.LastModified,
			"metadata":      b.Descriptor,
		})
	}
	return printJSON(cmd, map[string]any{"backups": out})
}

func cmdStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	ns, err := namespace(env)
	if err != nil {
		return err
	}

	status, err := env.backups.Status(cmd.Context(), ns)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"s3_connected":                status.Connected,
		"bucket":                      status.Bucket,
		"adapter_backup_path":         status.AdapterBackupPath,
		"training_data_backup_path":   status.TrainingDataBackupPath,
		"adapter_backup_exists":       status.AdapterBackupExists,
		"training_data_backup_exists": status.TrainingDataBackupExists,
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
