// Command adapterctl runs backup operations against local directories using
// the same configuration and blob store as the server.
package main

import (
	"os"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
)

var (
	rootCmd = &cobra.Command{
		Use:           "adapterctl",
		Short:         "Back up and restore avatar adapters and training data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Archive a local directory into the avatar's backup slot",
		RunE:  cmdBackup,
	}
	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Extract the avatar's backup archive into a local directory",
		RunE:  cmdRestore,
	}
	backupsCmd = &cobra.Command{
		Use:   "backups",
		Short: "List the avatar's backup archives",
		RunE:  cmdBackups,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show bucket connectivity and which backups exist",
		RunE:  cmdStatus,
	}

	flags struct {
		user       string
		avatar     string
		backupType string
		from       string
		to         string
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.user, "user", "", "user id (defaults to USER_ID)")
	rootCmd.PersistentFlags().StringVar(&flags.avatar, "avatar", "", "avatar id")
	_ = rootCmd.MarkPersistentFlagRequired("avatar")

	for _, cmd := range []*cobra.Command{backupCmd, restoreCmd} {
		cmd.Flags().StringVar(&flags.backupType, "type", "adapters", "backup type: adapters or training_data")
	}
	backupCmd.Flags().StringVar(&flags.from, "from", "", "directory to archive")
	_ = backupCmd.MarkFlagRequired("from")
	restoreCmd.Flags().StringVar(&flags.to, "to", "", "directory to extract into")
	_ = restoreCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(backupCmd, restoreCmd, backupsCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
