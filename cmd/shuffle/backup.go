package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dodgybits/shuffle/internal/snapshot"
)

var (
	backupOut    string
	backupUpload bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the local store",
	Long:  "Writes a consistent copy of the database to --out, and/or uploads it to the configured bucket with --upload.",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Write the backup to this path")
	backupCmd.Flags().BoolVar(&backupUpload, "upload", false, "Upload the backup to the configured bucket")
}

func runBackup(cmd *cobra.Command, args []string) error {
	if backupOut == "" && !backupUpload {
		return fmt.Errorf("nothing to do: pass --out, --upload or both")
	}

	cfg, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if backupOut != "" {
		if err := db.Backup(ctx, backupOut); err != nil {
			return err
		}
		info, err := os.Stat(backupOut)
		if err != nil {
			return fmt.Errorf("stat backup: %w", err)
		}
		fmt.Fprintf(out, "Wrote %s (%s)\n", backupOut, formatSize(info.Size()))
	}

	if backupUpload {
		if !cfg.Backup.Enabled() {
			return snapshot.ErrNotConfigured
		}
		uploader, err := snapshot.NewUploader(cfg.Backup)
		if err != nil {
			return err
		}
		if err := snapshot.NewPublisher(db, uploader).Publish(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded to s3://%s/%s%s\n", cfg.Backup.Bucket, cfg.Backup.Prefix, snapshot.CurrentName)
	}
	return nil
}
