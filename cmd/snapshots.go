package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/store"
)

var (
	snapshotDataDir  string
	snapshotDocument string
	keepLast         int
	olderThanDays    int
	forceClean       bool
	restoreForce     bool
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage autosave snapshots",
	Long: `Manage the snapshots the preview server takes of open documents,
including listing, restoring and cleaning old snapshots.`,
}

var listSnapshotsCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	Long:  `Display snapshots with document, id, timestamp, canvas size, layer count and file size.`,
	RunE:  runListSnapshots,
}

var cleanSnapshotsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old snapshots",
	Long: `Delete old snapshots based on retention policy.
You can specify how many snapshots to keep per document or delete snapshots older than N days.`,
	RunE: runCleanSnapshots,
}

var restoreSnapshotCmd = &cobra.Command{
	Use:   "restore <document> <id> <session>",
	Short: "Write a snapshot out as a session file",
	Args:  cobra.ExactArgs(3),
	RunE:  runRestoreSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(listSnapshotsCmd, cleanSnapshotsCmd, restoreSnapshotCmd)

	snapshotsCmd.PersistentFlags().StringVar(&snapshotDataDir, "data-dir", "", "Base directory for snapshot storage (default from config)")
	listSnapshotsCmd.Flags().StringVar(&snapshotDocument, "document", "", "Only this document")
	cleanSnapshotsCmd.Flags().StringVar(&snapshotDocument, "document", "", "Only this document")

	cleanSnapshotsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N snapshots per document (0 = keep all)")
	cleanSnapshotsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete snapshots older than N days (0 = no age limit)")
	cleanSnapshotsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")

	restoreSnapshotCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Overwrite an existing session")
}

func openSnapshotStore() (*store.FSStore, error) {
	dir := snapshotDataDir
	if dir == "" {
		dir = cfg.DataDir
	}
	s, err := store.NewFSStore(dir, cfg.SessionOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	return s, nil
}

func runListSnapshots(cmd *cobra.Command, args []string) error {
	snapshotStore, err := openSnapshotStore()
	if err != nil {
		return err
	}

	infos, err := snapshotStore.ListSnapshots(snapshotDocument)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No snapshots found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tID\tTIMESTAMP\tCANVAS\tLAYERS\tSIZE\tREASON")
	fmt.Fprintln(w, "--------\t--\t---------\t------\t------\t----\t------")

	var total int64
	for _, info := range infos {
		total += info.Size
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%s\t%s\n",
			info.Document,
			info.ID,
			info.Timestamp.Local().Format("2006-01-02 15:04:05"),
			info.Width, info.Height,
			info.Layers,
			formatBytes(info.Size),
			info.Reason,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal snapshots: %d (%s)\n", len(infos), formatBytes(total))
	return nil
}

func runCleanSnapshots(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	snapshotStore, err := openSnapshotStore()
	if err != nil {
		return err
	}

	infos, err := snapshotStore.ListSnapshots(snapshotDocument)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No snapshots to clean.")
		return nil
	}

	policy := store.Retention{
		KeepLast:  keepLast,
		OlderThan: time.Duration(olderThanDays) * 24 * time.Hour,
	}
	toDelete := policy.Select(infos, time.Now())

	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No snapshots match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d snapshot(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s/%s (%s, %s)\n",
			info.Document,
			info.ID,
			info.Timestamp.Local().Format("2006-01-02 15:04:05"),
			formatBytes(info.Size),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := snapshotStore.DeleteSnapshot(info.Document, info.ID); err != nil {
			slog.Error("Failed to delete snapshot", "document", info.Document, "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted snapshot", "document", info.Document, "id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d snapshot(s), %d failed.\n", deleted, failed)
	return nil
}

func runRestoreSnapshot(cmd *cobra.Command, args []string) error {
	snapshotStore, err := openSnapshotStore()
	if err != nil {
		return err
	}
	c, err := snapshotStore.LoadSnapshot(args[0], args[1])
	if err != nil {
		return err
	}

	ed, err := newEditor("")
	if err != nil {
		return err
	}
	defer ed.Close()

	dst := ed.Resolve(args[2])
	if exists(dst) && !restoreForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", dst)
	}
	ed.Replace(c, "")
	if err := ed.SaveSession(dst); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s/%s to %s\n", args[0], args[1], dst)
	return nil
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
