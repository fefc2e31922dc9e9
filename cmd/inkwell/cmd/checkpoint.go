package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/inkwell-press/inkwell/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage pipeline checkpoints",
}

var checkpointCreateLabel string

var checkpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the pipeline state and configured include paths",
	RunE:  runCheckpointCreate,
}

var checkpointListJSON bool

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	RunE:  runCheckpointList,
}

var checkpointInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show one checkpoint's manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointInfo,
}

var checkpointCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy now",
	Long: `Prune checkpoints per the retention policy. Pruned checkpoints are
moved to trash, never deleted.`,
	RunE: runCheckpointCleanup,
}

var (
	restoreComponents []string
	restoreDryRun     bool
	restoreConflict   string
)

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a checkpoint",
	Long: `Restore selected components of a checkpoint. With --dry-run the
planned changes are listed and nothing is touched. --conflict decides
what happens to existing paths: overwrite (default), skip, or backup
(move the existing path to trash and auto-checkpoint first).`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckpointRestore,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointInfoCmd)
	checkpointCmd.AddCommand(checkpointCleanupCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)

	checkpointCreateCmd.Flags().StringVar(&checkpointCreateLabel, "label", "",
		"checkpoint label (labels containing 'after-' mark phase completions)")
	checkpointListCmd.Flags().BoolVar(&checkpointListJSON, "json", false, "Output as JSON")
	checkpointRestoreCmd.Flags().StringSliceVar(&restoreComponents, "components", nil,
		"components to restore: state, files, logs, trash, context (default all)")
	checkpointRestoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false,
		"preview the restore without changing anything")
	checkpointRestoreCmd.Flags().StringVar(&restoreConflict, "conflict", checkpoint.ConflictOverwrite,
		"conflict resolution: overwrite, skip, backup")
}

func runCheckpointCreate(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	summary, err := a.manager.CreateCheckpoint(cmd.Context(), checkpointCreateLabel)
	if err != nil {
		return err
	}
	fmt.Printf("Checkpoint %s created (%s)\n", summary.ID, formatSize(summary.Size))
	return nil
}

func runCheckpointList(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	manifests, err := a.manager.ListCheckpoints()
	if err != nil {
		return err
	}
	if checkpointListJSON {
		return outputJSON(manifests)
	}
	if len(manifests) == 0 {
		fmt.Println("No checkpoints")
		return nil
	}

	rows := make([][]string, 0, len(manifests))
	for _, m := range manifests {
		rows = append(rows, []string{
			m.ID,
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.Label,
			m.Phase,
			formatSize(m.TotalSize()),
		})
	}
	fmt.Println(renderTable([]string{"ID", "CREATED", "LABEL", "PHASE", "SIZE"}, rows, 5))
	return nil
}

func runCheckpointInfo(_ *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	manifest, err := a.manager.CheckpointInfo(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:      %s\n", manifest.ID)
	fmt.Printf("Created: %s\n", manifest.CreatedAt.Format("2006-01-02 15:04:05"))
	if manifest.Label != "" {
		fmt.Printf("Label:   %s\n", manifest.Label)
	}
	if manifest.Phase != "" {
		fmt.Printf("Phase:   %s\n", manifest.Phase)
	}
	fmt.Printf("On disk: %s\n", formatSize(manifest.DiskUsage))
	fmt.Println()

	rows := make([][]string, 0, len(manifest.Includes))
	for _, e := range manifest.Includes {
		rows = append(rows, []string{e.Path, e.Type, strconv.Itoa(e.Files), formatSize(e.Size)})
	}
	fmt.Println(renderTable([]string{"PATH", "TYPE", "FILES", "SIZE"}, rows, 3, 4))
	return nil
}

func runCheckpointCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.manager.PruneCheckpoints(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Retention policy applied")
	return nil
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	report, err := a.manager.RestoreCheckpoint(cmd.Context(), args[0], checkpoint.RestoreOptions{
		Components:         restoreComponents,
		DryRun:             restoreDryRun,
		ConflictResolution: restoreConflict,
	})
	if err != nil {
		return err
	}

	if report.DryRun {
		fmt.Println("Dry run, no changes made:")
	}
	rows := make([][]string, 0, len(report.Paths))
	for _, p := range report.Paths {
		outcome := p.Action
		if p.Error != "" {
			outcome = "error: " + p.Error
		}
		rows = append(rows, []string{p.Path, outcome, strconv.Itoa(p.Files), formatSize(p.Size)})
	}
	if len(rows) > 0 {
		fmt.Println(renderTable([]string{"PATH", "ACTION", "FILES", "SIZE"}, rows, 3, 4))
	}
	if report.StateRestored && !report.DryRun {
		fmt.Println("Pipeline state restored from snapshot")
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d paths failed to restore", len(failed), len(report.Paths))
	}
	return nil
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMG"[exp])
}
