package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long:  "Display phase progress, attempts, and timing for the current session.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false,
		"Keep running and re-render when the state file changes")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := printStatus(cmd.Context(), a); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}
	return watchStatus(cmd.Context(), a)
}

func printStatus(ctx context.Context, a *app) error {
	report, err := a.manager.Status(ctx)
	if err != nil {
		return err
	}
	if statusJSON {
		return outputJSON(report)
	}

	fmt.Printf("Session:  %s\n", report.SessionID)
	if report.CurrentPhase != "" {
		fmt.Printf("Running:  %s\n", report.CurrentPhase)
	}
	if report.RestoredFrom != "" {
		fmt.Printf("Restored: %s\n", report.RestoredFrom)
	}
	fmt.Printf("Progress: %d%% (%d/%d phases, %d failed)\n",
		report.Progress,
		len(report.Completed),
		len(report.Completed)+len(report.Pending)+len(report.Failed),
		len(report.Failed),
	)
	fmt.Println()

	rows := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		name := row.Name
		if row.Optional {
			name += " (optional)"
		}
		duration := "-"
		if row.Duration > 0 {
			duration = row.Duration.Round(time.Second).String()
		}
		rows = append(rows, []string{
			name,
			string(row.Status),
			strconv.Itoa(row.Attempts),
			duration,
		})
	}
	fmt.Println(renderTable([]string{"PHASE", "STATUS", "ATTEMPTS", "DURATION"}, rows, 3, 4))
	return nil
}

// watchStatus re-renders on every write to the state file. The watch
// is on the parent directory: atomic renames replace the file node, a
// watch on the path itself would go stale after the first save.
func watchStatus(ctx context.Context, a *app) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating state watcher: %w", err)
	}
	defer watcher.Close()

	statePath := a.cfg.StatePath()
	if err := watcher.Add(filepath.Dir(statePath)); err != nil {
		return fmt.Errorf("watching state directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != statePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fmt.Println()
			if err := printStatus(ctx, a); err != nil {
				a.log.Warn("status refresh failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("state watcher error", "error", err)
		}
	}
}
