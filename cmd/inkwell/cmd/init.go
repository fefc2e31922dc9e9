package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkwell-press/inkwell/internal/core"
)

var (
	initBook     string
	initMetadata string
	initMode     string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize or resume a pipeline session",
	Long: `Load the workflow rules, then load or create the pipeline state.
A new session seeds every phase of the execution order at pending.
Running init on an existing state is a no-op that prints the session.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initBook, "book", "", "book identifier")
	initCmd.Flags().StringVar(&initMetadata, "metadata", "", "book metadata file (relative to workdir)")
	initCmd.Flags().StringVar(&initMode, "mode", "", "workflow mode tag")
}

func runInit(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	st, err := a.manager.Init(cmd.Context(), core.PipelineContext{
		BookID:       initBook,
		MetadataFile: initMetadata,
		WorkflowMode: initMode,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", st.SessionID)
	fmt.Printf("Phases:  %d\n", len(a.doc.ExecutionOrder))
	return nil
}
