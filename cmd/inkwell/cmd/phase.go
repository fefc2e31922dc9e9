package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkwell-press/inkwell/internal/core"
)

var startCmd = &cobra.Command{
	Use:   "start <phase>",
	Short: "Start a phase",
	Long: `Validate a phase's start gate (dependencies, blocking conditions,
requirements, pre-checks) and mark it in progress. All gate failures
are reported together in one error.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var (
	completeOutputs string
	completeDirs    string
	completeMetrics string
)

var completeCmd = &cobra.Command{
	Use:   "complete <phase>",
	Short: "Complete the in-progress phase",
	Long: `Validate the phase's declared outputs and mark it completed.
On output-validation failure the phase stays in progress so the
outputs can be fixed and completion retried without a new attempt.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var failCmd = &cobra.Command{
	Use:   "fail <phase> [message]",
	Short: "Record a phase failure",
	Long: `Record a failure of the in-progress phase. The phase becomes
pending_retry while attempts remain under its retry budget, failed
once the budget is exhausted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFail,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(failCmd)

	completeCmd.Flags().StringVar(&completeOutputs, "outputs", "",
		`produced files as a JSON array (e.g. '["chapters/ch-01.md"]')`)
	completeCmd.Flags().StringVar(&completeDirs, "dirs", "",
		"produced directories as a JSON array")
	completeCmd.Flags().StringVar(&completeMetrics, "metrics", "",
		`phase metrics as a JSON object (e.g. '{"word_count": 48213}')`)
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]
	if err := a.manager.StartPhase(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Printf("Phase %s started\n", name)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]

	outputs := &core.PhaseOutputs{}
	if err := parseJSONFlag("outputs", completeOutputs, &outputs.Files); err != nil {
		return err
	}
	if err := parseJSONFlag("dirs", completeDirs, &outputs.Directories); err != nil {
		return err
	}
	var metrics map[string]interface{}
	if err := parseJSONFlag("metrics", completeMetrics, &metrics); err != nil {
		return err
	}

	if err := a.manager.CompletePhase(cmd.Context(), name, outputs, metrics); err != nil {
		return err
	}
	fmt.Printf("Phase %s completed\n", name)
	return nil
}

func runFail(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]
	message := "phase failed"
	if len(args) > 1 {
		message = args[1]
	}

	if err := a.manager.FailPhase(cmd.Context(), name, message); err != nil {
		return err
	}

	status, err := a.manager.Status(cmd.Context())
	if err != nil {
		return err
	}
	for _, row := range status.Rows {
		if row.Name == name {
			fmt.Printf("Phase %s recorded as %s\n", name, row.Status)
		}
	}
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <phase>",
	Short: "Check a phase's start gate without mutating anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "List the phases eligible to start now",
	RunE:  runNext,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(nextCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name := args[0]

	res, err := a.manager.Validate(cmd.Context(), name)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	switch {
	case res.Skip:
		fmt.Printf("Phase %s would be skipped\n", name)
	case res.Valid:
		fmt.Printf("Phase %s is ready to start\n", name)
	default:
		return fmt.Errorf("phase %q validation failed:\n  %s",
			name, strings.Join(res.Errors, "\n  "))
	}
	return nil
}

func runNext(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	next, err := a.manager.NextPhases(cmd.Context())
	if err != nil {
		return err
	}
	if len(next) == 0 {
		fmt.Println("No phases are eligible to start")
		return nil
	}
	for _, name := range next {
		fmt.Println(name)
	}
	return nil
}
