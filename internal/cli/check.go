package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/fare-guardian/internal/app"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check pass over all active alerts",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("dry-run", false, "Search and match only; save nothing and send nothing")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := app.NewEngine(cfg, store, newLogger(cfg), dryRun)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := engine.Scheduler.RunPass(cmd.Context())

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "Dry run: nothing was saved or sent.")
	}
	fmt.Fprintf(out, "Checked:     %d\n", stats.Checked)
	fmt.Fprintf(out, "Matched:     %d (%d deals)\n", stats.Matched, stats.Deals)
	fmt.Fprintf(out, "Notified:    %d\n", stats.Notified)
	fmt.Fprintf(out, "Suppressed:  %d\n", stats.Suppressed)
	fmt.Fprintf(out, "Placeholder: %d\n", stats.Placeholder)
	fmt.Fprintf(out, "Errors:      %d\n", stats.Errors)

	if stats.Errors > 0 {
		return fmt.Errorf("%d alert(s) failed; see log for details", stats.Errors)
	}
	return nil
}
