package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/fare-guardian/internal/app"
	"github.com/ogulcanaydogan/fare-guardian/pkg/pricesource"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured price sources",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Listing never needs the cache.
	cfg.Cache.Enabled = false

	registry, _, err := app.Sources(cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tDEFAULT\tMODE\n")
	for _, name := range registry.List() {
		src, err := registry.Get(name)
		if err != nil {
			return err
		}

		mode := "live"
		if hs, ok := src.(*pricesource.HTTPSource); ok && !hs.Configured() {
			mode = "placeholder"
		}
		def := ""
		if name == registry.Default() {
			def = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, def, mode)
	}
	w.Flush()

	return nil
}
