package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/fare-guardian/pkg/scheduler"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete deals and notifications past their retention",
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := scheduler.DefaultOptions()
	opts.DealRetention = cfg.Scheduler.DealRetention
	opts.NotificationRetention = cfg.Scheduler.NotificationRetention

	res, err := scheduler.New(store, nil, nil, opts, newLogger(cfg)).Purge(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d deals older than %s and %d notifications older than %s\n",
		res.Deals, cfg.Scheduler.DealRetention, res.Notifications, cfg.Scheduler.NotificationRetention)
	return nil
}
