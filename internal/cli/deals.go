package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dealsCmd = &cobra.Command{
	Use:   "deals <alert-id>",
	Short: "Show the most recent deals found for an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeals,
}

func init() {
	rootCmd.AddCommand(dealsCmd)
	dealsCmd.Flags().IntP("limit", "n", 20, "Maximum deals to show")
}

func runDeals(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	alert, err := store.GetAlert(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	deals, err := store.ListDeals(cmd.Context(), alert.ID, limit)
	if err != nil {
		return fmt.Errorf("list deals: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(deals) == 0 {
		fmt.Fprintf(out, "No deals found yet for %s.\n", alert.Route())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DATE\tFLIGHT\tDEPART\tARRIVE\tFARE\tPRICE\tEX TAX\tFOUND\n")
	for _, d := range deals {
		price := d.Price.StringFixed(2) + " " + alert.Currency
		if d.CheapestOfWindow {
			price += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Date, d.FlightNumber, d.DepartureTime, d.ArrivalTime, d.FareClass,
			price, d.PriceExcludingTax.StringFixed(2), d.FoundAt.Local().Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
