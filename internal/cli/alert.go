package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage fare alerts",
}

var alertAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a fare alert",
	RunE:  runAlertAdd,
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts for an owner",
	RunE:  runAlertList,
}

var alertPauseCmd = &cobra.Command{
	Use:   "pause <alert-id>",
	Short: "Pause an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertSetPaused(true),
}

var alertResumeCmd = &cobra.Command{
	Use:   "resume <alert-id>",
	Short: "Resume a paused alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertSetPaused(false),
}

var alertDeactivateCmd = &cobra.Command{
	Use:   "deactivate <alert-id>",
	Short: "Deactivate an alert, keeping its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertDeactivate,
}

var alertDeleteCmd = &cobra.Command{
	Use:   "delete <alert-id>",
	Short: "Delete an alert with its deals and notifications",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertDelete,
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.AddCommand(alertAddCmd, alertListCmd, alertPauseCmd, alertResumeCmd, alertDeactivateCmd, alertDeleteCmd)

	for _, c := range []*cobra.Command{alertAddCmd, alertListCmd, alertPauseCmd, alertResumeCmd, alertDeactivateCmd, alertDeleteCmd} {
		c.Flags().StringP("owner", "o", "", "Owner ID")
		_ = c.MarkFlagRequired("owner")
	}

	f := alertAddCmd.Flags()
	f.String("origin", "", "Origin IATA code")
	f.String("destination", "", "Destination IATA code")
	f.String("max-price", "", "Price ceiling for the whole party")
	f.String("currency", "USD", "Price currency")
	f.Int("adults", 1, "Adult passengers")
	f.Int("children", 0, "Child passengers")
	f.Int("infants", 0, "Infant passengers")
	f.String("month", "", "Search month (YYYY-MM)")
	f.String("date-from", "", "Search window start (YYYY-MM-DD)")
	f.String("date-to", "", "Search window end (YYYY-MM-DD)")
	f.String("chat", "", "Delivery destination (chat ID, @channel, Slack channel)")
	f.String("channel", "", "Delivery channel (telegram, slack, webhook, kafka); default from config")
	f.String("source", "", "Price source name; default from sources file")
	_ = alertAddCmd.MarkFlagRequired("origin")
	_ = alertAddCmd.MarkFlagRequired("destination")
	_ = alertAddCmd.MarkFlagRequired("max-price")
}

func runAlertAdd(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	owner, _ := f.GetString("owner")
	origin, _ := f.GetString("origin")
	destination, _ := f.GetString("destination")
	rawPrice, _ := f.GetString("max-price")
	currency, _ := f.GetString("currency")
	adults, _ := f.GetInt("adults")
	children, _ := f.GetInt("children")
	infants, _ := f.GetInt("infants")
	month, _ := f.GetString("month")
	dateFrom, _ := f.GetString("date-from")
	dateTo, _ := f.GetString("date-to")
	chat, _ := f.GetString("chat")
	channel, _ := f.GetString("channel")
	source, _ := f.GetString("source")

	maxPrice, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return fmt.Errorf("invalid --max-price %q: %w", rawPrice, err)
	}

	passengers := []model.Passenger{{FareClass: model.FareAdult, Count: adults}}
	if children > 0 {
		passengers = append(passengers, model.Passenger{FareClass: model.FareChild, Count: children})
	}
	if infants > 0 {
		passengers = append(passengers, model.Passenger{FareClass: model.FareInfant, Count: infants})
	}

	alert := &model.Alert{
		OwnerID:       owner,
		Channel:       channel,
		DestinationID: chat,
		Origin:        origin,
		Destination:   destination,
		MaxPrice:      maxPrice,
		Currency:      currency,
		Passengers:    passengers,
		Window:        model.SearchWindow{Month: month, From: dateFrom, To: dateTo},
		Source:        source,
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateAlert(cmd.Context(), alert); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Alert created:\n")
	fmt.Fprintf(out, "  ID:         %s\n", alert.ID)
	fmt.Fprintf(out, "  Route:      %s\n", alert.Route())
	fmt.Fprintf(out, "  Max price:  %s %s\n", alert.MaxPrice.String(), alert.Currency)
	fmt.Fprintf(out, "  Window:     %s\n", alert.Window.String())
	fmt.Fprintf(out, "  Passengers: %s\n", passengerList(alert))

	return nil
}

func runAlertList(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListAlertsByOwner(cmd.Context(), owner)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No alerts. Use 'fareguard alert add' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tROUTE\tMAX PRICE\tWINDOW\tPASSENGERS\tSTATE\tLAST CHECKED\tSENT\n")
	for _, a := range list {
		checked := "never"
		if a.LastCheckedAt != nil {
			checked = a.LastCheckedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\t%s\t%d\n",
			a.ID, a.Route(), a.MaxPrice.String(), a.Currency, a.Window.String(),
			passengerList(&a), alertState(&a), checked, a.NotificationsSent,
		)
	}
	w.Flush()

	return nil
}

func runAlertSetPaused(paused bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SetPaused(cmd.Context(), args[0], owner, paused); err != nil {
			return err
		}
		state := "resumed"
		if paused {
			state = "paused"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %s %s\n", args[0], state)
		return nil
	}
}

func runAlertDeactivate(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeactivateAlert(cmd.Context(), args[0], owner); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s deactivated\n", args[0])
	return nil
}

func runAlertDelete(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteAlert(cmd.Context(), args[0], owner); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s deleted\n", args[0])
	return nil
}

func passengerList(a *model.Alert) string {
	var parts []string
	for _, class := range []model.FareClass{model.FareAdult, model.FareChild, model.FareInfant} {
		if n := a.PassengerCount(class); n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", class, n))
		}
	}
	return strings.Join(parts, " ")
}

func alertState(a *model.Alert) string {
	switch {
	case !a.Active:
		return "inactive"
	case a.Paused:
		return "paused"
	default:
		return "active"
	}
}
