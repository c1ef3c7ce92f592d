package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/fare-guardian/pkg/matcher"
	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

const callToAction = "Fares move fast: book soon if one of these works for you."

// Render builds the single message that reports every deal found for an
// alert in one pass.
func Render(alert *model.Alert, deals []model.Deal) alerts.Message {
	noun := "fares"
	if len(deals) == 1 {
		noun = "fare"
	}

	msg := alerts.Message{
		AlertID:     alert.ID,
		Destination: alert.DestinationID,
		Subject: fmt.Sprintf("%d %s %s → %s at or under %s %s",
			len(deals), noun, alert.Origin, alert.Destination, alert.MaxPrice.String(), alert.Currency),
		Route:     alert.Route(),
		DealCount: len(deals),
		Currency:  alert.Currency,
		Fields: []alerts.Field{
			{Title: "Window", Value: alert.Window.String()},
			{Title: "Passengers", Value: passengerSummary(alert)},
		},
	}

	best := matcher.Cheapest(deals)
	if best >= 0 {
		msg.LowestPrice = deals[best].Price.StringFixed(2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Window %s, %s\n\n", alert.Window.String(), passengerSummary(alert))
	for i, d := range deals {
		fmt.Fprintf(&b, "%s  %s", d.Date, orDash(d.FlightNumber))
		if d.DepartureTime != "" || d.ArrivalTime != "" {
			fmt.Fprintf(&b, "  %s-%s", orDash(d.DepartureTime), orDash(d.ArrivalTime))
		}
		fmt.Fprintf(&b, "  %s %s", d.Price.StringFixed(2), alert.Currency)
		if i == best || d.CheapestOfWindow {
			b.WriteString("  (cheapest)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(callToAction)
	msg.Text = b.String()
	return msg
}

func passengerSummary(alert *model.Alert) string {
	parts := make([]string, 0, 3)
	for _, class := range []model.FareClass{model.FareAdult, model.FareChild, model.FareInfant} {
		if n := alert.PassengerCount(class); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, class))
		}
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ContentHash fingerprints a deal set independent of order and of ids, so
// the same fares found on a later pass hash identically.
func ContentHash(deals []model.Deal) string {
	keys := make([]string, len(deals))
	for i, d := range deals {
		keys[i] = strings.Join([]string{d.Date, d.FlightNumber, d.FareClass, d.Price.StringFixed(2)}, "|")
	}
	sort.Strings(keys)

	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(sum[:])
}
