// Package matcher filters canonical prices against an alert's price ceiling.
package matcher

import (
	"time"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Match returns the prices at or below the alert's ceiling, in input order.
// The input slice is never modified.
func Match(alert *model.Alert, prices []model.FlightPrice) []model.FlightPrice {
	matched := make([]model.FlightPrice, 0, len(prices))
	for _, p := range prices {
		if p.PriceTotal.LessThanOrEqual(alert.MaxPrice) {
			matched = append(matched, p)
		}
	}
	return matched
}

// ToDeals converts matched prices into deal snapshots for an alert.
func ToDeals(alertID string, prices []model.FlightPrice, foundAt time.Time) []model.Deal {
	deals := make([]model.Deal, len(prices))
	for i, p := range prices {
		deals[i] = model.Deal{
			AlertID:           alertID,
			Date:              p.Date,
			Price:             p.PriceTotal,
			PriceExcludingTax: p.PriceExcludingTax,
			FareClass:         p.FareClass,
			FlightNumber:      p.FlightNumber,
			DepartureTime:     p.DepartureTime,
			ArrivalTime:       p.ArrivalTime,
			CheapestOfWindow:  p.CheapestOfWindow,
			FoundAt:           foundAt,
		}
	}
	return deals
}

// Cheapest returns the index of the lowest-priced deal, or -1 when empty.
// Ties resolve to the earliest.
func Cheapest(deals []model.Deal) int {
	best := -1
	for i, d := range deals {
		if best < 0 || d.Price.LessThan(deals[best].Price) {
			best = i
		}
	}
	return best
}
