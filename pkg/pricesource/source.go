// Package pricesource adapts upstream flight-pricing APIs to canonical price records.
package pricesource

import (
	"context"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Query describes one route/window search.
type Query struct {
	Origin      string
	Destination string
	Window      model.SearchWindow
	Passengers  []model.Passenger
	Currency    string
}

// QueryForAlert builds the search for an alert.
func QueryForAlert(a *model.Alert) Query {
	return Query{
		Origin:      a.Origin,
		Destination: a.Destination,
		Window:      a.Window,
		Passengers:  a.Passengers,
		Currency:    a.Currency,
	}
}

// Key identifies the query for caching.
func (q Query) Key() string {
	var pax strings.Builder
	for _, class := range []model.FareClass{model.FareAdult, model.FareChild, model.FareInfant} {
		n := 0
		for _, p := range q.Passengers {
			if p.FareClass == class {
				n += p.Count
			}
		}
		fmt.Fprintf(&pax, "%s%d", class, n)
	}
	return strings.Join([]string{q.Origin, q.Destination, q.Window.String(), pax.String(), q.Currency}, ":")
}

// SearchResult holds normalized prices. Placeholder is set when the prices
// were synthesized because the source has no endpoint configured.
type SearchResult struct {
	Prices      []model.FlightPrice `json:"prices"`
	Placeholder bool                `json:"placeholder"`
}

// Source is a flight-pricing integration.
type Source interface {
	// Name returns the source identifier.
	Name() string

	// SearchDeals returns normalized prices for the query. Malformed upstream
	// responses yield an empty result, not an error.
	SearchDeals(ctx context.Context, q Query) (*SearchResult, error)
}
