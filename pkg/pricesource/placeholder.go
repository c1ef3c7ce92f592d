package pricesource

import (
	"fmt"
	"hash/fnv"

	"github.com/shopspring/decimal"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// placeholderOffsets are the days into the window that get a synthesized fare.
var placeholderOffsets = []int{0, 7, 14}

// Placeholder synthesizes a deterministic set of fares for q. The same query
// always yields the same fares.
func Placeholder(q Query) (*SearchResult, error) {
	from, to, err := q.Window.Bounds()
	if err != nil {
		return nil, fmt.Errorf("placeholder window: %w", err)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(q.Origin + q.Destination))
	base := decimal.NewFromInt(int64(250 + h.Sum32()%600))
	taxRate := decimal.RequireFromString("0.18")

	var prices []model.FlightPrice
	for i, offset := range placeholderOffsets {
		day := from.AddDate(0, 0, offset)
		if day.After(to) {
			break
		}
		total := base.Add(decimal.NewFromInt(int64(i * 45)))
		prices = append(prices, model.FlightPrice{
			Date:              day.Format(model.DateLayout),
			PriceTotal:        total,
			PriceExcludingTax: total.Div(decimal.NewFromInt(1).Add(taxRate)).Round(2),
			FareClass:         "Y",
			FlightNumber:      fmt.Sprintf("XX %03d", 100+i),
			DepartureTime:     "08:00",
			ArrivalTime:       "12:00",
		})
	}
	markCheapest(prices)
	return &SearchResult{Prices: prices, Placeholder: true}, nil
}
