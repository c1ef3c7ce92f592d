package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

func TestRender(t *testing.T) {
	alert := &model.Alert{
		ID:            "a1",
		DestinationID: "@cheap_fares",
		Origin:        "SCL",
		Destination:   "PUJ",
		MaxPrice:      decimal.NewFromInt(800),
		Currency:      "USD",
		Passengers: []model.Passenger{
			{FareClass: model.FareAdult, Count: 2},
			{FareClass: model.FareInfant, Count: 1},
		},
		Window: model.SearchWindow{Month: "2026-02"},
	}
	deals := []model.Deal{
		{Date: "2026-02-03", Price: decimal.NewFromInt(650), FlightNumber: "H2 101", DepartureTime: "08:10", ArrivalTime: "16:45"},
		{Date: "2026-02-17", Price: decimal.NewFromInt(799), FlightNumber: "H2 105"},
	}

	msg := Render(alert, deals)
	assert.Equal(t, "a1", msg.AlertID)
	assert.Equal(t, "@cheap_fares", msg.Destination)
	assert.Equal(t, "SCL-PUJ", msg.Route)
	assert.Equal(t, "2 fares SCL → PUJ at or under 800 USD", msg.Subject)
	assert.Equal(t, "650.00", msg.LowestPrice)
	assert.Contains(t, msg.Text, "2 ADT, 1 INF")
	assert.Contains(t, msg.Text, "2026-02-03  H2 101  08:10-16:45  650.00 USD  (cheapest)")
	assert.Contains(t, msg.Text, "2026-02-17  H2 105  799.00 USD\n")
	assert.Contains(t, msg.Text, callToAction)
}

func TestContentHash(t *testing.T) {
	a := model.Deal{ID: "1", Date: "2026-02-03", Price: decimal.NewFromInt(650), FlightNumber: "H2 101"}
	b := model.Deal{ID: "2", Date: "2026-02-17", Price: decimal.RequireFromString("799.0"), FlightNumber: "H2 105"}

	h := ContentHash([]model.Deal{a, b})
	assert.Len(t, h, 64)

	b2 := b
	b2.ID = "other"
	b2.Price = decimal.NewFromInt(799)
	assert.Equal(t, h, ContentHash([]model.Deal{b2, a}), "order, ids and decimal scale must not matter")

	b2.Price = decimal.NewFromInt(798)
	assert.NotEqual(t, h, ContentHash([]model.Deal{a, b2}))
}
