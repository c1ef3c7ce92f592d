package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FareClass is a passenger type code as understood by pricing sources.
type FareClass string

const (
	FareAdult  FareClass = "ADT"
	FareChild  FareClass = "CHD"
	FareInfant FareClass = "INF"
)

// DateLayout is the ISO date format used for search windows and deal dates.
const DateLayout = "2006-01-02"

// MonthLayout is the format of an open-month search window.
const MonthLayout = "2006-01"

var (
	iataPattern  = regexp.MustCompile(`^[A-Z]{3}$`)
	monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// Passenger is a count of travellers of one fare class.
type Passenger struct {
	FareClass FareClass `json:"fare_class"`
	Count     int       `json:"count"`
}

// SearchWindow is either an open month or an explicit date range.
type SearchWindow struct {
	Month string `json:"month,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Bounds returns the first and last day covered by the window.
func (w SearchWindow) Bounds() (time.Time, time.Time, error) {
	if w.Month != "" {
		start, err := time.Parse(MonthLayout, w.Month)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse month %q: %w", w.Month, err)
		}
		return start, start.AddDate(0, 1, -1), nil
	}
	from, err := time.Parse(DateLayout, w.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse from date %q: %w", w.From, err)
	}
	to, err := time.Parse(DateLayout, w.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse to date %q: %w", w.To, err)
	}
	return from, to, nil
}

func (w SearchWindow) String() string {
	if w.Month != "" {
		return w.Month
	}
	return w.From + ".." + w.To
}

// Alert is a standing request to be notified when a route's price falls
// at or below a ceiling.
type Alert struct {
	ID                string          `json:"id" db:"id"`
	OwnerID           string          `json:"owner_id" db:"owner_id"`
	Channel           string          `json:"channel,omitempty" db:"channel"`
	DestinationID     string          `json:"destination_id" db:"destination_id"`
	Origin            string          `json:"origin" db:"origin"`
	Destination       string          `json:"destination" db:"destination"`
	MaxPrice          decimal.Decimal `json:"max_price" db:"max_price"`
	Currency          string          `json:"currency" db:"currency"`
	Passengers        []Passenger     `json:"passengers" db:"passengers"`
	Window            SearchWindow    `json:"window"`
	Source            string          `json:"source,omitempty" db:"source"`
	Active            bool            `json:"active" db:"active"`
	Paused            bool            `json:"paused" db:"paused"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	LastCheckedAt     *time.Time      `json:"last_checked_at,omitempty" db:"last_checked_at"`
	NotificationsSent int             `json:"notifications_sent" db:"notifications_sent"`
}

// Route returns the alert's route in ORIGIN-DESTINATION form.
func (a *Alert) Route() string {
	return a.Origin + "-" + a.Destination
}

// PassengerCount returns the number of travellers of the given class.
func (a *Alert) PassengerCount(class FareClass) int {
	n := 0
	for _, p := range a.Passengers {
		if p.FareClass == class {
			n += p.Count
		}
	}
	return n
}

// Normalize upper-cases codes and fills defaults in place.
func (a *Alert) Normalize() {
	a.Origin = strings.ToUpper(strings.TrimSpace(a.Origin))
	a.Destination = strings.ToUpper(strings.TrimSpace(a.Destination))
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	if a.Currency == "" {
		a.Currency = "USD"
	}
	for i := range a.Passengers {
		a.Passengers[i].FareClass = FareClass(strings.ToUpper(string(a.Passengers[i].FareClass)))
	}
}

// Validate checks the alert invariants.
func (a *Alert) Validate() error {
	if a.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidAlert)
	}
	if !iataPattern.MatchString(a.Origin) {
		return fmt.Errorf("%w: origin %q is not an IATA code", ErrInvalidAlert, a.Origin)
	}
	if !iataPattern.MatchString(a.Destination) {
		return fmt.Errorf("%w: destination %q is not an IATA code", ErrInvalidAlert, a.Destination)
	}
	if a.Origin == a.Destination {
		return fmt.Errorf("%w: origin and destination are both %s", ErrInvalidAlert, a.Origin)
	}
	if !a.MaxPrice.IsPositive() {
		return fmt.Errorf("%w: max price must be greater than zero", ErrInvalidAlert)
	}

	for _, p := range a.Passengers {
		switch p.FareClass {
		case FareAdult, FareChild, FareInfant:
		default:
			return fmt.Errorf("%w: unknown fare class %q", ErrInvalidAlert, p.FareClass)
		}
		if p.Count < 0 {
			return fmt.Errorf("%w: negative %s count", ErrInvalidAlert, p.FareClass)
		}
	}
	if a.PassengerCount(FareAdult) < 1 {
		return fmt.Errorf("%w: at least one adult is required", ErrInvalidAlert)
	}

	return a.Window.validate()
}

func (w SearchWindow) validate() error {
	hasRange := w.From != "" || w.To != ""
	switch {
	case w.Month != "" && hasRange:
		return fmt.Errorf("%w: window has both a month and a date range", ErrInvalidAlert)
	case w.Month != "":
		if !monthPattern.MatchString(w.Month) {
			return fmt.Errorf("%w: search month %q must be YYYY-MM", ErrInvalidAlert, w.Month)
		}
		return nil
	case hasRange:
		from, to, err := w.Bounds()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
		}
		if to.Before(from) {
			return fmt.Errorf("%w: window ends before it starts", ErrInvalidAlert)
		}
		return nil
	default:
		return fmt.Errorf("%w: search window is required", ErrInvalidAlert)
	}
}

// FlightPrice is the source-agnostic record produced by price sources.
type FlightPrice struct {
	Date              string          `json:"date"`
	PriceTotal        decimal.Decimal `json:"price_total"`
	PriceExcludingTax decimal.Decimal `json:"price_excluding_tax"`
	FareClass         string          `json:"fare_class"`
	FlightNumber      string          `json:"flight_number"`
	DepartureTime     string          `json:"departure_time"`
	ArrivalTime       string          `json:"arrival_time"`
	CheapestOfWindow  bool            `json:"cheapest_of_window"`
}

// Deal is an immutable snapshot of one priced itinerary found for an alert.
type Deal struct {
	ID                string          `json:"id" db:"id"`
	AlertID           string          `json:"alert_id" db:"alert_id"`
	Date              string          `json:"date" db:"date"`
	Price             decimal.Decimal `json:"price" db:"price"`
	PriceExcludingTax decimal.Decimal `json:"price_excluding_tax" db:"price_excluding_tax"`
	FareClass         string          `json:"fare_class" db:"fare_class"`
	FlightNumber      string          `json:"flight_number" db:"flight_number"`
	DepartureTime     string          `json:"departure_time" db:"departure_time"`
	ArrivalTime       string          `json:"arrival_time" db:"arrival_time"`
	CheapestOfWindow  bool            `json:"cheapest_of_window" db:"cheapest_of_window"`
	FoundAt           time.Time       `json:"found_at" db:"found_at"`
}

// Notification records one outbound message about an alert.
type Notification struct {
	ID            string    `json:"id" db:"id"`
	AlertID       string    `json:"alert_id" db:"alert_id"`
	Channel       string    `json:"channel" db:"channel"`
	DestinationID string    `json:"destination_id" db:"destination_id"`
	DealIDs       []string  `json:"deal_ids"`
	DealCount     int       `json:"deal_count" db:"deal_count"`
	Message       string    `json:"message" db:"message"`
	ContentHash   string    `json:"content_hash" db:"content_hash"`
	SentAt        time.Time `json:"sent_at" db:"sent_at"`
}

// PurgeResult reports how many rows a retention purge removed.
type PurgeResult struct {
	Deals         int64 `json:"deals"`
	Notifications int64 `json:"notifications"`
}
