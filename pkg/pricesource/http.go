package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ogulcanaydogan/fare-guardian/pkg/fetch"
	"github.com/ogulcanaydogan/fare-guardian/pkg/model"
)

// Doer performs one upstream call; satisfied by *fetch.Client.
type Doer interface {
	Do(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// HTTPSource queries a fare calendar API over HTTP.
type HTTPSource struct {
	name     string
	endpoint string
	apiKey   string
	headers  map[string]string
	client   Doer
	logger   *slog.Logger
}

// NewHTTPSource creates a source. An empty endpoint puts the source in
// placeholder mode.
func NewHTTPSource(cfg SourceConfig, client Doer, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		headers:  cfg.Headers,
		client:   client,
		logger:   logger.With("source", cfg.Name),
	}
}

func (s *HTTPSource) Name() string { return s.name }

// Configured reports whether the source has an upstream endpoint.
func (s *HTTPSource) Configured() bool { return s.endpoint != "" }

func (s *HTTPSource) SearchDeals(ctx context.Context, q Query) (*SearchResult, error) {
	if !s.Configured() {
		s.logger.Debug("no endpoint configured, returning placeholder fares", "route", q.Origin+"-"+q.Destination)
		return Placeholder(q)
	}

	body, err := json.Marshal(buildSearchRequest(q))
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if s.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.apiKey)
	}
	for k, v := range s.headers {
		header.Set(k, v)
	}

	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    s.endpoint,
		Body:   body,
		Header: header,
	})
	if err != nil {
		return nil, err
	}

	prices, err := parseSearchResponse(resp.Body)
	if err != nil {
		s.logger.Warn("discarding upstream response",
			"route", q.Origin+"-"+q.Destination,
			"window", q.Window.String(),
			"error", err,
		)
		return &SearchResult{}, nil
	}
	return &SearchResult{Prices: prices}, nil
}

type searchRequest struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	DateWindow  searchWindow     `json:"dateWindow"`
	Passengers  []passengerCount `json:"passengers"`
	Currency    string           `json:"currency,omitempty"`
}

type searchWindow struct {
	Month string `json:"month,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

type passengerCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func buildSearchRequest(q Query) searchRequest {
	req := searchRequest{
		Origin:      q.Origin,
		Destination: q.Destination,
		DateWindow:  searchWindow{Month: q.Window.Month, From: q.Window.From, To: q.Window.To},
		Currency:    q.Currency,
	}
	for _, p := range q.Passengers {
		if p.Count > 0 {
			req.Passengers = append(req.Passengers, passengerCount{Type: string(p.FareClass), Count: p.Count})
		}
	}
	return req
}

type searchResponse struct {
	Data *struct {
		Days []calendarDay `json:"days"`
	} `json:"data"`
}

type calendarDay struct {
	Date  string       `json:"date"`
	Fares []quotedFare `json:"fares"`
}

type quotedFare struct {
	Total        *decimal.Decimal `json:"total"`
	Base         *decimal.Decimal `json:"base"`
	FareBasis    string           `json:"fareBasis"`
	FlightNumber string           `json:"flightNumber"`
	Departure    string           `json:"departure"`
	Arrival      string           `json:"arrival"`
}

// parseSearchResponse maps a calendar response to canonical prices, sorted
// by date and marking every fare that ties for the window's lowest total.
func parseSearchResponse(body []byte) ([]model.FlightPrice, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: missing data object", model.ErrMalformedResponse)
	}

	var prices []model.FlightPrice
	for _, day := range resp.Data.Days {
		if day.Date == "" {
			return nil, fmt.Errorf("%w: calendar day without date", model.ErrMalformedResponse)
		}
		for _, f := range day.Fares {
			if f.Total == nil {
				return nil, fmt.Errorf("%w: fare on %s without total", model.ErrMalformedResponse, day.Date)
			}
			p := model.FlightPrice{
				Date:          day.Date,
				PriceTotal:    *f.Total,
				FareClass:     f.FareBasis,
				FlightNumber:  f.FlightNumber,
				DepartureTime: f.Departure,
				ArrivalTime:   f.Arrival,
			}
			if f.Base != nil {
				p.PriceExcludingTax = *f.Base
			}
			prices = append(prices, p)
		}
	}

	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Date < prices[j].Date })
	markCheapest(prices)
	return prices, nil
}

func markCheapest(prices []model.FlightPrice) {
	if len(prices) == 0 {
		return
	}
	lowest := prices[0].PriceTotal
	for _, p := range prices[1:] {
		if p.PriceTotal.LessThan(lowest) {
			lowest = p.PriceTotal
		}
	}
	for i := range prices {
		prices[i].CheapestOfWindow = prices[i].PriceTotal.Equal(lowest)
	}
}
