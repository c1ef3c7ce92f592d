package alerts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
)

func dealMessage() alerts.Message {
	return alerts.Message{
		AlertID:     "alert-1",
		Destination: "",
		Subject:     "2 fares SCL → PUJ under 800 USD",
		Text:        "2026-02-03 H2 101 650 USD\n2026-02-17 H2 105 799 USD",
		Route:       "SCL-PUJ",
		DealCount:   2,
		LowestPrice: "650",
		Currency:    "USD",
		Fields:      []alerts.Field{{Title: "Window", Value: "2026-02"}},
	}
}

func TestSlackSender_Name(t *testing.T) {
	n := alerts.NewSlackSender("https://hooks.slack.com/test", "#test")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackSender_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewSlackSender(server.URL, "#fares")
	err := n.Send(context.Background(), dealMessage())
	require.NoError(t, err)
	assert.Equal(t, "#fares", received["channel"])

	attachments, ok := received["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]any)
	assert.Equal(t, "2 fares SCL → PUJ under 800 USD", first["title"])
	assert.Len(t, first["fields"], 4)
}

func TestSlackSender_DestinationOverridesChannel(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := dealMessage()
	msg.Destination = "#family-trips"
	require.NoError(t, alerts.NewSlackSender(server.URL, "#fares").Send(context.Background(), msg))
	assert.Equal(t, "#family-trips", received["channel"])
}

func TestSlackSender_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := alerts.NewSlackSender(server.URL, "#test")
	err := n.Send(context.Background(), dealMessage())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
