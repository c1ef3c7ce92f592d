package alerts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
)

func TestChannels(t *testing.T) {
	c := alerts.NewChannels("")
	_, err := c.Get("")
	assert.Error(t, err)

	c.Add(alerts.NewWebhookSender("http://example.com", ""))
	c.Add(alerts.NewSlackSender("http://example.com", "#x"))

	def, err := c.Get("")
	require.NoError(t, err)
	assert.Equal(t, "webhook", def.Name())

	slack, err := c.Get("slack")
	require.NoError(t, err)
	assert.Equal(t, "slack", slack.Name())

	_, err = c.Get("telegram")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
	assert.Equal(t, []string{"slack", "webhook"}, c.Names())
}

func TestChannels_ExplicitDefault(t *testing.T) {
	c := alerts.NewChannels("slack")
	c.Add(alerts.NewWebhookSender("http://example.com", ""))
	c.Add(alerts.NewSlackSender("http://example.com", "#x"))

	def, err := c.Get("")
	require.NoError(t, err)
	assert.Equal(t, "slack", def.Name())
}
