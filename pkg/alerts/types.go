package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Message is one rendered notification addressed to a channel destination.
type Message struct {
	AlertID     string  `json:"alert_id"`
	Destination string  `json:"destination"`
	Subject     string  `json:"subject"`
	Text        string  `json:"text"`
	Route       string  `json:"route"`
	DealCount   int     `json:"deal_count"`
	LowestPrice string  `json:"lowest_price,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

// Field is a short labelled value, rendered by channels that support it.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Sender delivers messages to an external messaging system.
type Sender interface {
	// Name returns the channel identifier.
	Name() string

	// Send delivers one message. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error
}

// Channels resolves senders by name.
type Channels struct {
	mu          sync.RWMutex
	senders     map[string]Sender
	defaultName string
}

// NewChannels creates a channel set; defaultName is used for alerts that
// name no channel.
func NewChannels(defaultName string) *Channels {
	return &Channels{senders: make(map[string]Sender), defaultName: defaultName}
}

// Add registers a sender under its name, replacing any previous one.
func (c *Channels) Add(s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[s.Name()] = s
	if c.defaultName == "" {
		c.defaultName = s.Name()
	}
}

// Get returns the sender for name, or the default sender when name is empty.
func (c *Channels) Get(name string) (Sender, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name == "" {
		name = c.defaultName
	}
	s, ok := c.senders[name]
	if !ok {
		return nil, fmt.Errorf("delivery channel %q not configured", name)
	}
	return s, nil
}

// Names lists the configured channels, sorted.
func (c *Channels) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.senders))
	for name := range c.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
