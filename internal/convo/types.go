package convo

import (
	"time"

	"github.com/velora/pushsync/internal/event"
)

// Conversation is one entry in the synced conversation list.
type Conversation struct {
	ID             string
	CounterpartID  string
	CounterpartRef string
	LastMessage    *event.MessagePreview
	LastActivityAt time.Time
	UnreadCount    int
}

// clone returns a deep copy safe to hand to external readers.
func (c *Conversation) clone() Conversation {
	out := *c
	if c.LastMessage != nil {
		msg := *c.LastMessage
		out.LastMessage = &msg
	}
	return out
}
