package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/velora/pushsync/internal/bus"
)

// DefaultToastTTL is how long a toast stays up without user action.
const DefaultToastTTL = 5 * time.Second

// Level is the visual severity of a toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toast is a transient user-visible notification.
type Toast struct {
	ID        string
	Level     Level
	Message   string
	CreatedAt time.Time
}

// Center holds the active toasts. Each toast auto-dismisses after the TTL
// and can be dismissed early by explicit user action.
type Center struct {
	ttl time.Duration
	bus *bus.Bus

	mu     sync.Mutex
	active []Toast
	timers map[string]*time.Timer
}

// NewCenter creates a toast center publishing changes on the bus.
// ttl <= 0 selects DefaultToastTTL.
func NewCenter(b *bus.Bus, ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &Center{ttl: ttl, bus: b, timers: make(map[string]*time.Timer)}
}

// Push displays a new toast and schedules its auto-dismiss.
func (c *Center) Push(level Level, message string) Toast {
	toast := Toast{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.active = append(c.active, toast)
	c.timers[toast.ID] = time.AfterFunc(c.ttl, func() { c.Dismiss(toast.ID) })
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(bus.Event{Topic: bus.TopicNotify + "toast", Payload: toast})
	}
	return toast
}

// Dismiss removes a toast; no-op for unknown ids.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	if timer, ok := c.timers[id]; ok {
		timer.Stop()
		delete(c.timers, id)
	}
	for i, toast := range c.active {
		if toast.ID == id {
			c.active = append(c.active[:i], c.active[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Active returns a copy of the currently displayed toasts.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, len(c.active))
	copy(out, c.active)
	return out
}
